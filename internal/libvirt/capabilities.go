package libvirt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"libvirt.org/go/libvirtxml"
)

// ErrNoEmulator is returned when the host offers no emulator for the
// requested architecture and domain type.
var ErrNoEmulator = errors.New("no emulator for guest")

// capsCache memoizes the parsed capability document. The mutex is held
// across check, fetch and store so concurrent first callers issue one query.
// A failed fetch leaves the cache empty.
type capsCache struct {
	mu    sync.Mutex
	caps  *libvirtxml.Caps
	fetch func(ctx context.Context) (string, error)
}

func newCapsCache(fetch func(ctx context.Context) (string, error)) *capsCache {
	return &capsCache{fetch: fetch}
}

func (c *capsCache) get(ctx context.Context) (*libvirtxml.Caps, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.caps != nil {
		return c.caps, nil
	}

	doc, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}

	caps := &libvirtxml.Caps{}
	if err := caps.Unmarshal(doc); err != nil {
		return nil, fmt.Errorf("failed to parse capabilities: %w", err)
	}
	c.caps = caps
	return caps, nil
}

// FindEmulator looks up guest/arch[@name=arch]/domain[@type=domainType] in
// caps. A domain without its own emulator inherits the arch-level one.
func FindEmulator(caps *libvirtxml.Caps, arch, domainType string) (string, error) {
	if caps == nil {
		return "", fmt.Errorf("%w %s/%s: no capabilities", ErrNoEmulator, arch, domainType)
	}
	for _, guest := range caps.Guests {
		if guest.Arch.Name != arch {
			continue
		}
		for _, dom := range guest.Arch.Domains {
			if dom.Type != domainType {
				continue
			}
			if dom.Emulator != "" {
				return dom.Emulator, nil
			}
			if guest.Arch.Emulator != "" {
				return guest.Arch.Emulator, nil
			}
		}
	}
	return "", fmt.Errorf("%w %s/%s", ErrNoEmulator, arch, domainType)
}
