package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/internal/retry"
)

// allocatedCache holds the address ranges of defined networks. The lock
// is held across check, fetch and store so concurrent first callers
// trigger a single scan.
type allocatedCache struct {
	mu       sync.Mutex
	loaded   bool
	prefixes []netip.Prefix
}

// AllocatedNetworks returns the address ranges configured on every defined
// network, active or not. The scan runs once; later calls return the
// cached result even if networks were defined or removed since. Use
// RefreshAllocatedNetworks to rescan.
func (m *Manager) AllocatedNetworks(ctx context.Context) ([]netip.Prefix, error) {
	m.allocated.mu.Lock()
	defer m.allocated.mu.Unlock()

	if !m.allocated.loaded {
		prefixes, err := m.scanAllocated(ctx)
		if err != nil {
			return nil, err
		}
		m.allocated.prefixes = prefixes
		m.allocated.loaded = true
	}
	return append([]netip.Prefix(nil), m.allocated.prefixes...), nil
}

// RefreshAllocatedNetworks rescans defined networks and replaces the
// cached ranges. On failure the previous cache is kept.
func (m *Manager) RefreshAllocatedNetworks(ctx context.Context) ([]netip.Prefix, error) {
	m.allocated.mu.Lock()
	defer m.allocated.mu.Unlock()

	prefixes, err := m.scanAllocated(ctx)
	if err != nil {
		return nil, err
	}
	m.allocated.prefixes = prefixes
	m.allocated.loaded = true
	return append([]netip.Prefix(nil), prefixes...), nil
}

// IsAllocated reports whether p overlaps any allocated network.
func (m *Manager) IsAllocated(ctx context.Context, p netip.Prefix) (bool, error) {
	allocated, err := m.AllocatedNetworks(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range allocated {
		if a.Overlaps(p) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) scanAllocated(ctx context.Context) ([]netip.Prefix, error) {
	var nets []libvirt.Network
	err := m.policy.Do(ctx, "network.list_all", func(context.Context) error {
		var err error
		nets, err = m.client.ListAllNetworks()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	prefixes := []netip.Prefix{}
	seen := make(map[netip.Prefix]bool)
	for _, n := range nets {
		var xml string
		err := m.policy.Do(ctx, "network.xml_desc", func(context.Context) error {
			var err error
			xml, err = m.client.NetworkXMLDesc(n)
			return err
		})
		if retry.IsNotFound(err) {
			// removed between listing and describing
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to describe network %s: %w", n.Name, err)
		}

		found, err := networkPrefixes(xml)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", n.Name, err)
		}
		for _, p := range found {
			if !seen[p] {
				seen[p] = true
				prefixes = append(prefixes, p)
			}
		}
	}

	m.log.WithFields(logrus.Fields{
		"networks": len(nets),
		"ranges":   len(prefixes),
	}).Debug("Scanned allocated networks")
	return prefixes, nil
}

// networkPrefixes extracts the masked range of every <ip> element that
// carries an address.
func networkPrefixes(xml string) ([]netip.Prefix, error) {
	var desc libvirtxml.Network
	if err := desc.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse network XML: %w", err)
	}

	var out []netip.Prefix
	for _, ip := range desc.IPs {
		if ip.Address == "" {
			continue
		}
		addr, err := netip.ParseAddr(ip.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid ip address %q: %w", ip.Address, err)
		}
		addr = addr.Unmap()

		bits := addr.BitLen()
		switch {
		case ip.Prefix > 0:
			bits = int(ip.Prefix)
		case ip.Netmask != "":
			if bits, err = maskBits(ip.Netmask); err != nil {
				return nil, err
			}
		}

		p, err := addr.Prefix(bits)
		if err != nil {
			return nil, fmt.Errorf("invalid prefix for %s: %w", ip.Address, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func maskBits(netmask string) (int, error) {
	mask, err := netip.ParseAddr(netmask)
	if err != nil || !mask.Is4() {
		return 0, fmt.Errorf("invalid netmask %q", netmask)
	}
	ones, size := net.IPMask(mask.AsSlice()).Size()
	if size == 0 {
		return 0, fmt.Errorf("non-contiguous netmask %q", netmask)
	}
	return ones, nil
}
