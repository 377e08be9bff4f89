package libvirt

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/internal/retry"
)

var notFoundCodes = map[uint32]bool{
	uint32(libvirt.ErrNoDomain):         true,
	uint32(libvirt.ErrNoNetwork):        true,
	uint32(libvirt.ErrNoStoragePool):    true,
	uint32(libvirt.ErrNoStorageVol):     true,
	uint32(libvirt.ErrNoDomainSnapshot): true,
}

var transientCodes = map[uint32]bool{
	uint32(libvirt.ErrOperationTimeout):  true,
	uint32(libvirt.ErrAgentUnresponsive): true,
	uint32(libvirt.ErrNoConnect):         true,
}

// Lookup failure messages reported by older daemons without a usable code.
// Message matching is a fallback only; the strings are not a stable API.
var notFoundMessages = []string{
	"virDomainLookupByUUIDString() failed",
	"virNetworkLookupByUUIDString() failed",
	"virStorageVolLookupByKey() failed",
	"Domain not found",
	"Network not found",
	"Storage volume not found",
	"Storage pool not found",
	"Domain snapshot not found",
}

// Classify maps an error from go-libvirt to its retry class. Structured
// error codes take precedence; connection-level failures are transient;
// known lookup messages are a fallback for NotFound. Anything else is fatal.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.Fatal
	}

	if code, ok := errorCode(err); ok {
		switch {
		case notFoundCodes[code]:
			return retry.NotFound
		case transientCodes[code]:
			return retry.Transient
		}
		if code != 0 {
			return retry.Fatal
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return retry.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.Transient
	}

	msg := err.Error()
	for _, m := range notFoundMessages {
		if strings.Contains(msg, m) {
			return retry.NotFound
		}
	}
	return retry.Fatal
}

// IsNotFound reports whether err is a libvirt "no such object" error.
func IsNotFound(err error) bool {
	return Classify(err) == retry.NotFound
}

func errorCode(err error) (uint32, bool) {
	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		return lerr.Code, true
	}
	var perr *libvirt.Error
	if errors.As(err, &perr) && perr != nil {
		return perr.Code, true
	}
	return 0, false
}
