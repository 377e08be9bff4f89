package libvirt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/internal/retry"
)

const (
	// DefaultSocket is the libvirtd socket for qemu:///system.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultURI is the connection URI used when none is configured.
	DefaultURI = "qemu:///system"

	// DefaultTimeout bounds dialing the socket.
	DefaultTimeout = 5 * time.Second
)

// Options configures Connect.
type Options struct {
	// URI is passed to the daemon after dialing. Defaults to DefaultURI.
	URI string
	// Socket is the local UNIX socket. Defaults to DefaultSocket.
	Socket string
	// Timeout bounds the dial. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Policy wraps calls made by the client itself. Defaults to a policy
	// with default settings and Classify.
	Policy *retry.Policy
	Logger logrus.FieldLogger
}

// Client owns a single go-libvirt connection and the capability document
// read through it. It must be closed via Close when done.
type Client struct {
	libvirt *libvirt.Libvirt
	uri     string
	policy  *retry.Policy
	log     logrus.FieldLogger

	caps *capsCache

	closeMu sync.Mutex
	closed  bool
}

// Connect dials the local libvirt daemon and opens opts.URI on it.
// Cancelling ctx abandons the dial; a failed dial returns no client.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Socket == "" {
		opts.Socket = DefaultSocket
	}
	if opts.URI == "" {
		opts.URI = DefaultURI
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Policy == nil {
		opts.Policy = retry.New(retry.DefaultConfig(), Classify, retry.WithLogger(opts.Logger))
	}

	type result struct {
		l   *libvirt.Libvirt
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		dialer := dialers.NewLocal(
			dialers.WithSocket(opts.Socket),
			dialers.WithLocalTimeout(opts.Timeout),
		)
		l := libvirt.NewWithDialer(dialer)
		if err := l.ConnectToURI(libvirt.ConnectURI(opts.URI)); err != nil {
			resultCh <- result{err: fmt.Errorf("failed to connect to libvirt at %s (%s): %w", opts.Socket, opts.URI, err)}
			return
		}
		resultCh <- result{l: l}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		opts.Logger.WithFields(logrus.Fields{
			"uri":    opts.URI,
			"socket": opts.Socket,
		}).Debug("Connected to libvirt")
		return newClient(res.l, opts.URI, opts.Policy, opts.Logger), nil
	}
}

func newClient(l *libvirt.Libvirt, uri string, policy *retry.Policy, log logrus.FieldLogger) *Client {
	c := &Client{
		libvirt: l,
		uri:     uri,
		policy:  policy,
		log:     log,
	}
	c.caps = newCapsCache(c.fetchCapabilities)
	return c
}

// Close closes the libvirt connection. It is safe to call Close multiple
// times and on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.libvirt == nil {
		return nil
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Policy returns the retry policy the client was built with.
func (c *Client) Policy() *retry.Policy {
	return c.policy
}

// URI returns the URI the connection was opened with.
func (c *Client) URI() string {
	return c.uri
}

// Ping verifies the connection is still alive.
func (c *Client) Ping() error {
	if c == nil || c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}
	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return nil
}

// Version returns the libvirt library version as major.minor.release.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v uint64
	err := c.policy.Do(ctx, "connect.version", func(context.Context) error {
		var err error
		v, err = c.libvirt.ConnectGetLibVersion()
		return err
	})
	if err != nil {
		return "", err
	}
	return FormatVersion(v), nil
}

// Hostname returns the hypervisor host name.
func (c *Client) Hostname(ctx context.Context) (string, error) {
	var h string
	err := c.policy.Do(ctx, "connect.hostname", func(context.Context) error {
		var err error
		h, err = c.libvirt.ConnectGetHostname()
		return err
	})
	return h, err
}

// FormatVersion renders libvirt's packed version number.
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}

// Capabilities returns the host capability document. It is fetched once per
// client; concurrent first callers share a single query.
func (c *Client) Capabilities(ctx context.Context) (*libvirtxml.Caps, error) {
	return c.caps.get(ctx)
}

// Emulator returns the emulator binary the host offers for the given guest
// architecture and domain type.
func (c *Client) Emulator(ctx context.Context, arch, domainType string) (string, error) {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return "", err
	}
	return FindEmulator(caps, arch, domainType)
}

func (c *Client) fetchCapabilities(ctx context.Context) (string, error) {
	var doc string
	err := c.policy.Do(ctx, "connect.capabilities", func(context.Context) error {
		var err error
		doc, err = c.libvirt.ConnectGetCapabilities()
		return err
	})
	return doc, err
}
