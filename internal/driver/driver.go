// Package driver composes the node, network and volume managers over a
// single libvirt connection.
//
// A Driver owns its connection: Close releases it. Every hypervisor call
// made through the managers shares one retry policy, one logger and, when
// a Prometheus registerer is supplied, one metrics observer.
package driver

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/internal/config"
	"github.com/jbweber/virtdriver/internal/descriptor"
	vlibvirt "github.com/jbweber/virtdriver/internal/libvirt"
	"github.com/jbweber/virtdriver/internal/metrics"
	"github.com/jbweber/virtdriver/internal/network"
	"github.com/jbweber/virtdriver/internal/node"
	"github.com/jbweber/virtdriver/internal/retry"
	"github.com/jbweber/virtdriver/internal/storage"
)

// Endpoint is the hypervisor surface the driver needs.
//
// In production, this is satisfied by *vlibvirt.Client.
// In tests, this is satisfied by mock implementations.
type Endpoint interface {
	node.LibvirtClient
	network.LibvirtClient
	storage.LibvirtClient

	Capabilities(ctx context.Context) (*libvirtxml.Caps, error)
	Close() error
}

var _ Endpoint = (*vlibvirt.Client)(nil)

// Driver is the entry point for resource lifecycle operations.
type Driver struct {
	client   Endpoint
	policy   *retry.Policy
	nodes    *node.Manager
	networks *network.Manager
	volumes  *storage.Manager
	pools    map[string]string
	log      logrus.FieldLogger
}

type options struct {
	log        logrus.FieldLogger
	registerer prometheus.Registerer
}

// Option configures a Driver.
type Option func(*options)

// WithLogger sets the logger shared by the driver and its managers.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithRegisterer reports retry policy metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New connects to the daemon described by cfg and composes a Driver over
// the connection. A nil cfg uses the defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Driver, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := buildOptions(opts)

	policy, err := newPolicy(cfg, o)
	if err != nil {
		return nil, err
	}

	client, err := vlibvirt.Connect(ctx, vlibvirt.Options{
		URI:     cfg.Connection.URI,
		Socket:  cfg.Connection.Socket,
		Timeout: cfg.Connection.Timeout,
		Policy:  policy,
		Logger:  o.log,
	})
	if err != nil {
		return nil, err
	}
	return compose(client, policy, cfg, o), nil
}

// NewWithClient composes a Driver over an existing endpoint. The Driver
// takes ownership of client and closes it in Close.
func NewWithClient(client Endpoint, cfg *config.Config, opts ...Option) (*Driver, error) {
	if client == nil {
		return nil, fmt.Errorf("endpoint cannot be nil")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	o := buildOptions(opts)

	policy, err := newPolicy(cfg, o)
	if err != nil {
		return nil, err
	}
	return compose(client, policy, cfg, o), nil
}

func buildOptions(opts []Option) *options {
	o := &options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newPolicy(cfg *config.Config, o *options) (*retry.Policy, error) {
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}
	popts := []retry.Option{retry.WithLogger(o.log)}
	if o.registerer != nil {
		observer, err := metrics.NewObserver(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		popts = append(popts, retry.WithObserver(observer))
	}
	return retry.New(cfg.Retry, vlibvirt.Classify, popts...), nil
}

func compose(client Endpoint, policy *retry.Policy, cfg *config.Config, o *options) *Driver {
	builder := descriptor.Builder{}

	nodeOpts := []node.Option{node.WithLogger(o.log.WithField("component", "node"))}
	if cfg.Keys.Pause > 0 {
		nodeOpts = append(nodeOpts, node.WithKeyPause(cfg.Keys.Pause))
	}

	return &Driver{
		client:   client,
		policy:   policy,
		nodes:    node.NewManager(client, builder, policy, nodeOpts...),
		networks: network.NewManager(client, builder, policy, network.WithLogger(o.log.WithField("component", "network"))),
		volumes:  storage.NewManager(client, builder, policy, storage.WithLogger(o.log.WithField("component", "storage"))),
		pools:    cfg.Storage.Pools,
		log:      o.log,
	}
}

// Nodes returns the node lifecycle manager.
func (d *Driver) Nodes() *node.Manager {
	return d.nodes
}

// Networks returns the network lifecycle manager.
func (d *Driver) Networks() *network.Manager {
	return d.networks
}

// Volumes returns the volume lifecycle manager.
func (d *Driver) Volumes() *storage.Manager {
	return d.volumes
}

// Policy returns the retry policy shared by the managers.
func (d *Driver) Policy() *retry.Policy {
	return d.policy
}

// Capabilities returns the hypervisor capability document. It is fetched
// once per connection.
func (d *Driver) Capabilities(ctx context.Context) (*libvirtxml.Caps, error) {
	return d.client.Capabilities(ctx)
}

// Close releases the connection. It is safe to call more than once.
func (d *Driver) Close() error {
	return d.client.Close()
}
