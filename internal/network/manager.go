// Package network manages the lifecycle of libvirt virtual networks and
// tracks the address ranges already claimed by defined networks.
package network

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/retry"
)

// Manager drives network lifecycle operations. It owns the allocated
// networks cache of its connection.
type Manager struct {
	client  LibvirtClient
	builder DescriptorBuilder
	policy  *retry.Policy
	log     logrus.FieldLogger

	allocated allocatedCache
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates a network manager.
func NewManager(client LibvirtClient, builder DescriptorBuilder, policy *retry.Policy, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		builder: builder,
		policy:  policy,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Define defines the network, marks it autostart and records its UUID.
// The allocated networks cache is not refreshed.
func (m *Manager) Define(ctx context.Context, net *v1alpha1.Network) error {
	if net == nil {
		return fmt.Errorf("network cannot be nil")
	}
	if err := v1alpha1.RequireUndefined(v1alpha1.NetworkKind, net); err != nil {
		return err
	}
	net.Normalize()
	log := m.log.WithField("network", net.Name)

	xml, err := m.builder.NetworkXML(net)
	if err != nil {
		return fmt.Errorf("failed to build descriptor for network %s: %w", net.Name, err)
	}
	log.Debugf("Network descriptor:\n%s", xml)

	var n libvirt.Network
	err = m.policy.Do(ctx, "network.define", func(context.Context) error {
		var err error
		n, err = m.client.NetworkDefineXML(xml)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to define network %s: %w", net.Name, err)
	}
	net.SetIdentity(uuid.UUID(n.UUID).String())

	err = m.policy.Do(ctx, "network.set_autostart", func(context.Context) error {
		return m.client.NetworkSetAutostart(n, true)
	})
	if err != nil {
		return fmt.Errorf("failed to set autostart on network %s: %w", net.Name, err)
	}

	log.WithField("uuid", net.Status.UUID).Info("Network defined")
	return nil
}

// Exists reports whether the network is known to the hypervisor.
func (m *Manager) Exists(ctx context.Context, net *v1alpha1.Network) (bool, error) {
	id, err := identity(net)
	if err != nil {
		return false, err
	}
	return m.policy.Exists(ctx, "network.lookup", func(context.Context) error {
		_, err := m.client.NetworkLookupByUUID(id)
		return err
	})
}

// Active reports whether the network is running.
func (m *Manager) Active(ctx context.Context, net *v1alpha1.Network) (bool, error) {
	n, err := m.lookup(ctx, net)
	if err != nil {
		return false, err
	}
	var active bool
	err = m.policy.Do(ctx, "network.is_active", func(context.Context) error {
		var err error
		active, err = m.client.NetworkIsActive(n)
		return err
	})
	if err != nil {
		return false, err
	}
	net.Status.Active = active
	return active, nil
}

// BridgeName returns the host bridge backing the network.
func (m *Manager) BridgeName(ctx context.Context, net *v1alpha1.Network) (string, error) {
	n, err := m.lookup(ctx, net)
	if err != nil {
		return "", err
	}
	var bridge string
	err = m.policy.Do(ctx, "network.bridge_name", func(context.Context) error {
		var err error
		bridge, err = m.client.NetworkGetBridgeName(n)
		return err
	})
	if err != nil {
		return "", err
	}
	net.Status.Bridge = bridge
	return bridge, nil
}

// Name returns the network's name as the hypervisor knows it.
func (m *Manager) Name(ctx context.Context, net *v1alpha1.Network) (string, error) {
	n, err := m.lookup(ctx, net)
	if err != nil {
		return "", err
	}
	return n.Name, nil
}

// Create starts the network.
func (m *Manager) Create(ctx context.Context, net *v1alpha1.Network) error {
	return m.lifecycle(ctx, net, "network.create", m.client.NetworkCreate)
}

// Destroy stops the network.
func (m *Manager) Destroy(ctx context.Context, net *v1alpha1.Network) error {
	return m.lifecycle(ctx, net, "network.destroy", m.client.NetworkDestroy)
}

// Undefine removes the network's persistent definition.
func (m *Manager) Undefine(ctx context.Context, net *v1alpha1.Network) error {
	return m.lifecycle(ctx, net, "network.undefine", m.client.NetworkUndefine)
}

func (m *Manager) lifecycle(ctx context.Context, net *v1alpha1.Network, op string, call func(libvirt.Network) error) error {
	n, err := m.lookup(ctx, net)
	if err != nil {
		return err
	}
	if err := m.policy.Do(ctx, op, func(context.Context) error { return call(n) }); err != nil {
		return fmt.Errorf("network %s: %w", net.Name, err)
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, net *v1alpha1.Network) (libvirt.Network, error) {
	id, err := identity(net)
	if err != nil {
		return libvirt.Network{}, err
	}
	var n libvirt.Network
	err = m.policy.Do(ctx, "network.lookup", func(context.Context) error {
		var err error
		n, err = m.client.NetworkLookupByUUID(id)
		return err
	})
	if err != nil {
		return libvirt.Network{}, fmt.Errorf("network %s: %w", net.Name, err)
	}
	return n, nil
}

func identity(net *v1alpha1.Network) (libvirt.UUID, error) {
	if net == nil {
		return libvirt.UUID{}, fmt.Errorf("network cannot be nil")
	}
	if err := v1alpha1.RequireDefined(v1alpha1.NetworkKind, net); err != nil {
		return libvirt.UUID{}, err
	}
	id, err := uuid.Parse(net.Status.UUID)
	if err != nil {
		return libvirt.UUID{}, fmt.Errorf("network %s has invalid uuid %q: %w", net.Name, net.Status.UUID, err)
	}
	return libvirt.UUID(id), nil
}
