// Package node manages the lifecycle of compute nodes (libvirt domains).
//
// Every hypervisor call runs through a retry.Policy. Nodes are addressed
// by the UUID assigned in Define; any other operation on a node without
// one fails with v1alpha1.ErrNotDefined before touching the endpoint.
package node

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/keys"
	"github.com/jbweber/virtdriver/internal/metadata"
	"github.com/jbweber/virtdriver/internal/retry"
)

// DefaultKeyPause is how long a <wait> token pauses key injection.
const DefaultKeyPause = time.Second

// Manager drives node lifecycle operations.
type Manager struct {
	client  LibvirtClient
	builder DescriptorBuilder
	keys    KeyTranslator
	policy  *retry.Policy
	log     logrus.FieldLogger
	pause   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithTranslator replaces the default Linux keycode translator.
func WithTranslator(t KeyTranslator) Option {
	return func(m *Manager) {
		m.keys = t
	}
}

// WithKeyPause sets the delay inserted for each wait token.
func WithKeyPause(d time.Duration) Option {
	return func(m *Manager) {
		m.pause = d
	}
}

// NewManager creates a node manager.
func NewManager(client LibvirtClient, builder DescriptorBuilder, policy *retry.Policy, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		builder: builder,
		keys:    keys.Translator{},
		policy:  policy,
		log:     logrus.StandardLogger(),
		pause:   DefaultKeyPause,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Define renders the node descriptor against the hypervisor's emulator for
// the node's architecture and hypervisor type, defines the domain and
// records its UUID on the node.
func (m *Manager) Define(ctx context.Context, node *v1alpha1.Node) error {
	if node == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if err := v1alpha1.RequireUndefined(v1alpha1.NodeKind, node); err != nil {
		return err
	}
	node.Normalize()
	log := m.log.WithField("node", node.Name)

	emulator, err := m.client.Emulator(ctx, node.Spec.Architecture, node.Spec.Hypervisor)
	if err != nil {
		return fmt.Errorf("failed to resolve emulator for node %s: %w", node.Name, err)
	}

	xml, err := m.builder.NodeXML(node, emulator)
	if err != nil {
		return fmt.Errorf("failed to build descriptor for node %s: %w", node.Name, err)
	}
	log.Infof("Defining node with descriptor:\n%s", xml)

	var dom libvirt.Domain
	err = m.policy.Do(ctx, "domain.define", func(context.Context) error {
		var err error
		dom, err = m.client.DomainDefineXML(xml)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to define node %s: %w", node.Name, err)
	}

	node.SetIdentity(uuid.UUID(dom.UUID).String())
	log.WithField("uuid", node.Status.UUID).Info("Node defined")
	return nil
}

// Exists reports whether the node's domain is known to the hypervisor.
func (m *Manager) Exists(ctx context.Context, node *v1alpha1.Node) (bool, error) {
	id, err := identity(node)
	if err != nil {
		return false, err
	}
	return m.policy.Exists(ctx, "domain.lookup", func(context.Context) error {
		_, err := m.client.DomainLookupByUUID(id)
		return err
	})
}

// Active reports whether the node is running.
func (m *Manager) Active(ctx context.Context, node *v1alpha1.Node) (bool, error) {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return false, err
	}
	var active bool
	err = m.policy.Do(ctx, "domain.is_active", func(context.Context) error {
		var err error
		active, err = m.client.DomainIsActive(dom)
		return err
	})
	return active, err
}

// Create starts the node.
func (m *Manager) Create(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.create", m.client.DomainCreate)
}

// Destroy forcibly stops the node.
func (m *Manager) Destroy(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.destroy", m.client.DomainDestroy)
}

// Undefine removes the node's persistent definition. The node keeps its
// UUID; a later Exists reports false.
func (m *Manager) Undefine(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.undefine", m.client.DomainUndefine)
}

// Reboot asks the guest to reboot.
func (m *Manager) Reboot(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.reboot", m.client.DomainReboot)
}

// Reset hard-resets the node.
func (m *Manager) Reset(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.reset", m.client.DomainReset)
}

// Suspend pauses the node's vCPUs.
func (m *Manager) Suspend(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.suspend", m.client.DomainSuspend)
}

// Resume continues a suspended node.
func (m *Manager) Resume(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.resume", m.client.DomainResume)
}

// Shutdown asks the guest to power off.
func (m *Manager) Shutdown(ctx context.Context, node *v1alpha1.Node) error {
	return m.lifecycle(ctx, node, "domain.shutdown", m.client.DomainShutdown)
}

// VNCPort returns the VNC port the running node listens on. ok is false
// when the node has no VNC graphics or no port has been assigned yet.
func (m *Manager) VNCPort(ctx context.Context, node *v1alpha1.Node) (port string, ok bool, err error) {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return "", false, err
	}

	var xml string
	err = m.policy.Do(ctx, "domain.xml_desc", func(context.Context) error {
		var err error
		xml, err = m.client.DomainXMLDesc(dom)
		return err
	})
	if err != nil {
		return "", false, err
	}

	var desc libvirtxml.Domain
	if err := desc.Unmarshal(xml); err != nil {
		return "", false, fmt.Errorf("failed to parse runtime descriptor of node %s: %w", node.Name, err)
	}
	if desc.Devices == nil {
		return "", false, nil
	}
	for _, g := range desc.Devices.Graphics {
		if g.VNC != nil && g.VNC.Port > 0 {
			node.Status.VNCPort = strconv.Itoa(g.VNC.Port)
			return node.Status.VNCPort, true, nil
		}
	}
	return "", false, nil
}

// Recorded returns the node manifest stored in the domain's metadata when it
// was defined. Domains defined by other tools return metadata.ErrNoMetadata.
func (m *Manager) Recorded(ctx context.Context, node *v1alpha1.Node) (*v1alpha1.Node, error) {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return nil, err
	}
	var xml string
	err = m.policy.Do(ctx, "domain.xml_desc", func(context.Context) error {
		var err error
		xml, err = m.client.DomainXMLDesc(dom)
		return err
	})
	if err != nil {
		return nil, err
	}
	rec, err := metadata.Decode(xml)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.Name, err)
	}
	return rec, nil
}

// State returns the libvirt state name of the node, e.g. "running".
func (m *Manager) State(ctx context.Context, node *v1alpha1.Node) (string, error) {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return "", err
	}
	var state int32
	err = m.policy.Do(ctx, "domain.get_state", func(context.Context) error {
		var err error
		state, err = m.client.DomainState(dom)
		return err
	})
	if err != nil {
		return "", err
	}
	node.Status.State = StateName(state)
	return node.Status.State, nil
}

// StateName maps a libvirt domain state to its name.
func StateName(state int32) string {
	switch libvirt.DomainState(state) {
	case libvirt.DomainRunning:
		return "running"
	case libvirt.DomainBlocked:
		return "blocked"
	case libvirt.DomainPaused:
		return "paused"
	case libvirt.DomainShutdown:
		return "shutdown"
	case libvirt.DomainShutoff:
		return "shutoff"
	case libvirt.DomainCrashed:
		return "crashed"
	case libvirt.DomainPmsuspended:
		return "pmsuspended"
	default:
		return "nostate"
	}
}

func (m *Manager) lifecycle(ctx context.Context, node *v1alpha1.Node, op string, call func(libvirt.Domain) error) error {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"node": node.Name, "op": op}).Debug("Calling hypervisor")
	if err := m.policy.Do(ctx, op, func(context.Context) error { return call(dom) }); err != nil {
		return fmt.Errorf("node %s: %w", node.Name, err)
	}
	return nil
}

// lookup resolves node to its domain. A missing domain is fatal.
func (m *Manager) lookup(ctx context.Context, node *v1alpha1.Node) (libvirt.Domain, error) {
	id, err := identity(node)
	if err != nil {
		return libvirt.Domain{}, err
	}
	var dom libvirt.Domain
	err = m.policy.Do(ctx, "domain.lookup", func(context.Context) error {
		var err error
		dom, err = m.client.DomainLookupByUUID(id)
		return err
	})
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("node %s: %w", node.Name, err)
	}
	return dom, nil
}

func identity(node *v1alpha1.Node) (libvirt.UUID, error) {
	if node == nil {
		return libvirt.UUID{}, fmt.Errorf("node cannot be nil")
	}
	if err := v1alpha1.RequireDefined(v1alpha1.NodeKind, node); err != nil {
		return libvirt.UUID{}, err
	}
	id, err := uuid.Parse(node.Status.UUID)
	if err != nil {
		return libvirt.UUID{}, fmt.Errorf("node %s has invalid uuid %q: %w", node.Name, node.Status.UUID, err)
	}
	return libvirt.UUID(id), nil
}
