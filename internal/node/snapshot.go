package node

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// SnapshotSelector picks the snapshot a revert or delete applies to:
// either the domain's current snapshot or one looked up by name.
type SnapshotSelector struct {
	name string
}

// Current selects the domain's current snapshot.
func Current() SnapshotSelector {
	return SnapshotSelector{}
}

// Named selects the snapshot called name. An empty name selects the
// current snapshot.
func Named(name string) SnapshotSelector {
	return SnapshotSelector{name: name}
}

// IsCurrent reports whether s selects the current snapshot.
func (s SnapshotSelector) IsCurrent() bool {
	return s.name == ""
}

// Name returns the selected name, empty for the current snapshot.
func (s SnapshotSelector) Name() string {
	return s.name
}

func (s SnapshotSelector) String() string {
	if s.IsCurrent() {
		return "current"
	}
	return fmt.Sprintf("%q", s.name)
}

// Snapshots lists the node's snapshot names in the order the hypervisor
// returns them.
func (m *Manager) Snapshots(ctx context.Context, node *v1alpha1.Node) ([]string, error) {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return nil, err
	}
	var names []string
	err = m.policy.Do(ctx, "domain.snapshot.list", func(context.Context) error {
		var err error
		names, err = m.client.DomainSnapshotNames(dom)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of node %s: %w", node.Name, err)
	}
	return names, nil
}

// CreateSnapshot snapshots the node. Empty name and description are left
// for the hypervisor to fill in.
func (m *Manager) CreateSnapshot(ctx context.Context, node *v1alpha1.Node, name, description string) error {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return err
	}

	xml, err := m.builder.SnapshotXML(name, description)
	if err != nil {
		return fmt.Errorf("failed to build snapshot descriptor: %w", err)
	}

	err = m.policy.Do(ctx, "domain.snapshot.create", func(context.Context) error {
		_, err := m.client.DomainSnapshotCreateXML(dom, xml)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to snapshot node %s: %w", node.Name, err)
	}
	m.log.WithFields(logrus.Fields{"node": node.Name, "snapshot": name}).Info("Snapshot created")
	return nil
}

// RevertSnapshot reverts the node to the selected snapshot. A name that
// does not resolve is fatal.
func (m *Manager) RevertSnapshot(ctx context.Context, node *v1alpha1.Node, sel SnapshotSelector) error {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return err
	}
	snap, err := m.resolveSnapshot(ctx, dom, sel)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.Name, err)
	}
	err = m.policy.Do(ctx, "domain.snapshot.revert", func(context.Context) error {
		return m.client.DomainRevertToSnapshot(snap)
	})
	if err != nil {
		return fmt.Errorf("failed to revert node %s to snapshot %s: %w", node.Name, sel, err)
	}
	return nil
}

// DeleteSnapshot deletes the selected snapshot.
func (m *Manager) DeleteSnapshot(ctx context.Context, node *v1alpha1.Node, sel SnapshotSelector) error {
	dom, err := m.lookup(ctx, node)
	if err != nil {
		return err
	}
	snap, err := m.resolveSnapshot(ctx, dom, sel)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.Name, err)
	}
	err = m.policy.Do(ctx, "domain.snapshot.delete", func(context.Context) error {
		return m.client.DomainSnapshotDelete(snap)
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s of node %s: %w", sel, node.Name, err)
	}
	return nil
}

func (m *Manager) resolveSnapshot(ctx context.Context, dom libvirt.Domain, sel SnapshotSelector) (libvirt.DomainSnapshot, error) {
	var snap libvirt.DomainSnapshot
	if sel.IsCurrent() {
		err := m.policy.Do(ctx, "domain.snapshot.current", func(context.Context) error {
			var err error
			snap, err = m.client.DomainSnapshotCurrent(dom)
			return err
		})
		return snap, err
	}
	err := m.policy.Do(ctx, "domain.snapshot.lookup", func(context.Context) error {
		var err error
		snap, err = m.client.DomainSnapshotLookupByName(dom, sel.name)
		return err
	})
	return snap, err
}
