package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/loader"
	"github.com/jbweber/virtdriver/internal/retry"
)

// ErrStale is returned when a handle carries an identity the hypervisor no
// longer knows. The handle's status must be cleared before it can be
// defined again.
var ErrStale = errors.New("identity refers to a missing object")

// Apply brings every resource in m into existence: networks are defined
// and started, volumes defined, nodes given their cloud-init seed, defined
// and started. Handles that are already defined are only started.
// Identities are written into the handles as they are assigned, so on
// failure m records what was created.
func (d *Driver) Apply(ctx context.Context, m *loader.Manifest) error {
	for _, net := range m.Networks {
		if err := d.applyNetwork(ctx, net); err != nil {
			return fmt.Errorf("network %s: %w", net.Name, err)
		}
	}
	for _, vol := range m.Volumes {
		if err := d.applyVolume(ctx, vol); err != nil {
			return fmt.Errorf("volume %s: %w", vol.Name, err)
		}
	}
	for _, n := range m.Nodes {
		if err := d.applyNode(ctx, n); err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	return nil
}

func (d *Driver) applyNetwork(ctx context.Context, net *v1alpha1.Network) error {
	if err := checkStale(ctx, net, d.networks.Exists); err != nil {
		return err
	}
	if !net.IsDefined() {
		if err := d.networks.Define(ctx, net); err != nil {
			return err
		}
	}
	active, err := d.networks.Active(ctx, net)
	if err != nil {
		return err
	}
	if !active {
		if err := d.networks.Create(ctx, net); err != nil {
			return err
		}
		net.Status.Active = true
	}
	_, err = d.networks.BridgeName(ctx, net)
	return err
}

func (d *Driver) applyVolume(ctx context.Context, vol *v1alpha1.Volume) error {
	if err := checkStale(ctx, vol, d.volumes.Exists); err != nil {
		return err
	}
	if vol.IsDefined() {
		return nil
	}
	vol.Normalize()
	if err := d.EnsurePool(ctx, vol.Spec.Pool); err != nil {
		return err
	}
	if err := d.volumes.Define(ctx, vol); err != nil {
		return err
	}
	_, err := d.volumes.Path(ctx, vol)
	return err
}

func (d *Driver) applyNode(ctx context.Context, n *v1alpha1.Node) error {
	if err := checkStale(ctx, n, d.nodes.Exists); err != nil {
		return err
	}
	if !n.IsDefined() {
		if _, err := d.ProvisionCloudInit(ctx, n); err != nil {
			return err
		}
		if err := d.nodes.Define(ctx, n); err != nil {
			if cerr := d.RemoveCloudInit(ctx, n); cerr != nil {
				d.log.WithError(cerr).WithField("node", n.Name).Warn("Warning: failed to clean up cloud-init volume")
			}
			return err
		}
	}
	active, err := d.nodes.Active(ctx, n)
	if err != nil {
		return err
	}
	if !active {
		if err := d.nodes.Create(ctx, n); err != nil {
			return err
		}
	}
	_, err = d.nodes.State(ctx, n)
	return err
}

// checkStale fails when r carries an identity its object no longer answers to.
func checkStale[T v1alpha1.Resource](ctx context.Context, r T, exists func(context.Context, T) (bool, error)) error {
	if !r.IsDefined() {
		return nil
	}
	ok, err := exists(ctx, r)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", r.Identity(), ErrStale)
	}
	return nil
}

// Delete removes every defined resource in m in reverse dependency order:
// nodes (stopped first, then their cloud-init seed), volumes, networks.
// Objects that are already gone are skipped. Handles keep their identity;
// callers that persist m should clear the status of deleted handles.
func (d *Driver) Delete(ctx context.Context, m *loader.Manifest) error {
	for _, n := range m.Nodes {
		if err := d.deleteNode(ctx, n); err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	for _, vol := range m.Volumes {
		if !vol.IsDefined() {
			continue
		}
		exists, err := d.volumes.Exists(ctx, vol)
		if err != nil {
			return fmt.Errorf("volume %s: %w", vol.Name, err)
		}
		if exists {
			if err := d.volumes.Delete(ctx, vol); err != nil {
				return fmt.Errorf("volume %s: %w", vol.Name, err)
			}
		}
	}
	for _, net := range m.Networks {
		if err := d.deleteNetwork(ctx, net); err != nil {
			return fmt.Errorf("network %s: %w", net.Name, err)
		}
	}
	return nil
}

func (d *Driver) deleteNode(ctx context.Context, n *v1alpha1.Node) error {
	if n.IsDefined() {
		exists, err := d.nodes.Exists(ctx, n)
		if err != nil {
			return err
		}
		if exists {
			active, err := d.nodes.Active(ctx, n)
			if err != nil {
				return err
			}
			if active {
				if err := d.nodes.Destroy(ctx, n); err != nil {
					return err
				}
			}
			if err := d.nodes.Undefine(ctx, n); err != nil {
				return err
			}
		}
	}
	return d.RemoveCloudInit(ctx, n)
}

func (d *Driver) deleteNetwork(ctx context.Context, net *v1alpha1.Network) error {
	if !net.IsDefined() {
		return nil
	}
	exists, err := d.networks.Exists(ctx, net)
	if err != nil || !exists {
		return err
	}
	active, err := d.networks.Active(ctx, net)
	if err != nil {
		return err
	}
	if active {
		if err := d.networks.Destroy(ctx, net); err != nil {
			return err
		}
	}
	return d.networks.Undefine(ctx, net)
}

// Refresh updates the observed status of every defined handle in m.
// Handles whose objects are gone are logged and left as they are.
func (d *Driver) Refresh(ctx context.Context, m *loader.Manifest) error {
	for _, n := range m.Nodes {
		if !n.IsDefined() {
			continue
		}
		if _, err := d.nodes.State(ctx, n); err != nil {
			if d.missing(err, n) {
				continue
			}
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
		_, ok, err := d.nodes.VNCPort(ctx, n)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
		if !ok {
			n.Status.VNCPort = ""
		}
	}
	for _, net := range m.Networks {
		if !net.IsDefined() {
			continue
		}
		if _, err := d.networks.Active(ctx, net); err != nil {
			if d.missing(err, net) {
				continue
			}
			return fmt.Errorf("network %s: %w", net.Name, err)
		}
		if _, err := d.networks.BridgeName(ctx, net); err != nil {
			return fmt.Errorf("network %s: %w", net.Name, err)
		}
	}
	for _, vol := range m.Volumes {
		if !vol.IsDefined() {
			continue
		}
		if _, err := d.volumes.Path(ctx, vol); err != nil {
			if d.missing(err, vol) {
				continue
			}
			return fmt.Errorf("volume %s: %w", vol.Name, err)
		}
		if _, err := d.volumes.Capacity(ctx, vol); err != nil {
			return fmt.Errorf("volume %s: %w", vol.Name, err)
		}
		if _, err := d.volumes.Allocation(ctx, vol); err != nil {
			return fmt.Errorf("volume %s: %w", vol.Name, err)
		}
	}
	return nil
}

func (d *Driver) missing(err error, r v1alpha1.Resource) bool {
	if !retry.IsNotFound(err) {
		return false
	}
	d.log.WithFields(logrus.Fields{
		"name":     r.GetName(),
		"identity": r.Identity(),
	}).Warn("Warning: resource no longer exists")
	return true
}
