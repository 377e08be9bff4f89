package driver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/cloudinit"
	"github.com/jbweber/virtdriver/internal/naming"
	"github.com/jbweber/virtdriver/internal/retry"
	"github.com/jbweber/virtdriver/internal/storage"
)

// EnsurePool makes sure pool exists when it is one of the configured
// pools. Unconfigured pools are assumed to be managed out of band.
func (d *Driver) EnsurePool(ctx context.Context, pool string) error {
	path, ok := d.pools[pool]
	if !ok {
		return nil
	}
	return d.volumes.EnsurePool(ctx, pool, path)
}

// ProvisionCloudInit builds the node's NoCloud seed image, stores it in a
// new iso volume in the node's cloud-init pool and returns that volume.
// Nodes without cloud-init get (nil, nil).
func (d *Driver) ProvisionCloudInit(ctx context.Context, node *v1alpha1.Node) (*v1alpha1.Volume, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if node.Spec.CloudInit == nil {
		return nil, nil
	}
	log := d.log.WithField("node", node.Name)

	log.Info("Generating cloud-init ISO...")
	iso, err := cloudinit.GenerateISO(node)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cloud-init ISO: %w", err)
	}

	if err := d.RemoveCloudInit(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to remove stale cloud-init volume: %w", err)
	}

	vol := v1alpha1.NewVolume(naming.VolumeNameCloudInit(node.Name))
	vol.Spec.Pool = node.CloudInitPool()
	vol.Spec.Format = storage.FormatISO
	vol.Spec.CapacityBytes = uint64(len(iso))

	if err := d.EnsurePool(ctx, vol.Spec.Pool); err != nil {
		return nil, err
	}
	if err := d.volumes.Define(ctx, vol); err != nil {
		return nil, fmt.Errorf("failed to create cloud-init volume: %w", err)
	}
	if err := d.volumes.Upload(ctx, vol, bytes.NewReader(iso)); err != nil {
		if derr := d.volumes.Delete(ctx, vol); derr != nil {
			log.WithError(derr).Warn("Warning: failed to clean up cloud-init volume")
		}
		return nil, fmt.Errorf("failed to upload cloud-init ISO: %w", err)
	}
	return vol, nil
}

// RemoveCloudInit deletes the node's seed volume if there is one.
func (d *Driver) RemoveCloudInit(ctx context.Context, node *v1alpha1.Node) error {
	if node == nil || node.Spec.CloudInit == nil {
		return nil
	}
	vol, err := d.volumes.Lookup(ctx, node.CloudInitPool(), naming.VolumeNameCloudInit(node.Name))
	if retry.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.volumes.Delete(ctx, vol)
}
