package storage

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// Define creates the volume in its pool and records the volume key.
func (m *Manager) Define(ctx context.Context, vol *v1alpha1.Volume) error {
	if vol == nil {
		return fmt.Errorf("volume cannot be nil")
	}
	if err := v1alpha1.RequireUndefined(v1alpha1.VolumeKind, vol); err != nil {
		return err
	}
	vol.Normalize()
	log := m.log.WithFields(logrus.Fields{"volume": vol.Name, "pool": vol.Spec.Pool})

	xml, err := m.builder.VolumeXML(vol)
	if err != nil {
		return fmt.Errorf("failed to build descriptor for volume %s: %w", vol.Name, err)
	}
	log.Debugf("Volume descriptor:\n%s", xml)

	pool, err := m.lookupPool(ctx, vol.Spec.Pool)
	if err != nil {
		return err
	}

	var sv libvirt.StorageVol
	err = m.policy.Do(ctx, "volume.create", func(context.Context) error {
		var err error
		sv, err = m.client.StorageVolCreateXML(pool, xml)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create volume %s: %w", vol.Name, err)
	}

	vol.SetIdentity(sv.Key)
	log.WithField("key", sv.Key).Info("Volume defined")
	return nil
}

// Exists reports whether a volume with the handle's key is known.
func (m *Manager) Exists(ctx context.Context, vol *v1alpha1.Volume) (bool, error) {
	if err := requireDefined(vol); err != nil {
		return false, err
	}
	return m.policy.Exists(ctx, "volume.lookup", func(context.Context) error {
		_, err := m.client.StorageVolLookupByKey(vol.Status.Key)
		return err
	})
}

// Path returns the volume's path on the hypervisor host.
func (m *Manager) Path(ctx context.Context, vol *v1alpha1.Volume) (string, error) {
	sv, err := m.lookup(ctx, vol)
	if err != nil {
		return "", err
	}
	var path string
	err = m.policy.Do(ctx, "volume.path", func(context.Context) error {
		var err error
		path, err = m.client.StorageVolGetPath(sv)
		return err
	})
	if err != nil {
		return "", err
	}
	vol.Status.Path = path
	return path, nil
}

// Format returns the target format type recorded in the volume's
// descriptor, e.g. "qcow2".
func (m *Manager) Format(ctx context.Context, vol *v1alpha1.Volume) (string, error) {
	sv, err := m.lookup(ctx, vol)
	if err != nil {
		return "", err
	}
	var xml string
	err = m.policy.Do(ctx, "volume.xml_desc", func(context.Context) error {
		var err error
		xml, err = m.client.StorageVolXMLDesc(sv)
		return err
	})
	if err != nil {
		return "", err
	}

	var desc libvirtxml.StorageVolume
	if err := desc.Unmarshal(xml); err != nil {
		return "", fmt.Errorf("failed to parse descriptor of volume %s: %w", vol.Name, err)
	}
	if desc.Target == nil || desc.Target.Format == nil || desc.Target.Format.Type == "" {
		return "", fmt.Errorf("volume %s has no target format", vol.Name)
	}
	return desc.Target.Format.Type, nil
}

// Capacity returns the volume's logical size in bytes.
func (m *Manager) Capacity(ctx context.Context, vol *v1alpha1.Volume) (uint64, error) {
	capacity, _, err := m.info(ctx, vol)
	if err != nil {
		return 0, err
	}
	vol.Status.CapacityBytes = capacity
	return capacity, nil
}

// Allocation returns the bytes actually allocated on the host for the volume.
func (m *Manager) Allocation(ctx context.Context, vol *v1alpha1.Volume) (uint64, error) {
	_, allocation, err := m.info(ctx, vol)
	if err != nil {
		return 0, err
	}
	vol.Status.AllocationBytes = allocation
	return allocation, nil
}

func (m *Manager) info(ctx context.Context, vol *v1alpha1.Volume) (capacity, allocation uint64, err error) {
	sv, err := m.lookup(ctx, vol)
	if err != nil {
		return 0, 0, err
	}
	err = m.policy.Do(ctx, "volume.info", func(context.Context) error {
		var err error
		capacity, allocation, err = m.client.StorageVolGetInfo(sv)
		return err
	})
	return capacity, allocation, err
}

// Delete removes the volume and its data.
func (m *Manager) Delete(ctx context.Context, vol *v1alpha1.Volume) error {
	sv, err := m.lookup(ctx, vol)
	if err != nil {
		return err
	}
	err = m.policy.Do(ctx, "volume.delete", func(context.Context) error {
		return m.client.StorageVolDelete(sv)
	})
	if err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", vol.Name, err)
	}
	m.log.WithField("volume", vol.Name).Info("Volume deleted")
	return nil
}

// Lookup returns a defined handle for the existing volume name in pool.
// A missing volume is a NotFound failure (retry.IsNotFound).
func (m *Manager) Lookup(ctx context.Context, pool, name string) (*v1alpha1.Volume, error) {
	p, err := m.lookupPool(ctx, pool)
	if err != nil {
		return nil, err
	}
	var sv libvirt.StorageVol
	err = m.policy.Do(ctx, "volume.lookup_by_name", func(context.Context) error {
		var err error
		sv, err = m.client.StorageVolLookupByName(p, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("volume %s/%s: %w", pool, name, err)
	}

	vol := v1alpha1.NewVolume(name)
	vol.Spec.Pool = pool
	vol.SetIdentity(sv.Key)
	return vol, nil
}

func (m *Manager) lookup(ctx context.Context, vol *v1alpha1.Volume) (libvirt.StorageVol, error) {
	if err := requireDefined(vol); err != nil {
		return libvirt.StorageVol{}, err
	}
	var sv libvirt.StorageVol
	err := m.policy.Do(ctx, "volume.lookup", func(context.Context) error {
		var err error
		sv, err = m.client.StorageVolLookupByKey(vol.Status.Key)
		return err
	})
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("volume %s: %w", vol.Name, err)
	}
	return sv, nil
}

func (m *Manager) lookupPool(ctx context.Context, name string) (libvirt.StoragePool, error) {
	var pool libvirt.StoragePool
	err := m.policy.Do(ctx, "pool.lookup", func(context.Context) error {
		var err error
		pool, err = m.client.StoragePoolLookupByName(name)
		return err
	})
	if err != nil {
		return libvirt.StoragePool{}, fmt.Errorf("pool %s: %w", name, err)
	}
	return pool, nil
}

func requireDefined(vol *v1alpha1.Volume) error {
	if vol == nil {
		return fmt.Errorf("volume cannot be nil")
	}
	return v1alpha1.RequireDefined(v1alpha1.VolumeKind, vol)
}
