package storage

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/internal/descriptor"
	"github.com/jbweber/virtdriver/internal/retry"
)

// EnsurePool makes sure a directory-backed pool called name exists and is
// running. A missing pool is defined at path, built, started and marked
// autostart; a defined but inactive pool is started.
func (m *Manager) EnsurePool(ctx context.Context, name, path string) error {
	log := m.log.WithFields(logrus.Fields{"pool": name, "path": path})

	var pool libvirt.StoragePool
	exists, err := m.policy.Exists(ctx, "pool.lookup", func(context.Context) error {
		var err error
		pool, err = m.client.StoragePoolLookupByName(name)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to look up pool %s: %w", name, err)
	}

	if exists {
		var active bool
		err := m.policy.Do(ctx, "pool.is_active", func(context.Context) error {
			var err error
			active, err = m.client.StoragePoolIsActive(pool)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to check pool %s: %w", name, err)
		}
		if active {
			return nil
		}
		log.Info("Starting inactive pool...")
		return m.policy.Do(ctx, "pool.create", func(context.Context) error {
			return m.client.StoragePoolCreate(pool)
		})
	}

	return m.createPool(ctx, name, path, log)
}

func (m *Manager) createPool(ctx context.Context, name, path string, log logrus.FieldLogger) error {
	xml, err := descriptor.PoolXML(name, path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	log.Info("Defining storage pool...")
	var pool libvirt.StoragePool
	err = m.policy.Do(ctx, "pool.define", func(context.Context) error {
		var err error
		pool, err = m.client.StoragePoolDefineXML(xml)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to define pool %s: %w", name, err)
	}

	// Build creates the target directory; undefine on failure so a retry
	// starts from scratch.
	steps := []struct {
		op   string
		call func() error
	}{
		{"pool.build", func() error { return m.client.StoragePoolBuild(pool) }},
		{"pool.create", func() error { return m.client.StoragePoolCreate(pool) }},
	}
	for _, step := range steps {
		call := step.call
		if err := m.policy.Do(ctx, step.op, func(context.Context) error { return call() }); err != nil {
			m.rollbackPool(ctx, pool, log)
			return fmt.Errorf("failed to start pool %s (%s): %w", name, step.op, err)
		}
	}

	err = m.policy.Do(ctx, "pool.set_autostart", func(context.Context) error {
		return m.client.StoragePoolSetAutostart(pool, true)
	})
	if err != nil {
		return fmt.Errorf("pool %s created but failed to set autostart: %w", name, err)
	}
	return nil
}

func (m *Manager) rollbackPool(ctx context.Context, pool libvirt.StoragePool, log logrus.FieldLogger) {
	err := m.policy.Do(ctx, "pool.undefine", func(context.Context) error {
		return m.client.StoragePoolUndefine(pool)
	})
	if err != nil && !retry.IsNotFound(err) {
		log.WithError(err).Warn("Warning: failed to undefine pool after failed start")
	}
}

// RefreshPool rescans the pool so volumes created out of band become visible.
func (m *Manager) RefreshPool(ctx context.Context, name string) error {
	pool, err := m.lookupPool(ctx, name)
	if err != nil {
		return err
	}
	return m.policy.Do(ctx, "pool.refresh", func(context.Context) error {
		return m.client.StoragePoolRefresh(pool)
	})
}
