package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EnsurePool(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*mockLibvirtClient)
		wantCalls map[string]int
		wantErr   bool
	}{
		{
			name:  "create new pool",
			setup: func(m *mockLibvirtClient) {},
			wantCalls: map[string]int{
				"StoragePoolDefineXML":    1,
				"StoragePoolBuild":        1,
				"StoragePoolCreate":       1,
				"StoragePoolSetAutostart": 1,
			},
		},
		{
			name:  "running pool is left alone",
			setup: func(m *mockLibvirtClient) { m.addPool("lab", true) },
			wantCalls: map[string]int{
				"StoragePoolIsActive":  1,
				"StoragePoolDefineXML": 0,
				"StoragePoolCreate":    0,
			},
		},
		{
			name:  "inactive pool is started",
			setup: func(m *mockLibvirtClient) { m.addPool("lab", false) },
			wantCalls: map[string]int{
				"StoragePoolDefineXML": 0,
				"StoragePoolCreate":    1,
			},
		},
		{
			name: "build failure undefines",
			setup: func(m *mockLibvirtClient) {
				m.poolBuildFunc = func(libvirt.StoragePool) error { return errors.New("permission denied") }
			},
			wantCalls: map[string]int{
				"StoragePoolBuild":        1,
				"StoragePoolUndefine":     1,
				"StoragePoolSetAutostart": 0,
			},
			wantErr: true,
		},
		{
			name:    "lookup fault",
			setup:   func(m *mockLibvirtClient) { m.addPool("lab", true); m.poolIsActiveErr = errors.New("permission denied") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, lv := newTestManager(t)
			tt.setup(lv)

			err := mgr.EnsurePool(context.Background(), "lab", "/var/lib/libvirt/images/lab")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.True(t, lv.pools["lab"].active)
			}
			for call, n := range tt.wantCalls {
				assert.Equal(t, n, lv.called(call), call)
			}
		})
	}
}

func TestManager_EnsurePool_DescriptorPath(t *testing.T) {
	mgr, lv := newTestManager(t)

	require.NoError(t, mgr.EnsurePool(context.Background(), "lab", "/srv/lab"))
	assert.Equal(t, "/srv/lab", extractTagValue(lv.pools["lab"].xml, "path"))
}

func TestManager_RefreshPool(t *testing.T) {
	mgr, lv := newTestManager(t)

	require.NoError(t, mgr.RefreshPool(context.Background(), "default"))
	assert.Equal(t, 1, lv.called("StoragePoolRefresh"))

	assert.Error(t, mgr.RefreshPool(context.Background(), "missing"))
}
