package node

import (
	"context"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/virtdriver/internal/retry"
)

var errNoSnapshot = libvirt.Error{Code: uint32(libvirt.ErrNoDomainSnapshot), Message: "Domain snapshot not found"}

func TestSnapshotSelector(t *testing.T) {
	assert.True(t, Current().IsCurrent())
	assert.True(t, Named("").IsCurrent())
	assert.False(t, Named("base").IsCurrent())
	assert.Equal(t, "base", Named("base").Name())
	assert.Equal(t, "current", Current().String())
	assert.Equal(t, `"base"`, Named("base").String())
}

func TestManager_Snapshots(t *testing.T) {
	mgr, lv, _, _ := newTestManager(t)
	lv.snapshotNamesFunc = func(libvirt.Domain) ([]string, error) {
		return []string{"zeta", "alpha", "mid"}, nil
	}

	names, err := mgr.Snapshots(context.Background(), definedNode())
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestManager_CreateSnapshot(t *testing.T) {
	mgr, lv, b, _ := newTestManager(t)

	require.NoError(t, mgr.CreateSnapshot(context.Background(), definedNode(), "base", "clean install"))

	assert.Equal(t, [][2]string{{"base", "clean install"}}, b.snapshots)
	assert.Equal(t, []string{"<domainsnapshot><name>base</name></domainsnapshot>"}, lv.snapshotXMLs)
}

func TestManager_RevertSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		sel        SnapshotSelector
		wantLookup string
		wantSnap   string
	}{
		{name: "current", sel: Current(), wantLookup: "DomainSnapshotCurrent", wantSnap: "current-snap"},
		{name: "empty name is current", sel: Named(""), wantLookup: "DomainSnapshotCurrent", wantSnap: "current-snap"},
		{name: "named", sel: Named("base"), wantLookup: "DomainSnapshotLookupByName", wantSnap: "base"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, lv, _, _ := newTestManager(t)

			require.NoError(t, mgr.RevertSnapshot(context.Background(), definedNode(), tt.sel))

			assert.Equal(t, 1, lv.callCount(tt.wantLookup))
			require.Len(t, lv.revertCalls, 1)
			assert.Equal(t, tt.wantSnap, lv.revertCalls[0].Name)
		})
	}
}

func TestManager_RevertSnapshot_UnknownName(t *testing.T) {
	mgr, lv, _, _ := newTestManager(t)
	lv.snapshotLookupFunc = func(libvirt.Domain, string) (libvirt.DomainSnapshot, error) {
		return libvirt.DomainSnapshot{}, errNoSnapshot
	}

	err := mgr.RevertSnapshot(context.Background(), definedNode(), Named("missing"))

	assert.ErrorIs(t, err, retry.ErrFatal)
	assert.ErrorIs(t, err, retry.ErrNotFound)
	assert.Empty(t, lv.revertCalls, "must not revert when the snapshot does not resolve")
}

func TestManager_DeleteSnapshot(t *testing.T) {
	mgr, lv, _, _ := newTestManager(t)

	require.NoError(t, mgr.DeleteSnapshot(context.Background(), definedNode(), Named("old")))
	require.NoError(t, mgr.DeleteSnapshot(context.Background(), definedNode(), Current()))

	require.Len(t, lv.deleteCalls, 2)
	assert.Equal(t, "old", lv.deleteCalls[0].Name)
	assert.Equal(t, "current-snap", lv.deleteCalls[1].Name)
}

func TestManager_DeleteSnapshot_NoCurrent(t *testing.T) {
	mgr, lv, _, _ := newTestManager(t)
	lv.snapshotCurrentFunc = func(libvirt.Domain) (libvirt.DomainSnapshot, error) {
		return libvirt.DomainSnapshot{}, errNoSnapshot
	}

	err := mgr.DeleteSnapshot(context.Background(), definedNode(), Current())
	assert.ErrorIs(t, err, retry.ErrFatal)
	assert.Empty(t, lv.deleteCalls)
}
