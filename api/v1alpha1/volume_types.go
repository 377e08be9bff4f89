package v1alpha1

// Volume represents a libvirt storage volume.
//
// Volumes are identified by their storage key rather than a UUID.
type Volume struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec VolumeSpec `json:"spec" yaml:"spec"`

	// +optional
	Status VolumeStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// VolumeSpec defines the attributes the volume descriptor is built from.
type VolumeSpec struct {
	// Pool is the storage pool holding the volume. Defaults to "default".
	// +optional
	Pool string `json:"pool,omitempty" yaml:"pool,omitempty"`

	// Format is "qcow2" (default), "raw" or "iso".
	// +optional
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// CapacityBytes is the virtual size of the volume.
	CapacityBytes uint64 `json:"capacityBytes" yaml:"capacityBytes"`

	// BackingStore is an optional path of a qcow2 backing image.
	// +optional
	BackingStore string `json:"backingStore,omitempty" yaml:"backingStore,omitempty"`

	// BackingFormat is the format of BackingStore. Defaults to "qcow2".
	// +optional
	BackingFormat string `json:"backingFormat,omitempty" yaml:"backingFormat,omitempty"`
}

// VolumeStatus is the observed state of a Volume.
type VolumeStatus struct {
	// Key is the storage volume key, set once by Define.
	// +optional
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// +optional
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// CapacityBytes and AllocationBytes are the last sizes reported by the
	// hypervisor.
	// +optional
	CapacityBytes uint64 `json:"capacityBytes,omitempty" yaml:"capacityBytes,omitempty"`
	// +optional
	AllocationBytes uint64 `json:"allocationBytes,omitempty" yaml:"allocationBytes,omitempty"`
}

// Identity returns the volume key, empty while undefined.
func (v *Volume) Identity() string {
	return v.Status.Key
}

// IsDefined reports whether Define has assigned an identity.
func (v *Volume) IsDefined() bool {
	return v.Status.Key != ""
}

// SetIdentity records the volume key assigned by Define.
func (v *Volume) SetIdentity(key string) {
	v.Status.Key = key
}
