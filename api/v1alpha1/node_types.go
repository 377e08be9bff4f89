package v1alpha1

// Node represents a libvirt domain driven by virtdriver.
//
// The domain UUID is assigned by Define and stored in Status.UUID. Until
// then the handle is undefined and every lifecycle call on it fails with
// ErrNotDefined.
type Node struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec NodeSpec `json:"spec" yaml:"spec"`

	// +optional
	Status NodeStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// NodeSpec defines the attributes the domain descriptor is built from.
type NodeSpec struct {
	// Architecture is the guest architecture used to pick an emulator
	// from the host capabilities. Defaults to "x86_64".
	// +optional
	Architecture string `json:"architecture,omitempty" yaml:"architecture,omitempty"`

	// Hypervisor is the libvirt domain type ("kvm", "qemu"). Defaults to "kvm".
	// +optional
	Hypervisor string `json:"hypervisor,omitempty" yaml:"hypervisor,omitempty"`

	// Machine is the machine type (e.g. "q35"). Left to libvirt when empty.
	// +optional
	Machine string `json:"machine,omitempty" yaml:"machine,omitempty"`

	VCPUs int `json:"vcpus" yaml:"vcpus"`

	// MemoryMiB is the guest memory in mebibytes.
	MemoryMiB int `json:"memoryMiB" yaml:"memoryMiB"`

	// Boot lists boot devices in order ("hd", "cdrom", "network").
	// +optional
	Boot []string `json:"boot,omitempty" yaml:"boot,omitempty"`

	// +optional
	Disks []DiskSpec `json:"disks,omitempty" yaml:"disks,omitempty"`

	// +optional
	Interfaces []InterfaceSpec `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`

	// VNC attaches a VNC graphics device with an auto-assigned port.
	// +optional
	VNC bool `json:"vnc,omitempty" yaml:"vnc,omitempty"`

	// CloudInit requests a NoCloud seed ISO attached as a cdrom.
	// +optional
	CloudInit *CloudInitSpec `json:"cloudInit,omitempty" yaml:"cloudInit,omitempty"`
}

// DiskSpec attaches a storage volume to the node.
type DiskSpec struct {
	// Pool and Volume name the backing libvirt volume.
	Pool   string `json:"pool" yaml:"pool"`
	Volume string `json:"volume" yaml:"volume"`

	// Device is the target device name (e.g. "vda", "sdb").
	Device string `json:"device" yaml:"device"`

	// Bus defaults to "virtio" for disks and "sata" for cdroms.
	// +optional
	Bus string `json:"bus,omitempty" yaml:"bus,omitempty"`

	// Format is the driver type ("qcow2", "raw"). Defaults to "qcow2",
	// or "raw" for cdroms.
	// +optional
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// +optional
	CDROM bool `json:"cdrom,omitempty" yaml:"cdrom,omitempty"`
}

// InterfaceSpec attaches the node to a libvirt network.
type InterfaceSpec struct {
	// Network is the libvirt network name.
	Network string `json:"network" yaml:"network"`

	// Model defaults to "virtio".
	// +optional
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// IP is an optional static address in CIDR notation. When set, the MAC
	// address is derived from it and the cloud-init network config uses it.
	// +optional
	IP string `json:"ip,omitempty" yaml:"ip,omitempty"`

	// +optional
	Gateway string `json:"gateway,omitempty" yaml:"gateway,omitempty"`

	// +optional
	DNSServers []string `json:"dnsServers,omitempty" yaml:"dnsServers,omitempty"`

	// MAC overrides the derived address.
	// +optional
	MAC string `json:"mac,omitempty" yaml:"mac,omitempty"`
}

// CloudInitSpec configures the NoCloud seed attached to a node.
type CloudInitSpec struct {
	// FQDN is the fully qualified domain name. The hostname is the first label.
	// +optional
	FQDN string `json:"fqdn,omitempty" yaml:"fqdn,omitempty"`

	// +optional
	SSHKeys []string `json:"sshKeys,omitempty" yaml:"sshKeys,omitempty"`

	// RootPasswordHash is a crypt(3) hash applied with chpasswd.
	// +optional
	RootPasswordHash string `json:"rootPasswordHash,omitempty" yaml:"rootPasswordHash,omitempty"`

	// Pool receives the seed ISO volume. Defaults to the first disk's pool.
	// +optional
	Pool string `json:"pool,omitempty" yaml:"pool,omitempty"`
}

// NodeStatus is the observed state of a Node.
type NodeStatus struct {
	// UUID is the libvirt domain UUID, set once by Define.
	// +optional
	UUID string `json:"uuid,omitempty" yaml:"uuid,omitempty"`

	// State is the last domain state reported by the hypervisor.
	// +optional
	State string `json:"state,omitempty" yaml:"state,omitempty"`

	// VNCPort is the last VNC port observed for the running domain.
	// +optional
	VNCPort string `json:"vncPort,omitempty" yaml:"vncPort,omitempty"`
}

// Identity returns the domain UUID, empty while undefined.
func (n *Node) Identity() string {
	return n.Status.UUID
}

// IsDefined reports whether Define has assigned an identity.
func (n *Node) IsDefined() bool {
	return n.Status.UUID != ""
}

// SetIdentity records the domain UUID assigned by Define.
func (n *Node) SetIdentity(id string) {
	n.Status.UUID = id
}
