package v1alpha1

// Network represents an isolated libvirt virtual network.
type Network struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec NetworkSpec `json:"spec" yaml:"spec"`

	// +optional
	Status NetworkStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// Forward modes accepted in NetworkSpec.Forward.
const (
	ForwardNAT      = "nat"
	ForwardRoute    = "route"
	ForwardIsolated = "isolated"
)

// NetworkSpec defines the attributes the network descriptor is built from.
type NetworkSpec struct {
	// Bridge is the host bridge name. libvirt picks one when empty.
	// +optional
	Bridge string `json:"bridge,omitempty" yaml:"bridge,omitempty"`

	// Forward is one of "nat", "route" or "isolated". Defaults to "isolated".
	// +optional
	Forward string `json:"forward,omitempty" yaml:"forward,omitempty"`

	// CIDR is the host address and prefix of the network (e.g. "10.10.0.1/24").
	// +optional
	CIDR string `json:"cidr,omitempty" yaml:"cidr,omitempty"`

	// +optional
	DHCP *DHCPRange `json:"dhcp,omitempty" yaml:"dhcp,omitempty"`
}

// DHCPRange is an inclusive address range served by libvirt's dnsmasq.
type DHCPRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// NetworkStatus is the observed state of a Network.
type NetworkStatus struct {
	// UUID is the libvirt network UUID, set once by Define.
	// +optional
	UUID string `json:"uuid,omitempty" yaml:"uuid,omitempty"`

	// +optional
	Bridge string `json:"bridge,omitempty" yaml:"bridge,omitempty"`

	// +optional
	Active bool `json:"active,omitempty" yaml:"active,omitempty"`
}

// Identity returns the network UUID, empty while undefined.
func (n *Network) Identity() string {
	return n.Status.UUID
}

// IsDefined reports whether Define has assigned an identity.
func (n *Network) IsDefined() bool {
	return n.Status.UUID != ""
}

// SetIdentity records the network UUID assigned by Define.
func (n *Network) SetIdentity(id string) {
	n.Status.UUID = id
}
