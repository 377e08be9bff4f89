package v1alpha1

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// GroupName is the API group for virtdriver resources.
	GroupName = "virtdriver.jbweber.dev"

	// Version is the API version.
	Version = "v1alpha1"

	NodeKind    = "Node"
	NetworkKind = "Network"
	VolumeKind  = "Volume"

	// DefaultArchitecture is used when NodeSpec.Architecture is empty.
	DefaultArchitecture = "x86_64"

	// DefaultHypervisor is used when NodeSpec.Hypervisor is empty.
	DefaultHypervisor = "kvm"

	// DefaultPool is used when VolumeSpec.Pool is empty.
	DefaultPool = "default"

	// DefaultVolumeFormat is used when VolumeSpec.Format is empty.
	DefaultVolumeFormat = "qcow2"
)

var (
	// ErrNotDefined is returned for lifecycle calls on a handle that has
	// no identity yet.
	ErrNotDefined = errors.New("resource not defined")

	// ErrAlreadyDefined is returned by Define on a handle that already
	// carries an identity.
	ErrAlreadyDefined = errors.New("resource already defined")
)

// Resource is implemented by every handle type.
type Resource interface {
	GetName() string
	Identity() string
	IsDefined() bool
	SetIdentity(id string)
}

// RequireDefined returns an error wrapping ErrNotDefined when r has no identity.
func RequireDefined(kind string, r Resource) error {
	if !r.IsDefined() {
		return fmt.Errorf("%s %q: %w", strings.ToLower(kind), r.GetName(), ErrNotDefined)
	}
	return nil
}

// RequireUndefined returns an error wrapping ErrAlreadyDefined when r has an identity.
func RequireUndefined(kind string, r Resource) error {
	if r.IsDefined() {
		return fmt.Errorf("%s %q (%s): %w", strings.ToLower(kind), r.GetName(), r.Identity(), ErrAlreadyDefined)
	}
	return nil
}

func newObjectMeta(name string) ObjectMeta {
	return ObjectMeta{
		Name:              name,
		UID:               uuid.New().String(),
		CreationTimestamp: Time{Time: time.Now()},
	}
}

func typeMeta(kind string) TypeMeta {
	return TypeMeta{APIVersion: GroupName + "/" + Version, Kind: kind}
}

// NewNode creates an undefined Node handle with defaults applied.
func NewNode(name string) *Node {
	n := &Node{
		TypeMeta:   typeMeta(NodeKind),
		ObjectMeta: newObjectMeta(name),
	}
	n.Normalize()
	return n
}

// NewNetwork creates an undefined Network handle with defaults applied.
func NewNetwork(name string) *Network {
	n := &Network{
		TypeMeta:   typeMeta(NetworkKind),
		ObjectMeta: newObjectMeta(name),
	}
	n.Normalize()
	return n
}

// NewVolume creates an undefined Volume handle with defaults applied.
func NewVolume(name string) *Volume {
	v := &Volume{
		TypeMeta:   typeMeta(VolumeKind),
		ObjectMeta: newObjectMeta(name),
	}
	v.Normalize()
	return v
}

// SetDefaultAPIVersion fills in apiVersion and kind when a manifest omits them.
func SetDefaultAPIVersion(tm *TypeMeta, kind string) {
	if tm.APIVersion == "" {
		tm.APIVersion = GroupName + "/" + Version
	}
	if tm.Kind == "" {
		tm.Kind = kind
	}
}

// Normalize trims the name and applies spec defaults.
func (n *Node) Normalize() {
	n.Name = strings.TrimSpace(n.Name)
	if n.Spec.Architecture == "" {
		n.Spec.Architecture = DefaultArchitecture
	}
	if n.Spec.Hypervisor == "" {
		n.Spec.Hypervisor = DefaultHypervisor
	}
	if n.Spec.CloudInit != nil {
		n.Spec.CloudInit.FQDN = strings.ToLower(strings.TrimSpace(n.Spec.CloudInit.FQDN))
	}
}

// Normalize trims the name and applies spec defaults.
func (n *Network) Normalize() {
	n.Name = strings.TrimSpace(n.Name)
	if n.Spec.Forward == "" {
		n.Spec.Forward = ForwardIsolated
	}
}

// Normalize trims the name and applies spec defaults.
func (v *Volume) Normalize() {
	v.Name = strings.TrimSpace(v.Name)
	if v.Spec.Pool == "" {
		v.Spec.Pool = DefaultPool
	}
	if v.Spec.Format == "" {
		v.Spec.Format = DefaultVolumeFormat
	}
}

// CloudInitPool returns the pool that receives the node's seed ISO.
func (n *Node) CloudInitPool() string {
	if n.Spec.CloudInit != nil && n.Spec.CloudInit.Pool != "" {
		return n.Spec.CloudInit.Pool
	}
	for _, d := range n.Spec.Disks {
		if !d.CDROM && d.Pool != "" {
			return d.Pool
		}
	}
	return DefaultPool
}
