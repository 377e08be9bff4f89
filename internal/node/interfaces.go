package node

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/keys"
)

// LibvirtClient defines the endpoint operations needed for node management.
//
// In production, this is satisfied by *vlibvirt.Client.
// In tests, this is satisfied by mock implementations.
type LibvirtClient interface {
	// Emulator resolves the device model binary from the capability document
	Emulator(ctx context.Context, arch, domainType string) (string, error)

	DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error)
	DomainDefineXML(xml string) (libvirt.Domain, error)
	DomainIsActive(dom libvirt.Domain) (bool, error)
	DomainState(dom libvirt.Domain) (int32, error)
	DomainXMLDesc(dom libvirt.Domain) (string, error)

	DomainCreate(dom libvirt.Domain) error
	DomainDestroy(dom libvirt.Domain) error
	DomainUndefine(dom libvirt.Domain) error
	DomainReboot(dom libvirt.Domain) error
	DomainReset(dom libvirt.Domain) error
	DomainSuspend(dom libvirt.Domain) error
	DomainResume(dom libvirt.Domain) error
	DomainShutdown(dom libvirt.Domain) error

	DomainSnapshotNames(dom libvirt.Domain) ([]string, error)
	DomainSnapshotCreateXML(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error)
	DomainSnapshotCurrent(dom libvirt.Domain) (libvirt.DomainSnapshot, error)
	DomainSnapshotLookupByName(dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error)
	DomainRevertToSnapshot(snap libvirt.DomainSnapshot) error
	DomainSnapshotDelete(snap libvirt.DomainSnapshot) error

	// DomainSendKey sends one key event made of keycodes pressed together
	DomainSendKey(dom libvirt.Domain, keycodes []uint32) error
}

// DescriptorBuilder renders the documents passed to DomainDefineXML and
// DomainSnapshotCreateXML.
//
// In production, this is satisfied by descriptor.Builder.
type DescriptorBuilder interface {
	NodeXML(node *v1alpha1.Node, emulator string) (string, error)
	SnapshotXML(name, description string) (string, error)
}

// KeyTranslator converts a symbolic key string into strokes.
//
// In production, this is satisfied by keys.Translator.
type KeyTranslator interface {
	Translate(s string) ([]keys.Stroke, error)
}
