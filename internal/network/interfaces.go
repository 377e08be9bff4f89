package network

import (
	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// LibvirtClient defines the endpoint operations needed for network management.
//
// In production, this is satisfied by *vlibvirt.Client.
// In tests, this is satisfied by mock implementations.
type LibvirtClient interface {
	NetworkLookupByUUID(id libvirt.UUID) (libvirt.Network, error)
	NetworkDefineXML(xml string) (libvirt.Network, error)
	NetworkSetAutostart(net libvirt.Network, autostart bool) error
	NetworkCreate(net libvirt.Network) error
	NetworkDestroy(net libvirt.Network) error
	NetworkUndefine(net libvirt.Network) error
	NetworkIsActive(net libvirt.Network) (bool, error)
	NetworkGetBridgeName(net libvirt.Network) (string, error)
	NetworkXMLDesc(net libvirt.Network) (string, error)

	// ListAllNetworks returns active and inactive networks
	ListAllNetworks() ([]libvirt.Network, error)
}

// DescriptorBuilder renders the document passed to NetworkDefineXML.
//
// In production, this is satisfied by descriptor.Builder.
type DescriptorBuilder interface {
	NetworkXML(net *v1alpha1.Network) (string, error)
}
