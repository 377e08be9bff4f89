package descriptor

import (
	"fmt"
	"net/netip"
	"strings"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// NetworkXML renders the network descriptor for net.
func (Builder) NetworkXML(net *v1alpha1.Network) (string, error) {
	if net == nil {
		return "", fmt.Errorf("network cannot be nil")
	}
	if net.Name == "" {
		return "", fmt.Errorf("network name is required")
	}

	x := &libvirtxml.Network{Name: net.Name}

	if net.Spec.Bridge != "" {
		x.Bridge = &libvirtxml.NetworkBridge{
			Name:  net.Spec.Bridge,
			STP:   "on",
			Delay: "0",
		}
	}

	switch net.Spec.Forward {
	case "", v1alpha1.ForwardIsolated:
	case v1alpha1.ForwardNAT, v1alpha1.ForwardRoute:
		x.Forward = &libvirtxml.NetworkForward{Mode: net.Spec.Forward}
	default:
		return "", fmt.Errorf("unsupported forward mode %q", net.Spec.Forward)
	}

	if net.Spec.CIDR != "" {
		prefix, err := netip.ParsePrefix(net.Spec.CIDR)
		if err != nil {
			return "", fmt.Errorf("invalid cidr %q: %w", net.Spec.CIDR, err)
		}
		ip := libvirtxml.NetworkIP{
			Address: prefix.Addr().String(),
			Prefix:  uint(prefix.Bits()),
		}
		if prefix.Addr().Is6() {
			ip.Family = "ipv6"
		}
		if d := net.Spec.DHCP; d != nil {
			if err := checkRange(prefix, d); err != nil {
				return "", err
			}
			ip.DHCP = &libvirtxml.NetworkDHCP{
				Ranges: []libvirtxml.NetworkDHCPRange{{Start: d.Start, End: d.End}},
			}
		}
		x.IPs = []libvirtxml.NetworkIP{ip}
	} else if net.Spec.DHCP != nil {
		return "", fmt.Errorf("dhcp range requires a cidr")
	}

	xml, err := x.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}
	return xml, nil
}

func checkRange(prefix netip.Prefix, d *v1alpha1.DHCPRange) error {
	start, err := netip.ParseAddr(d.Start)
	if err != nil {
		return fmt.Errorf("invalid dhcp start %q: %w", d.Start, err)
	}
	end, err := netip.ParseAddr(d.End)
	if err != nil {
		return fmt.Errorf("invalid dhcp end %q: %w", d.End, err)
	}
	if !prefix.Contains(start) || !prefix.Contains(end) {
		return fmt.Errorf("dhcp range %s-%s outside %s", d.Start, d.End, prefix.Masked())
	}
	if end.Less(start) {
		return fmt.Errorf("dhcp range %s-%s is reversed", d.Start, d.End)
	}
	return nil
}

// VolumeXML renders the storage volume descriptor for vol.
func (Builder) VolumeXML(vol *v1alpha1.Volume) (string, error) {
	if vol == nil {
		return "", fmt.Errorf("volume cannot be nil")
	}
	if vol.Name == "" {
		return "", fmt.Errorf("volume name is required")
	}

	format := vol.Spec.Format
	if format == "" {
		format = v1alpha1.DefaultVolumeFormat
	}
	switch format {
	case "qcow2", "raw", "iso":
	default:
		return "", fmt.Errorf("invalid volume format: %s (must be qcow2, raw or iso)", format)
	}
	if vol.Spec.CapacityBytes == 0 && format != "iso" {
		return "", fmt.Errorf("volume capacity must be greater than 0")
	}

	x := &libvirtxml.StorageVolume{
		Type: "file",
		Name: vol.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: vol.Spec.CapacityBytes,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{Type: format},
		},
	}

	if vol.Spec.BackingStore != "" {
		if format != "qcow2" {
			return "", fmt.Errorf("backing stores are only supported for qcow2 format")
		}
		backingFormat := vol.Spec.BackingFormat
		if backingFormat == "" {
			backingFormat = "qcow2"
		}
		x.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path:   vol.Spec.BackingStore,
			Format: &libvirtxml.StorageVolumeTargetFormat{Type: backingFormat},
		}
	}

	return marshalStripped(x.Marshal)
}

// SnapshotXML renders a domain snapshot descriptor. Empty fields are left
// for libvirt to fill in; an empty name gets a timestamp name.
func (Builder) SnapshotXML(name, description string) (string, error) {
	x := &libvirtxml.DomainSnapshot{
		Name:        name,
		Description: description,
	}
	xml, err := x.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot XML: %w", err)
	}
	return xml, nil
}

// PoolXML renders a directory-backed storage pool rooted at path.
func PoolXML(name, path string) (string, error) {
	if name == "" || path == "" {
		return "", fmt.Errorf("pool name and path are required")
	}
	x := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Mode: "0755",
			},
		},
	}
	return marshalStripped(x.Marshal)
}

// marshalStripped marshals and drops any XML declaration.
func marshalStripped(marshal func() (string, error)) (string, error) {
	xml, err := marshal()
	if err != nil {
		return "", err
	}
	xml = strings.TrimPrefix(xml, `<?xml version="1.0" encoding="UTF-8"?>`)
	return strings.TrimSpace(xml), nil
}
