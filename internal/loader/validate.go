package loader

import (
	"fmt"
	"net/netip"
	"regexp"

	"golang.org/x/crypto/ssh"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

var (
	// namePattern matches libvirt object names used by the driver.
	namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_.-]*[a-z0-9])?$`)

	// fqdnPattern requires at least two RFC 1123 labels.
	fqdnPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)
)

// Validate checks every handle and rejects duplicate names per kind.
// It does not check hypervisor resources (pools, images, bridges).
func (m *Manifest) Validate() error {
	seen := make(map[string]bool)
	unique := func(kind, name string) error {
		key := kind + "/" + name
		if seen[key] {
			return fmt.Errorf("duplicate %s %q", kind, name)
		}
		seen[key] = true
		return nil
	}

	for _, n := range m.Networks {
		if err := unique(v1alpha1.NetworkKind, n.Name); err != nil {
			return err
		}
		if err := validateNetwork(n); err != nil {
			return fmt.Errorf("network %q: %w", n.Name, err)
		}
	}
	for _, v := range m.Volumes {
		if err := unique(v1alpha1.VolumeKind, v.Spec.Pool+"/"+v.Name); err != nil {
			return err
		}
		if err := validateVolume(v); err != nil {
			return fmt.Errorf("volume %q: %w", v.Name, err)
		}
	}
	for _, n := range m.Nodes {
		if err := unique(v1alpha1.NodeKind, n.Name); err != nil {
			return err
		}
		if err := validateNode(n); err != nil {
			return fmt.Errorf("node %q: %w", n.Name, err)
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("metadata.name must start and end with alphanumeric characters and contain only alphanumeric, dots, hyphens, or underscores, got %q", name)
	}
	return nil
}

func validateNode(n *v1alpha1.Node) error {
	if err := validateName(n.Name); err != nil {
		return err
	}
	if n.Spec.VCPUs <= 0 {
		return fmt.Errorf("spec.vcpus must be greater than 0")
	}
	if n.Spec.MemoryMiB <= 0 {
		return fmt.Errorf("spec.memoryMiB must be greater than 0")
	}

	devicesSeen := make(map[string]bool)
	for i, d := range n.Spec.Disks {
		if d.Volume == "" {
			return fmt.Errorf("spec.disks[%d].volume is required", i)
		}
		if d.Device == "" {
			return fmt.Errorf("spec.disks[%d].device is required", i)
		}
		if devicesSeen[d.Device] {
			return fmt.Errorf("spec.disks[%d].device %q is duplicated", i, d.Device)
		}
		devicesSeen[d.Device] = true
	}

	ipsSeen := make(map[string]bool)
	for i, iface := range n.Spec.Interfaces {
		if err := validateInterface(iface); err != nil {
			return fmt.Errorf("spec.interfaces[%d].%w", i, err)
		}
		if iface.IP == "" {
			continue
		}
		if ipsSeen[iface.IP] {
			return fmt.Errorf("spec.interfaces[%d].ip %q is duplicated", i, iface.IP)
		}
		ipsSeen[iface.IP] = true
	}

	if n.Spec.CloudInit != nil {
		if err := validateCloudInit(n.Spec.CloudInit); err != nil {
			return fmt.Errorf("spec.cloudInit.%w", err)
		}
	}
	return nil
}

func validateInterface(iface v1alpha1.InterfaceSpec) error {
	if iface.Network == "" {
		return fmt.Errorf("network is required")
	}
	if iface.IP != "" {
		if _, err := netip.ParsePrefix(iface.IP); err != nil {
			return fmt.Errorf("ip: invalid ip/cidr format %q: %w", iface.IP, err)
		}
	}
	if iface.Gateway != "" {
		if iface.IP == "" {
			return fmt.Errorf("gateway requires a static ip")
		}
		if _, err := netip.ParseAddr(iface.Gateway); err != nil {
			return fmt.Errorf("gateway: invalid IP address %q", iface.Gateway)
		}
	}
	for j, dns := range iface.DNSServers {
		if _, err := netip.ParseAddr(dns); err != nil {
			return fmt.Errorf("dnsServers[%d] is not a valid IP address: %q", j, dns)
		}
	}
	return nil
}

func validateCloudInit(c *v1alpha1.CloudInitSpec) error {
	if c.FQDN != "" && !fqdnPattern.MatchString(c.FQDN) {
		return fmt.Errorf("fqdn must be a valid hostname with domain (e.g., host.example.com), got %q", c.FQDN)
	}
	for i, key := range c.SSHKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("sshKeys[%d] is not a valid SSH public key: %w", i, err)
		}
	}
	if c.RootPasswordHash != "" {
		if len(c.RootPasswordHash) < 10 || c.RootPasswordHash[0] != '$' {
			return fmt.Errorf("rootPasswordHash must be a valid crypt hash (should start with $)")
		}
	}
	return nil
}

func validateNetwork(n *v1alpha1.Network) error {
	if err := validateName(n.Name); err != nil {
		return err
	}
	switch n.Spec.Forward {
	case v1alpha1.ForwardNAT, v1alpha1.ForwardRoute, v1alpha1.ForwardIsolated:
	default:
		return fmt.Errorf("spec.forward must be nat, route or isolated, got %q", n.Spec.Forward)
	}
	if n.Spec.CIDR == "" {
		if n.Spec.DHCP != nil {
			return fmt.Errorf("spec.dhcp requires spec.cidr")
		}
		return nil
	}
	prefix, err := netip.ParsePrefix(n.Spec.CIDR)
	if err != nil {
		return fmt.Errorf("spec.cidr: %w", err)
	}
	if d := n.Spec.DHCP; d != nil {
		for _, s := range []string{d.Start, d.End} {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return fmt.Errorf("spec.dhcp: invalid address %q", s)
			}
			if !prefix.Contains(addr) {
				return fmt.Errorf("spec.dhcp: %s is outside %s", s, prefix.Masked())
			}
		}
	}
	return nil
}

func validateVolume(v *v1alpha1.Volume) error {
	if err := validateName(v.Name); err != nil {
		return err
	}
	switch v.Spec.Format {
	case "qcow2", "raw", "iso":
	default:
		return fmt.Errorf("spec.format must be qcow2, raw or iso, got %q", v.Spec.Format)
	}
	if v.Spec.CapacityBytes == 0 && v.Spec.Format != "iso" {
		return fmt.Errorf("spec.capacityBytes must be greater than 0")
	}
	if v.Spec.BackingStore != "" && v.Spec.Format != "qcow2" {
		return fmt.Errorf("spec.backingStore requires qcow2 format")
	}
	return nil
}
