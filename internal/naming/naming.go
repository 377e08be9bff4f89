// Package naming holds the naming rules for hypervisor objects created on
// behalf of a node: derived MAC addresses and companion volume names.
package naming

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// MACPrefix is the locally administered prefix of derived MAC addresses.
const MACPrefix = "be:ef"

// MACFromIP derives a deterministic MAC address from an IPv4 address,
// with or without a prefix length.
//
// Example: 10.55.22.22 → be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	addr, err := parseAddr(ip)
	if err != nil {
		return "", err
	}
	if !addr.Is4() {
		return "", fmt.Errorf("not an IPv4 address: %s", ip)
	}
	b := addr.As4()
	return fmt.Sprintf("%s:%02x:%02x:%02x:%02x", MACPrefix, b[0], b[1], b[2], b[3]), nil
}

// AddressFromIP strips any prefix length from ip.
func AddressFromIP(ip string) (string, error) {
	addr, err := parseAddr(ip)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func parseAddr(ip string) (netip.Addr, error) {
	s := strings.TrimSpace(ip)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		return p.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid IP address: %s", ip)
	}
	return addr.Unmap(), nil
}

// VolumeNameCloudInit returns the volume name of a node's seed ISO.
// Format: {node}_cloudinit.iso
func VolumeNameCloudInit(node string) string {
	return fmt.Sprintf("%s_cloudinit.iso", node)
}

// VolumeNameDisk returns the conventional volume name for a node disk.
// Format: {node}_{device}.{format}
func VolumeNameDisk(node, device, format string) string {
	if format == "" {
		format = "qcow2"
	}
	return fmt.Sprintf("%s_%s.%s", node, device, format)
}

// SnapshotName returns a sortable snapshot name for t.
// Format: {prefix}-20060102-150405
func SnapshotName(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = "snap"
	}
	return fmt.Sprintf("%s-%s", prefix, t.UTC().Format("20060102-150405"))
}
