// Package cloudinit builds NoCloud seed images for nodes that request
// cloud-init.
//
// A seed carries three files (user-data, meta-data, network-config) on an
// ISO 9660 image labelled CIDATA.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"net/netip"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/naming"
)

// UserData is the cloud-config document, marshaled to YAML behind the
// "#cloud-config" header.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname          string    `yaml:"hostname"`
	FQDN              string    `yaml:"fqdn"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	Output            *Output   `yaml:"output,omitempty"`
}

// Chpasswd configures user password settings.
type Chpasswd struct {
	Expire bool   `yaml:"expire"`
	List   string `yaml:"list"` // "username:hash"
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig is a netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig configures one interface, matched by MAC address.
type EthernetConfig struct {
	Match       MatchConfig   `yaml:"match"`
	DHCP4       bool          `yaml:"dhcp4,omitempty"`
	Addresses   []string      `yaml:"addresses,omitempty"`
	Routes      []RouteConfig `yaml:"routes,omitempty"`
	Nameservers *Nameservers  `yaml:"nameservers,omitempty"`
}

// MatchConfig matches an interface by MAC address.
type MatchConfig struct {
	MACAddress string `yaml:"macaddress"`
}

// RouteConfig is a static route.
type RouteConfig struct {
	To  string `yaml:"to"`
	Via string `yaml:"via"`
}

// Nameservers lists DNS servers.
type Nameservers struct {
	Addresses []string `yaml:"addresses"`
}

// GenerateUserData renders the user-data file for node, including the
// "#cloud-config" header.
func GenerateUserData(node *v1alpha1.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node cannot be nil")
	}

	hostname, fqdn := hostnames(node)
	userData := UserData{
		Hostname: hostname,
		FQDN:     fqdn,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	if ci := node.Spec.CloudInit; ci != nil {
		userData.SSHAuthorizedKeys = ci.SSHKeys
		if ci.RootPasswordHash != "" {
			userData.Chpasswd = &Chpasswd{
				List: fmt.Sprintf("root:%s", ci.RootPasswordHash),
			}
		}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData renders the meta-data file for node.
//
// The instance-id is the node name, so cloud-init runs again when a node is
// undefined and defined anew under the same name.
func GenerateMetaData(node *v1alpha1.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node cannot be nil")
	}

	hostname, _ := hostnames(node)
	metaData := MetaData{
		InstanceID:    node.Name,
		LocalHostname: hostname,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}
	return string(yamlBytes), nil
}

// GenerateNetworkConfig renders the network-config file for node.
//
// Interfaces with a static IP get that address, a default route through
// their gateway (first gateway only) and their DNS servers. Interfaces with
// only a MAC use DHCP. Interfaces with neither cannot be matched and are
// left out. An empty string means there is nothing to configure.
func GenerateNetworkConfig(node *v1alpha1.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node cannot be nil")
	}

	networkConfig := NetworkConfig{
		Version:   2,
		Ethernets: make(map[string]EthernetConfig),
	}

	defaultRoute := false
	for i, iface := range node.Spec.Interfaces {
		mac := strings.ToLower(iface.MAC)
		if mac == "" && iface.IP != "" {
			var err error
			if mac, err = naming.MACFromIP(iface.IP); err != nil {
				return "", fmt.Errorf("interfaces[%d]: %w", i, err)
			}
		}
		if mac == "" {
			continue
		}

		eth := EthernetConfig{Match: MatchConfig{MACAddress: mac}}
		if iface.IP == "" {
			eth.DHCP4 = true
		} else {
			eth.Addresses = []string{iface.IP}
			if iface.Gateway != "" && !defaultRoute {
				route, err := defaultRouteVia(iface.Gateway)
				if err != nil {
					return "", fmt.Errorf("interfaces[%d]: %w", i, err)
				}
				eth.Routes = []RouteConfig{route}
				defaultRoute = true
			}
		}
		if len(iface.DNSServers) > 0 {
			eth.Nameservers = &Nameservers{Addresses: iface.DNSServers}
		}

		networkConfig.Ethernets[fmt.Sprintf("eth%d", i)] = eth
	}

	if len(networkConfig.Ethernets) == 0 {
		return "", nil
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}
	return string(yamlBytes), nil
}

func defaultRouteVia(gateway string) (RouteConfig, error) {
	gw, err := netip.ParseAddr(gateway)
	if err != nil {
		return RouteConfig{}, fmt.Errorf("invalid gateway %q: %w", gateway, err)
	}
	to := "0.0.0.0/0"
	if gw.Is6() && !gw.Is4In6() {
		to = "::/0"
	}
	return RouteConfig{To: to, Via: gw.String()}, nil
}

// hostnames returns the short hostname and FQDN. Without an FQDN both are
// the node name.
func hostnames(node *v1alpha1.Node) (string, string) {
	if ci := node.Spec.CloudInit; ci != nil && ci.FQDN != "" {
		return strings.SplitN(ci.FQDN, ".", 2)[0], ci.FQDN
	}
	return node.Name, node.Name
}
