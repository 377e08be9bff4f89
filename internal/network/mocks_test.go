package network

import (
	"fmt"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

var errNoNetwork = libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "Network not found"}

// mockLibvirtClient is an in-memory network endpoint.
type mockLibvirtClient struct {
	mu sync.Mutex

	// name -> network XML
	networks map[string]string
	uuids    map[libvirt.UUID]string
	active   map[string]bool
	bridges  map[string]string

	// Configurable behavior
	listAllNetworksFunc func() ([]libvirt.Network, error)
	xmlDescFunc         func(net libvirt.Network) (string, error)

	// Call tracking
	listAllCalls   int
	xmlDescCalls   []string
	autostartCalls []bool
	calls          []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		networks: make(map[string]string),
		uuids:    make(map[libvirt.UUID]string),
		active:   make(map[string]bool),
		bridges:  make(map[string]string),
	}
}

// addNetwork registers a defined network described by xml.
func (m *mockLibvirtClient) addNetwork(name, xml string) libvirt.Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	var id libvirt.UUID
	copy(id[:], fmt.Sprintf("%-16s", name))
	m.networks[name] = xml
	m.uuids[id] = name
	return libvirt.Network{Name: name, UUID: id}
}

func (m *mockLibvirtClient) NetworkLookupByUUID(id libvirt.UUID) (libvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "NetworkLookupByUUID")
	name, ok := m.uuids[id]
	if !ok {
		return libvirt.Network{}, errNoNetwork
	}
	return libvirt.Network{Name: name, UUID: id}, nil
}

func (m *mockLibvirtClient) NetworkDefineXML(xml string) (libvirt.Network, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "NetworkDefineXML")
	m.mu.Unlock()
	return m.addNetwork(extractName(xml), xml), nil
}

func (m *mockLibvirtClient) NetworkSetAutostart(net libvirt.Network, autostart bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autostartCalls = append(m.autostartCalls, autostart)
	return nil
}

func (m *mockLibvirtClient) NetworkCreate(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "NetworkCreate")
	m.active[net.Name] = true
	return nil
}

func (m *mockLibvirtClient) NetworkDestroy(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "NetworkDestroy")
	m.active[net.Name] = false
	return nil
}

func (m *mockLibvirtClient) NetworkUndefine(net libvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "NetworkUndefine")
	delete(m.networks, net.Name)
	delete(m.uuids, net.UUID)
	return nil
}

func (m *mockLibvirtClient) NetworkIsActive(net libvirt.Network) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[net.Name], nil
}

func (m *mockLibvirtClient) NetworkGetBridgeName(net libvirt.Network) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bridges[net.Name], nil
}

func (m *mockLibvirtClient) NetworkXMLDesc(net libvirt.Network) (string, error) {
	m.mu.Lock()
	m.xmlDescCalls = append(m.xmlDescCalls, net.Name)
	fn := m.xmlDescFunc
	xml, ok := m.networks[net.Name]
	m.mu.Unlock()

	if fn != nil {
		return fn(net)
	}
	if !ok {
		return "", errNoNetwork
	}
	return xml, nil
}

func (m *mockLibvirtClient) ListAllNetworks() ([]libvirt.Network, error) {
	m.mu.Lock()
	m.listAllCalls++
	fn := m.listAllNetworksFunc
	var nets []libvirt.Network
	for id, name := range m.uuids {
		nets = append(nets, libvirt.Network{Name: name, UUID: id})
	}
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nets, nil
}

func (m *mockLibvirtClient) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAllCalls
}

func extractName(xml string) string {
	s := strings.TrimPrefix(xml, "<network><name>")
	return strings.TrimSuffix(s, "</name></network>")
}

type fakeBuilder struct{}

func (fakeBuilder) NetworkXML(net *v1alpha1.Network) (string, error) {
	if net.Name == "" {
		return "", fmt.Errorf("network name is required")
	}
	return "<network><name>" + net.Name + "</name></network>", nil
}
