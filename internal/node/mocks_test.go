package node

import (
	"context"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

var testUUID = libvirt.UUID{0x6f, 0x1d, 0x4c, 0x2a, 0x9b, 0x3e, 0x4f, 0x10, 0x8a, 0x7c, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

const testUUIDString = "6f1d4c2a-9b3e-4f10-8a7c-112233445566"

// mockLibvirtClient is a mock implementation of LibvirtClient for testing.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	emulatorFunc        func(arch, domainType string) (string, error)
	lookupFunc          func(id libvirt.UUID) (libvirt.Domain, error)
	defineFunc          func(xml string) (libvirt.Domain, error)
	isActiveFunc        func(dom libvirt.Domain) (bool, error)
	stateFunc           func(dom libvirt.Domain) (int32, error)
	xmlDescFunc         func(dom libvirt.Domain) (string, error)
	lifecycleFunc       func(op string, dom libvirt.Domain) error
	snapshotNamesFunc   func(dom libvirt.Domain) ([]string, error)
	snapshotCreateFunc  func(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error)
	snapshotCurrentFunc func(dom libvirt.Domain) (libvirt.DomainSnapshot, error)
	snapshotLookupFunc  func(dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error)
	snapshotRevertFunc  func(snap libvirt.DomainSnapshot) error
	snapshotDeleteFunc  func(snap libvirt.DomainSnapshot) error
	sendKeyFunc         func(dom libvirt.Domain, keycodes []uint32) error

	// Call tracking
	calls         []string
	emulatorCalls [][2]string
	defineCalls   []string
	lookupCalls   []libvirt.UUID
	revertCalls   []libvirt.DomainSnapshot
	deleteCalls   []libvirt.DomainSnapshot
	sendKeyCalls  [][]uint32
	snapshotXMLs  []string
}

// newMockLibvirtClient creates a mock whose domain exists and whose calls
// all succeed.
func newMockLibvirtClient() *mockLibvirtClient {
	dom := libvirt.Domain{Name: "test-node", UUID: testUUID}
	return &mockLibvirtClient{
		emulatorFunc: func(arch, domainType string) (string, error) {
			return "/usr/bin/qemu-system-" + arch, nil
		},
		lookupFunc: func(id libvirt.UUID) (libvirt.Domain, error) {
			return dom, nil
		},
		defineFunc: func(xml string) (libvirt.Domain, error) {
			return dom, nil
		},
		isActiveFunc: func(libvirt.Domain) (bool, error) {
			return true, nil
		},
		stateFunc: func(libvirt.Domain) (int32, error) {
			return int32(libvirt.DomainRunning), nil
		},
		xmlDescFunc: func(libvirt.Domain) (string, error) {
			return `<domain type="kvm"><name>test-node</name></domain>`, nil
		},
		lifecycleFunc: func(string, libvirt.Domain) error {
			return nil
		},
		snapshotNamesFunc: func(libvirt.Domain) ([]string, error) {
			return []string{}, nil
		},
		snapshotCreateFunc: func(d libvirt.Domain, xml string) (libvirt.DomainSnapshot, error) {
			return libvirt.DomainSnapshot{Name: "created", Dom: d}, nil
		},
		snapshotCurrentFunc: func(d libvirt.Domain) (libvirt.DomainSnapshot, error) {
			return libvirt.DomainSnapshot{Name: "current-snap", Dom: d}, nil
		},
		snapshotLookupFunc: func(d libvirt.Domain, name string) (libvirt.DomainSnapshot, error) {
			return libvirt.DomainSnapshot{Name: name, Dom: d}, nil
		},
		snapshotRevertFunc: func(libvirt.DomainSnapshot) error { return nil },
		snapshotDeleteFunc: func(libvirt.DomainSnapshot) error { return nil },
		sendKeyFunc:        func(libvirt.Domain, []uint32) error { return nil },
	}
}

func (m *mockLibvirtClient) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockLibvirtClient) callCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockLibvirtClient) Emulator(_ context.Context, arch, domainType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Emulator")
	m.emulatorCalls = append(m.emulatorCalls, [2]string{arch, domainType})
	return m.emulatorFunc(arch, domainType)
}

func (m *mockLibvirtClient) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainLookupByUUID")
	m.lookupCalls = append(m.lookupCalls, id)
	return m.lookupFunc(id)
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainDefineXML")
	m.defineCalls = append(m.defineCalls, xml)
	return m.defineFunc(xml)
}

func (m *mockLibvirtClient) DomainIsActive(dom libvirt.Domain) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainIsActive")
	return m.isActiveFunc(dom)
}

func (m *mockLibvirtClient) DomainState(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainState")
	return m.stateFunc(dom)
}

func (m *mockLibvirtClient) DomainXMLDesc(dom libvirt.Domain) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainXMLDesc")
	return m.xmlDescFunc(dom)
}

func (m *mockLibvirtClient) lifecycle(op string, dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(op)
	return m.lifecycleFunc(op, dom)
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	return m.lifecycle("DomainCreate", dom)
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	return m.lifecycle("DomainDestroy", dom)
}

func (m *mockLibvirtClient) DomainUndefine(dom libvirt.Domain) error {
	return m.lifecycle("DomainUndefine", dom)
}

func (m *mockLibvirtClient) DomainReboot(dom libvirt.Domain) error {
	return m.lifecycle("DomainReboot", dom)
}

func (m *mockLibvirtClient) DomainReset(dom libvirt.Domain) error {
	return m.lifecycle("DomainReset", dom)
}

func (m *mockLibvirtClient) DomainSuspend(dom libvirt.Domain) error {
	return m.lifecycle("DomainSuspend", dom)
}

func (m *mockLibvirtClient) DomainResume(dom libvirt.Domain) error {
	return m.lifecycle("DomainResume", dom)
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	return m.lifecycle("DomainShutdown", dom)
}

func (m *mockLibvirtClient) DomainSnapshotNames(dom libvirt.Domain) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSnapshotNames")
	return m.snapshotNamesFunc(dom)
}

func (m *mockLibvirtClient) DomainSnapshotCreateXML(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSnapshotCreateXML")
	m.snapshotXMLs = append(m.snapshotXMLs, xml)
	return m.snapshotCreateFunc(dom, xml)
}

func (m *mockLibvirtClient) DomainSnapshotCurrent(dom libvirt.Domain) (libvirt.DomainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSnapshotCurrent")
	return m.snapshotCurrentFunc(dom)
}

func (m *mockLibvirtClient) DomainSnapshotLookupByName(dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSnapshotLookupByName")
	return m.snapshotLookupFunc(dom, name)
}

func (m *mockLibvirtClient) DomainRevertToSnapshot(snap libvirt.DomainSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainRevertToSnapshot")
	m.revertCalls = append(m.revertCalls, snap)
	return m.snapshotRevertFunc(snap)
}

func (m *mockLibvirtClient) DomainSnapshotDelete(snap libvirt.DomainSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSnapshotDelete")
	m.deleteCalls = append(m.deleteCalls, snap)
	return m.snapshotDeleteFunc(snap)
}

func (m *mockLibvirtClient) DomainSendKey(dom libvirt.Domain, keycodes []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DomainSendKey")
	m.sendKeyCalls = append(m.sendKeyCalls, keycodes)
	return m.sendKeyFunc(dom, keycodes)
}

// mockBuilder records the arguments it renders.
type mockBuilder struct {
	nodeXMLFunc func(node *v1alpha1.Node, emulator string) (string, error)

	emulators []string
	snapshots [][2]string
}

func newMockBuilder() *mockBuilder {
	return &mockBuilder{
		nodeXMLFunc: func(node *v1alpha1.Node, emulator string) (string, error) {
			return "<domain><name>" + node.Name + "</name></domain>", nil
		},
	}
}

func (b *mockBuilder) NodeXML(node *v1alpha1.Node, emulator string) (string, error) {
	b.emulators = append(b.emulators, emulator)
	return b.nodeXMLFunc(node, emulator)
}

func (b *mockBuilder) SnapshotXML(name, description string) (string, error) {
	b.snapshots = append(b.snapshots, [2]string{name, description})
	return "<domainsnapshot><name>" + name + "</name></domainsnapshot>", nil
}
