package storage

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

var (
	errNoPool = libvirt.Error{Code: uint32(libvirt.ErrNoStoragePool), Message: "Storage pool not found"}
	errNoVol  = libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found"}
)

// mockLibvirtClient is an in-memory storage endpoint.
type mockLibvirtClient struct {
	mu sync.Mutex

	pools   map[string]*mockPool
	volumes map[string]*mockVolume // key -> volume

	// Configurable behavior
	uploadFunc      func(vol libvirt.StorageVol, r io.Reader, offset, length uint64) error
	poolBuildFunc   func(pool libvirt.StoragePool) error
	poolIsActiveErr error

	// Call tracking
	calls       []string
	uploadCalls []uploadCall
}

type mockPool struct {
	name   string
	xml    string
	active bool
}

type mockVolume struct {
	pool       string
	name       string
	xml        string
	capacity   uint64
	allocation uint64
	data       []byte
}

type uploadCall struct {
	key    string
	offset uint64
	length uint64
	data   []byte
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:   make(map[string]*mockPool),
		volumes: make(map[string]*mockVolume),
	}
}

func (m *mockLibvirtClient) addPool(name string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[name] = &mockPool{name: name, active: active}
}

func (m *mockLibvirtClient) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockLibvirtClient) called(call string) int {
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

func volKey(pool, name string) string {
	return "/var/lib/libvirt/images/" + pool + "/" + name
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolLookupByName")
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, errNoPool
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolDefineXML")
	name := extractTagValue(xml, "name")
	if name == "" {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML: missing name")
	}
	if _, ok := m.pools[name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", name)
	}
	m.pools[name] = &mockPool{name: name, xml: xml}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolBuild")
	if m.poolBuildFunc != nil {
		return m.poolBuildFunc(pool)
	}
	return nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolCreate")
	p, ok := m.pools[pool.Name]
	if !ok {
		return errNoPool
	}
	p.active = true
	return nil
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolSetAutostart")
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolUndefine")
	delete(m.pools, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolIsActive(pool libvirt.StoragePool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolIsActive")
	if m.poolIsActiveErr != nil {
		return false, m.poolIsActiveErr
	}
	return m.pools[pool.Name].active, nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StoragePoolRefresh")
	return nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolCreateXML")
	if _, ok := m.pools[pool.Name]; !ok {
		return libvirt.StorageVol{}, errNoPool
	}
	name := extractTagValue(xml, "name")
	key := volKey(pool.Name, name)
	if _, ok := m.volumes[key]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", name)
	}
	var capacity uint64
	_, _ = fmt.Sscanf(extractTagValue(xml, "capacity"), "%d", &capacity)
	m.volumes[key] = &mockVolume{pool: pool.Name, name: name, xml: xml, capacity: capacity, allocation: 196608}
	return libvirt.StorageVol{Pool: pool.Name, Name: name, Key: key}, nil
}

func (m *mockLibvirtClient) StorageVolLookupByKey(key string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolLookupByKey")
	v, ok := m.volumes[key]
	if !ok {
		return libvirt.StorageVol{}, errNoVol
	}
	return libvirt.StorageVol{Pool: v.pool, Name: v.name, Key: key}, nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolLookupByName")
	key := volKey(pool.Name, name)
	if _, ok := m.volumes[key]; !ok {
		return libvirt.StorageVol{}, errNoVol
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name, Key: key}, nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolGetPath")
	return vol.Key, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolDelete")
	if _, ok := m.volumes[vol.Key]; !ok {
		return errNoVol
	}
	delete(m.volumes, vol.Key)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetInfo(vol libvirt.StorageVol) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolGetInfo")
	v, ok := m.volumes[vol.Key]
	if !ok {
		return 0, 0, errNoVol
	}
	return v.capacity, v.allocation, nil
}

func (m *mockLibvirtClient) StorageVolXMLDesc(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolXMLDesc")
	v, ok := m.volumes[vol.Key]
	if !ok {
		return "", errNoVol
	}
	return v.xml, nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StorageVolUpload")
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return err
	}
	m.uploadCalls = append(m.uploadCalls, uploadCall{key: vol.Key, offset: offset, length: length, data: data})
	if m.uploadFunc != nil {
		if err := m.uploadFunc(vol, r, offset, length); err != nil {
			return err
		}
	}
	if v, ok := m.volumes[vol.Key]; ok {
		v.data = data
	}
	return nil
}

// extractTagValue returns the text of the first <tag> element in xml.
func extractTagValue(xml, tag string) string {
	start := strings.Index(xml, "<"+tag)
	if start == -1 {
		return ""
	}
	open := strings.Index(xml[start:], ">")
	if open == -1 {
		return ""
	}
	rest := xml[start+open+1:]
	end := strings.Index(rest, "</"+tag+">")
	if end == -1 {
		return ""
	}
	return rest[:end]
}

// fakeBuilder renders just enough XML for the mock to parse.
type fakeBuilder struct{}

func (fakeBuilder) VolumeXML(vol *v1alpha1.Volume) (string, error) {
	if vol.Spec.CapacityBytes == 0 && vol.Spec.Format != "iso" {
		return "", fmt.Errorf("volume capacity must be greater than 0")
	}
	return fmt.Sprintf("<volume><name>%s</name><capacity unit=\"bytes\">%d</capacity><target><format type=\"%s\"/></target></volume>",
		vol.Name, vol.Spec.CapacityBytes, vol.Spec.Format), nil
}
