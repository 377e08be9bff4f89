package driver

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

var (
	errNoDomain  = libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found"}
	errNoNetwork = libvirt.Error{Code: uint32(libvirt.ErrNoNetwork), Message: "Network not found"}
	errNoPool    = libvirt.Error{Code: uint32(libvirt.ErrNoStoragePool), Message: "Storage pool not found"}
	errNoVol     = libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found"}
)

type fakeDomain struct {
	dom    libvirt.Domain
	xml    string
	active bool
}

type fakeNetwork struct {
	net    libvirt.Network
	xml    string
	active bool
}

type fakePool struct {
	pool   libvirt.StoragePool
	path   string
	active bool
}

type fakeVolume struct {
	vol      libvirt.StorageVol
	capacity uint64
	data     []byte
}

// fakeEndpoint is an in-memory hypervisor implementing Endpoint.
type fakeEndpoint struct {
	mu sync.Mutex

	domains  map[libvirt.UUID]*fakeDomain
	networks map[libvirt.UUID]*fakeNetwork
	pools    map[string]*fakePool
	volumes  map[string]*fakeVolume

	// failOn makes the named call fail once with the given error
	failOn map[string]error

	calls  []string
	closed int
}

func newFakeEndpoint() *fakeEndpoint {
	f := &fakeEndpoint{
		domains:  make(map[libvirt.UUID]*fakeDomain),
		networks: make(map[libvirt.UUID]*fakeNetwork),
		pools:    make(map[string]*fakePool),
		volumes:  make(map[string]*fakeVolume),
		failOn:   make(map[string]error),
	}
	f.addPool("default", "/var/lib/libvirt/images")
	return f
}

func (f *fakeEndpoint) addPool(name, dir string) {
	f.pools[name] = &fakePool{pool: libvirt.StoragePool{Name: name}, path: dir, active: true}
}

func (f *fakeEndpoint) record(call string) error {
	f.calls = append(f.calls, call)
	if err, ok := f.failOn[call]; ok {
		delete(f.failOn, call)
		return err
	}
	return nil
}

func (f *fakeEndpoint) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeEndpoint) volumeByName(pool, name string) (*fakeVolume, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[path.Join(f.pools[pool].path, name)]
	return v, ok
}

func (f *fakeEndpoint) forgetNetworks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks = make(map[libvirt.UUID]*fakeNetwork)
}

func newUUID() libvirt.UUID {
	return libvirt.UUID(uuid.New())
}

func (f *fakeEndpoint) Capabilities(context.Context) (*libvirtxml.Caps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Capabilities"); err != nil {
		return nil, err
	}
	return &libvirtxml.Caps{}, nil
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeEndpoint) Emulator(_ context.Context, arch, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Emulator"); err != nil {
		return "", err
	}
	return "/usr/bin/qemu-system-" + arch, nil
}

func (f *fakeEndpoint) domain(id libvirt.UUID) (*fakeDomain, error) {
	d, ok := f.domains[id]
	if !ok {
		return nil, errNoDomain
	}
	return d, nil
}

func (f *fakeEndpoint) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainLookupByUUID"); err != nil {
		return libvirt.Domain{}, err
	}
	d, err := f.domain(id)
	if err != nil {
		return libvirt.Domain{}, err
	}
	return d.dom, nil
}

func (f *fakeEndpoint) DomainDefineXML(xml string) (libvirt.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainDefineXML"); err != nil {
		return libvirt.Domain{}, err
	}
	var desc libvirtxml.Domain
	if err := desc.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, err
	}
	dom := libvirt.Domain{Name: desc.Name, UUID: newUUID()}
	f.domains[dom.UUID] = &fakeDomain{dom: dom, xml: xml}
	return dom, nil
}

func (f *fakeEndpoint) DomainIsActive(dom libvirt.Domain) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainIsActive"); err != nil {
		return false, err
	}
	d, err := f.domain(dom.UUID)
	if err != nil {
		return false, err
	}
	return d.active, nil
}

func (f *fakeEndpoint) DomainState(dom libvirt.Domain) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainState"); err != nil {
		return 0, err
	}
	d, err := f.domain(dom.UUID)
	if err != nil {
		return 0, err
	}
	if d.active {
		return int32(libvirt.DomainRunning), nil
	}
	return int32(libvirt.DomainShutoff), nil
}

func (f *fakeEndpoint) DomainXMLDesc(dom libvirt.Domain) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainXMLDesc"); err != nil {
		return "", err
	}
	d, err := f.domain(dom.UUID)
	if err != nil {
		return "", err
	}
	if !d.active {
		return d.xml, nil
	}
	var desc libvirtxml.Domain
	if err := desc.Unmarshal(d.xml); err != nil {
		return "", err
	}
	if desc.Devices != nil {
		for i := range desc.Devices.Graphics {
			if desc.Devices.Graphics[i].VNC != nil {
				desc.Devices.Graphics[i].VNC.Port = 5900
			}
		}
	}
	return desc.Marshal()
}

func (f *fakeEndpoint) setDomainActive(call string, dom libvirt.Domain, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call); err != nil {
		return err
	}
	d, err := f.domain(dom.UUID)
	if err != nil {
		return err
	}
	d.active = active
	return nil
}

func (f *fakeEndpoint) DomainCreate(dom libvirt.Domain) error {
	return f.setDomainActive("DomainCreate", dom, true)
}

func (f *fakeEndpoint) DomainDestroy(dom libvirt.Domain) error {
	return f.setDomainActive("DomainDestroy", dom, false)
}

func (f *fakeEndpoint) DomainShutdown(dom libvirt.Domain) error {
	return f.setDomainActive("DomainShutdown", dom, false)
}

func (f *fakeEndpoint) DomainUndefine(dom libvirt.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DomainUndefine"); err != nil {
		return err
	}
	if _, err := f.domain(dom.UUID); err != nil {
		return err
	}
	delete(f.domains, dom.UUID)
	return nil
}

func (f *fakeEndpoint) DomainReboot(dom libvirt.Domain) error {
	return f.setDomainActive("DomainReboot", dom, true)
}

func (f *fakeEndpoint) DomainReset(dom libvirt.Domain) error {
	return f.setDomainActive("DomainReset", dom, true)
}

func (f *fakeEndpoint) DomainSuspend(dom libvirt.Domain) error {
	return f.setDomainActive("DomainSuspend", dom, true)
}

func (f *fakeEndpoint) DomainResume(dom libvirt.Domain) error {
	return f.setDomainActive("DomainResume", dom, true)
}

func (f *fakeEndpoint) DomainSnapshotNames(libvirt.Domain) ([]string, error) {
	return nil, nil
}

func (f *fakeEndpoint) DomainSnapshotCreateXML(dom libvirt.Domain, _ string) (libvirt.DomainSnapshot, error) {
	return libvirt.DomainSnapshot{Name: "snap", Dom: dom}, nil
}

func (f *fakeEndpoint) DomainSnapshotCurrent(dom libvirt.Domain) (libvirt.DomainSnapshot, error) {
	return libvirt.DomainSnapshot{Name: "snap", Dom: dom}, nil
}

func (f *fakeEndpoint) DomainSnapshotLookupByName(dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error) {
	return libvirt.DomainSnapshot{Name: name, Dom: dom}, nil
}

func (f *fakeEndpoint) DomainRevertToSnapshot(libvirt.DomainSnapshot) error {
	return nil
}

func (f *fakeEndpoint) DomainSnapshotDelete(libvirt.DomainSnapshot) error {
	return nil
}

func (f *fakeEndpoint) DomainSendKey(libvirt.Domain, []uint32) error {
	return nil
}

func (f *fakeEndpoint) network(id libvirt.UUID) (*fakeNetwork, error) {
	n, ok := f.networks[id]
	if !ok {
		return nil, errNoNetwork
	}
	return n, nil
}

func (f *fakeEndpoint) NetworkLookupByUUID(id libvirt.UUID) (libvirt.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkLookupByUUID"); err != nil {
		return libvirt.Network{}, err
	}
	n, err := f.network(id)
	if err != nil {
		return libvirt.Network{}, err
	}
	return n.net, nil
}

func (f *fakeEndpoint) NetworkDefineXML(xml string) (libvirt.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkDefineXML"); err != nil {
		return libvirt.Network{}, err
	}
	var desc libvirtxml.Network
	if err := desc.Unmarshal(xml); err != nil {
		return libvirt.Network{}, err
	}
	n := libvirt.Network{Name: desc.Name, UUID: newUUID()}
	f.networks[n.UUID] = &fakeNetwork{net: n, xml: xml}
	return n, nil
}

func (f *fakeEndpoint) NetworkSetAutostart(n libvirt.Network, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkSetAutostart"); err != nil {
		return err
	}
	_, err := f.network(n.UUID)
	return err
}

func (f *fakeEndpoint) setNetworkActive(call string, n libvirt.Network, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call); err != nil {
		return err
	}
	fn, err := f.network(n.UUID)
	if err != nil {
		return err
	}
	fn.active = active
	return nil
}

func (f *fakeEndpoint) NetworkCreate(n libvirt.Network) error {
	return f.setNetworkActive("NetworkCreate", n, true)
}

func (f *fakeEndpoint) NetworkDestroy(n libvirt.Network) error {
	return f.setNetworkActive("NetworkDestroy", n, false)
}

func (f *fakeEndpoint) NetworkUndefine(n libvirt.Network) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkUndefine"); err != nil {
		return err
	}
	if _, err := f.network(n.UUID); err != nil {
		return err
	}
	delete(f.networks, n.UUID)
	return nil
}

func (f *fakeEndpoint) NetworkIsActive(n libvirt.Network) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkIsActive"); err != nil {
		return false, err
	}
	fn, err := f.network(n.UUID)
	if err != nil {
		return false, err
	}
	return fn.active, nil
}

func (f *fakeEndpoint) NetworkGetBridgeName(n libvirt.Network) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("NetworkGetBridgeName"); err != nil {
		return "", err
	}
	if _, err := f.network(n.UUID); err != nil {
		return "", err
	}
	return "virbr-" + n.Name, nil
}

func (f *fakeEndpoint) NetworkXMLDesc(n libvirt.Network) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn, err := f.network(n.UUID)
	if err != nil {
		return "", err
	}
	return fn.xml, nil
}

func (f *fakeEndpoint) ListAllNetworks() ([]libvirt.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListAllNetworks"); err != nil {
		return nil, err
	}
	var out []libvirt.Network
	for _, n := range f.networks {
		out = append(out, n.net)
	}
	return out, nil
}

func (f *fakeEndpoint) pool(name string) (*fakePool, error) {
	p, ok := f.pools[name]
	if !ok {
		return nil, errNoPool
	}
	return p, nil
}

func (f *fakeEndpoint) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StoragePoolLookupByName"); err != nil {
		return libvirt.StoragePool{}, err
	}
	p, err := f.pool(name)
	if err != nil {
		return libvirt.StoragePool{}, err
	}
	return p.pool, nil
}

func (f *fakeEndpoint) StoragePoolDefineXML(xml string) (libvirt.StoragePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StoragePoolDefineXML"); err != nil {
		return libvirt.StoragePool{}, err
	}
	var desc libvirtxml.StoragePool
	if err := desc.Unmarshal(xml); err != nil {
		return libvirt.StoragePool{}, err
	}
	p := &fakePool{pool: libvirt.StoragePool{Name: desc.Name}}
	if desc.Target != nil {
		p.path = desc.Target.Path
	}
	f.pools[desc.Name] = p
	return p.pool, nil
}

func (f *fakeEndpoint) StoragePoolBuild(libvirt.StoragePool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("StoragePoolBuild")
}

func (f *fakeEndpoint) StoragePoolCreate(pool libvirt.StoragePool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StoragePoolCreate"); err != nil {
		return err
	}
	p, err := f.pool(pool.Name)
	if err != nil {
		return err
	}
	p.active = true
	return nil
}

func (f *fakeEndpoint) StoragePoolSetAutostart(libvirt.StoragePool, bool) error {
	return nil
}

func (f *fakeEndpoint) StoragePoolUndefine(pool libvirt.StoragePool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pools, pool.Name)
	return nil
}

func (f *fakeEndpoint) StoragePoolIsActive(pool libvirt.StoragePool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.pool(pool.Name)
	if err != nil {
		return false, err
	}
	return p.active, nil
}

func (f *fakeEndpoint) StoragePoolRefresh(libvirt.StoragePool) error {
	return nil
}

func (f *fakeEndpoint) StorageVolCreateXML(pool libvirt.StoragePool, xml string) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StorageVolCreateXML"); err != nil {
		return libvirt.StorageVol{}, err
	}
	p, err := f.pool(pool.Name)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	var desc libvirtxml.StorageVolume
	if err := desc.Unmarshal(xml); err != nil {
		return libvirt.StorageVol{}, err
	}
	key := path.Join(p.path, desc.Name)
	if _, ok := f.volumes[key]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume %s already exists", key)
	}
	v := &fakeVolume{vol: libvirt.StorageVol{Pool: pool.Name, Name: desc.Name, Key: key}}
	if desc.Capacity != nil {
		v.capacity = desc.Capacity.Value
	}
	f.volumes[key] = v
	return v.vol, nil
}

func (f *fakeEndpoint) volume(key string) (*fakeVolume, error) {
	v, ok := f.volumes[key]
	if !ok {
		return nil, errNoVol
	}
	return v, nil
}

func (f *fakeEndpoint) StorageVolLookupByKey(key string) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StorageVolLookupByKey"); err != nil {
		return libvirt.StorageVol{}, err
	}
	v, err := f.volume(key)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	return v.vol, nil
}

func (f *fakeEndpoint) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StorageVolLookupByName"); err != nil {
		return libvirt.StorageVol{}, err
	}
	p, err := f.pool(pool.Name)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	v, err := f.volume(path.Join(p.path, name))
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	return v.vol, nil
}

func (f *fakeEndpoint) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.volume(vol.Key)
	if err != nil {
		return "", err
	}
	return v.vol.Key, nil
}

func (f *fakeEndpoint) StorageVolDelete(vol libvirt.StorageVol) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StorageVolDelete"); err != nil {
		return err
	}
	if _, err := f.volume(vol.Key); err != nil {
		return err
	}
	delete(f.volumes, vol.Key)
	return nil
}

func (f *fakeEndpoint) StorageVolGetInfo(vol libvirt.StorageVol) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.volume(vol.Key)
	if err != nil {
		return 0, 0, err
	}
	return v.capacity, uint64(len(v.data)), nil
}

func (f *fakeEndpoint) StorageVolXMLDesc(vol libvirt.StorageVol) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.volume(vol.Key); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<volume><name>%s</name></volume>`, vol.Name), nil
}

func (f *fakeEndpoint) StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StorageVolUpload"); err != nil {
		return err
	}
	v, err := f.volume(vol.Key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return err
	}
	if offset != 0 || uint64(len(data)) != length {
		return fmt.Errorf("short upload: %d of %d bytes at offset %d", len(data), length, offset)
	}
	v.data = data
	return nil
}
