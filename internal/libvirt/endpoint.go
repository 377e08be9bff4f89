package libvirt

import (
	"io"

	"github.com/digitalocean/go-libvirt"
)

// The methods below pass straight through to go-libvirt with every flags
// argument fixed to 0. Consumer packages declare narrow interfaces over the
// subset they call, so tests can substitute in-memory endpoints.

// Linux keycode set for DomainSendKey.
const keycodeSetLinux = 0

func (c *Client) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	return c.libvirt.DomainLookupByUUID(id)
}

func (c *Client) DomainDefineXML(xml string) (libvirt.Domain, error) {
	return c.libvirt.DomainDefineXML(xml)
}

func (c *Client) DomainIsActive(dom libvirt.Domain) (bool, error) {
	active, err := c.libvirt.DomainIsActive(dom)
	return active == 1, err
}

// DomainState returns the raw libvirt domain state.
func (c *Client) DomainState(dom libvirt.Domain) (int32, error) {
	state, _, err := c.libvirt.DomainGetState(dom, 0)
	return state, err
}

func (c *Client) DomainXMLDesc(dom libvirt.Domain) (string, error) {
	return c.libvirt.DomainGetXMLDesc(dom, 0)
}

func (c *Client) DomainCreate(dom libvirt.Domain) error {
	return c.libvirt.DomainCreate(dom)
}

func (c *Client) DomainDestroy(dom libvirt.Domain) error {
	return c.libvirt.DomainDestroy(dom)
}

func (c *Client) DomainUndefine(dom libvirt.Domain) error {
	return c.libvirt.DomainUndefine(dom)
}

func (c *Client) DomainReboot(dom libvirt.Domain) error {
	return c.libvirt.DomainReboot(dom, 0)
}

func (c *Client) DomainReset(dom libvirt.Domain) error {
	return c.libvirt.DomainReset(dom, 0)
}

func (c *Client) DomainSuspend(dom libvirt.Domain) error {
	return c.libvirt.DomainSuspend(dom)
}

func (c *Client) DomainResume(dom libvirt.Domain) error {
	return c.libvirt.DomainResume(dom)
}

func (c *Client) DomainShutdown(dom libvirt.Domain) error {
	return c.libvirt.DomainShutdown(dom)
}

// DomainSnapshotNames lists every snapshot name of dom in daemon order.
func (c *Client) DomainSnapshotNames(dom libvirt.Domain) ([]string, error) {
	num, err := c.libvirt.DomainSnapshotNum(dom, 0)
	if err != nil {
		return nil, err
	}
	if num <= 0 {
		return []string{}, nil
	}
	return c.libvirt.DomainSnapshotListNames(dom, num, 0)
}

func (c *Client) DomainSnapshotCreateXML(dom libvirt.Domain, xml string) (libvirt.DomainSnapshot, error) {
	return c.libvirt.DomainSnapshotCreateXML(dom, xml, 0)
}

func (c *Client) DomainSnapshotCurrent(dom libvirt.Domain) (libvirt.DomainSnapshot, error) {
	return c.libvirt.DomainSnapshotCurrent(dom, 0)
}

func (c *Client) DomainSnapshotLookupByName(dom libvirt.Domain, name string) (libvirt.DomainSnapshot, error) {
	return c.libvirt.DomainSnapshotLookupByName(dom, name, 0)
}

func (c *Client) DomainRevertToSnapshot(snap libvirt.DomainSnapshot) error {
	return c.libvirt.DomainRevertToSnapshot(snap, 0)
}

func (c *Client) DomainSnapshotDelete(snap libvirt.DomainSnapshot) error {
	return c.libvirt.DomainSnapshotDelete(snap, 0)
}

// DomainSendKey sends keycodes as one key event with the default hold time.
func (c *Client) DomainSendKey(dom libvirt.Domain, keycodes []uint32) error {
	return c.libvirt.DomainSendKey(dom, keycodeSetLinux, 0, keycodes, 0)
}

// ListAllNetworks returns active and inactive networks.
func (c *Client) ListAllNetworks() ([]libvirt.Network, error) {
	nets, _, err := c.libvirt.ConnectListAllNetworks(1, 0)
	return nets, err
}

func (c *Client) NetworkLookupByUUID(id libvirt.UUID) (libvirt.Network, error) {
	return c.libvirt.NetworkLookupByUUID(id)
}

func (c *Client) NetworkLookupByName(name string) (libvirt.Network, error) {
	return c.libvirt.NetworkLookupByName(name)
}

func (c *Client) NetworkDefineXML(xml string) (libvirt.Network, error) {
	return c.libvirt.NetworkDefineXML(xml)
}

func (c *Client) NetworkSetAutostart(net libvirt.Network, autostart bool) error {
	var v int32
	if autostart {
		v = 1
	}
	return c.libvirt.NetworkSetAutostart(net, v)
}

func (c *Client) NetworkCreate(net libvirt.Network) error {
	return c.libvirt.NetworkCreate(net)
}

func (c *Client) NetworkDestroy(net libvirt.Network) error {
	return c.libvirt.NetworkDestroy(net)
}

func (c *Client) NetworkUndefine(net libvirt.Network) error {
	return c.libvirt.NetworkUndefine(net)
}

func (c *Client) NetworkIsActive(net libvirt.Network) (bool, error) {
	active, err := c.libvirt.NetworkIsActive(net)
	return active == 1, err
}

func (c *Client) NetworkGetBridgeName(net libvirt.Network) (string, error) {
	return c.libvirt.NetworkGetBridgeName(net)
}

func (c *Client) NetworkXMLDesc(net libvirt.Network) (string, error) {
	return c.libvirt.NetworkGetXMLDesc(net, 0)
}

func (c *Client) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	return c.libvirt.StoragePoolLookupByName(name)
}

func (c *Client) StoragePoolDefineXML(xml string) (libvirt.StoragePool, error) {
	return c.libvirt.StoragePoolDefineXML(xml, 0)
}

func (c *Client) StoragePoolBuild(pool libvirt.StoragePool) error {
	return c.libvirt.StoragePoolBuild(pool, 0)
}

func (c *Client) StoragePoolCreate(pool libvirt.StoragePool) error {
	return c.libvirt.StoragePoolCreate(pool, 0)
}

func (c *Client) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart bool) error {
	var v int32
	if autostart {
		v = 1
	}
	return c.libvirt.StoragePoolSetAutostart(pool, v)
}

func (c *Client) StoragePoolUndefine(pool libvirt.StoragePool) error {
	return c.libvirt.StoragePoolUndefine(pool)
}

func (c *Client) StoragePoolIsActive(pool libvirt.StoragePool) (bool, error) {
	active, err := c.libvirt.StoragePoolIsActive(pool)
	return active == 1, err
}

func (c *Client) StoragePoolRefresh(pool libvirt.StoragePool) error {
	return c.libvirt.StoragePoolRefresh(pool, 0)
}

func (c *Client) StorageVolCreateXML(pool libvirt.StoragePool, xml string) (libvirt.StorageVol, error) {
	return c.libvirt.StorageVolCreateXML(pool, xml, 0)
}

func (c *Client) StorageVolLookupByKey(key string) (libvirt.StorageVol, error) {
	return c.libvirt.StorageVolLookupByKey(key)
}

func (c *Client) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	return c.libvirt.StorageVolLookupByName(pool, name)
}

func (c *Client) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	return c.libvirt.StorageVolGetPath(vol)
}

func (c *Client) StorageVolDelete(vol libvirt.StorageVol) error {
	return c.libvirt.StorageVolDelete(vol, 0)
}

// StorageVolGetInfo returns the capacity and allocation of vol in bytes.
func (c *Client) StorageVolGetInfo(vol libvirt.StorageVol) (capacity, allocation uint64, err error) {
	_, capacity, allocation, err = c.libvirt.StorageVolGetInfo(vol)
	return capacity, allocation, err
}

func (c *Client) StorageVolXMLDesc(vol libvirt.StorageVol) (string, error) {
	return c.libvirt.StorageVolGetXMLDesc(vol, 0)
}

func (c *Client) StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64) error {
	return c.libvirt.StorageVolUpload(vol, r, offset, length, 0)
}
