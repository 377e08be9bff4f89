package storage

import (
	"io"

	"github.com/digitalocean/go-libvirt"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/retry"
)

// LibvirtClient defines the endpoint operations needed for storage management.
//
// In production, this is satisfied by *vlibvirt.Client.
// In tests, this is satisfied by mock implementations.
type LibvirtClient interface {
	StoragePoolLookupByName(name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(xml string) (libvirt.StoragePool, error)
	StoragePoolBuild(pool libvirt.StoragePool) error
	StoragePoolCreate(pool libvirt.StoragePool) error
	StoragePoolSetAutostart(pool libvirt.StoragePool, autostart bool) error
	StoragePoolUndefine(pool libvirt.StoragePool) error
	StoragePoolIsActive(pool libvirt.StoragePool) (bool, error)
	StoragePoolRefresh(pool libvirt.StoragePool) error

	StorageVolCreateXML(pool libvirt.StoragePool, xml string) (libvirt.StorageVol, error)
	StorageVolLookupByKey(key string) (libvirt.StorageVol, error)
	StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error)
	StorageVolGetPath(vol libvirt.StorageVol) (string, error)
	StorageVolDelete(vol libvirt.StorageVol) error
	StorageVolGetInfo(vol libvirt.StorageVol) (capacity, allocation uint64, err error)
	StorageVolXMLDesc(vol libvirt.StorageVol) (string, error)
	StorageVolUpload(vol libvirt.StorageVol, r io.Reader, offset, length uint64) error
}

// DescriptorBuilder renders the document passed to StorageVolCreateXML.
//
// In production, this is satisfied by descriptor.Builder.
type DescriptorBuilder interface {
	VolumeXML(vol *v1alpha1.Volume) (string, error)
}

// Manager coordinates storage pool and volume operations.
type Manager struct {
	client  LibvirtClient
	builder DescriptorBuilder
	policy  *retry.Policy
	upload  *retry.Policy
	log     logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithUploadPolicy replaces the policy used for Upload. By default Upload
// uses policy bounded to retry.DefaultUploadAttempts. Upload attempts are
// never abandoned mid-stream, so any per-attempt timeout of p is dropped.
func WithUploadPolicy(p *retry.Policy) Option {
	return func(m *Manager) {
		m.upload = p
	}
}

// NewManager creates a new storage manager.
func NewManager(client LibvirtClient, builder DescriptorBuilder, policy *retry.Policy, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		builder: builder,
		policy:  policy,
		upload:  policy.WithAttempts(retry.DefaultUploadAttempts),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.upload = m.upload.WithoutAttemptTimeout()
	return m
}
