// Package descriptor renders resource handles into libvirt XML descriptors.
//
// Builder is stateless; its zero value is ready to use.
package descriptor

import (
	"fmt"
	"strings"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/metadata"
	"github.com/jbweber/virtdriver/internal/naming"
)

// Builder renders node, network, volume and snapshot descriptors.
type Builder struct{}

// NodeXML renders the domain descriptor for node using emulator as the
// device model binary.
func (Builder) NodeXML(node *v1alpha1.Node, emulator string) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node cannot be nil")
	}
	if node.Name == "" {
		return "", fmt.Errorf("node name is required")
	}
	if node.Spec.VCPUs <= 0 {
		return "", fmt.Errorf("vcpus must be > 0, got %d", node.Spec.VCPUs)
	}
	if node.Spec.MemoryMiB <= 0 {
		return "", fmt.Errorf("memoryMiB must be > 0, got %d", node.Spec.MemoryMiB)
	}

	hypervisor := node.Spec.Hypervisor
	if hypervisor == "" {
		hypervisor = v1alpha1.DefaultHypervisor
	}
	arch := node.Spec.Architecture
	if arch == "" {
		arch = v1alpha1.DefaultArchitecture
	}

	domain := &libvirtxml.Domain{
		Type: hypervisor,
		Name: node.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(node.Spec.MemoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(node.Spec.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    arch,
				Machine: node.Spec.Machine,
				Type:    "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
			PAE:  &libvirtxml.DomainFeature{},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			Emulator: emulator,
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
		},
	}

	md, err := metadata.Element(node)
	if err != nil {
		return "", err
	}
	domain.Metadata = md

	if hypervisor == "kvm" {
		domain.CPU = &libvirtxml.DomainCPU{Mode: "host-model"}
	}

	boot := node.Spec.Boot
	if len(boot) == 0 {
		boot = []string{"hd"}
	}
	for _, dev := range boot {
		domain.OS.BootDevices = append(domain.OS.BootDevices, libvirtxml.DomainBootDevice{Dev: dev})
	}

	used := make(map[string]bool)
	for i, d := range node.Spec.Disks {
		if d.Volume == "" || d.Device == "" {
			return "", fmt.Errorf("disks[%d]: volume and device are required", i)
		}
		if used[d.Device] {
			return "", fmt.Errorf("disks[%d]: duplicate device %q", i, d.Device)
		}
		used[d.Device] = true
		domain.Devices.Disks = append(domain.Devices.Disks, diskXML(d))
	}

	if node.Spec.CloudInit != nil {
		dev, err := freeDevice("sd", used)
		if err != nil {
			return "", fmt.Errorf("cloud-init cdrom: %w", err)
		}
		domain.Devices.Disks = append(domain.Devices.Disks, diskXML(v1alpha1.DiskSpec{
			Pool:   node.CloudInitPool(),
			Volume: naming.VolumeNameCloudInit(node.Name),
			Device: dev,
			CDROM:  true,
		}))
	}

	for i, iface := range node.Spec.Interfaces {
		x, err := interfaceXML(iface)
		if err != nil {
			return "", fmt.Errorf("interfaces[%d]: %w", i, err)
		}
		domain.Devices.Interfaces = append(domain.Devices.Interfaces, x)
	}

	if node.Spec.VNC {
		domain.Devices.Graphics = []libvirtxml.DomainGraphic{
			{
				VNC: &libvirtxml.DomainGraphicVNC{
					Port:     -1,
					AutoPort: "yes",
					Listen:   "0.0.0.0",
				},
			},
		}
	}

	port := uint(0)
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainSerialTarget{Port: &port},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainConsoleTarget{Type: "serial", Port: &port},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	return xml, nil
}

func diskXML(d v1alpha1.DiskSpec) libvirtxml.DomainDisk {
	device, bus, format := "disk", "virtio", "qcow2"
	if d.CDROM {
		device, bus, format = "cdrom", "sata", "raw"
	}
	if d.Bus != "" {
		bus = d.Bus
	}
	if d.Format != "" {
		format = d.Format
	}

	pool := d.Pool
	if pool == "" {
		pool = v1alpha1.DefaultPool
	}

	disk := libvirtxml.DomainDisk{
		Device: device,
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: format,
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   pool,
				Volume: d.Volume,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: d.Device,
			Bus: bus,
		},
	}
	if d.CDROM {
		disk.ReadOnly = &libvirtxml.DomainDiskReadOnly{}
	} else {
		disk.Driver.Cache = "none"
	}
	return disk
}

func interfaceXML(iface v1alpha1.InterfaceSpec) (libvirtxml.DomainInterface, error) {
	if iface.Network == "" {
		return libvirtxml.DomainInterface{}, fmt.Errorf("network is required")
	}

	model := iface.Model
	if model == "" {
		model = "virtio"
	}

	x := libvirtxml.DomainInterface{
		Source: &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{Network: iface.Network},
		},
		Model: &libvirtxml.DomainInterfaceModel{Type: model},
	}

	mac := iface.MAC
	if mac == "" && iface.IP != "" {
		var err error
		if mac, err = naming.MACFromIP(iface.IP); err != nil {
			return x, fmt.Errorf("failed to calculate MAC address for %s: %w", iface.IP, err)
		}
	}
	if mac != "" {
		x.MAC = &libvirtxml.DomainInterfaceMAC{Address: strings.ToLower(mac)}
	}
	return x, nil
}

// freeDevice returns the first prefix+letter device name not in used.
func freeDevice(prefix string, used map[string]bool) (string, error) {
	for c := 'a'; c <= 'z'; c++ {
		dev := prefix + string(c)
		if !used[dev] {
			used[dev] = true
			return dev, nil
		}
	}
	return "", fmt.Errorf("no free %s* device", prefix)
}
