// Package libvirt owns the connection to the libvirt daemon.
//
// It wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping)
//   - The host capability document, fetched once and memoized
//   - Classification of libvirt failures for the retry policy
//   - Flag-free pass-through methods over the RPC calls the driver uses
//
// Connection Management:
//
//	client, err := libvirt.Connect(ctx, libvirt.Options{URI: "qemu:///system"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	emulator, err := client.Emulator(ctx, "x86_64", "kvm")
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. The node, network and storage
// packages each declare the subset of Client methods they need, and *Client
// satisfies them implicitly.
package libvirt
