// Package storage manages libvirt storage volumes and the pools they live in.
//
// Volumes are addressed by the key libvirt assigns when Define creates them.
// Every endpoint call runs through a retry.Policy; Upload uses a policy
// with a smaller attempt bound since a retry resends the whole stream.
//
// Consumer-Side Interface:
//
// LibvirtClient lists the endpoint operations this package calls. In
// production it is satisfied by *vlibvirt.Client.
//
// Example usage:
//
//	mgr := storage.NewManager(client, descriptor.Builder{}, client.Policy())
//
//	if err := mgr.EnsurePool(ctx, "default", "/var/lib/libvirt/images"); err != nil {
//	    return err
//	}
//
//	vol := v1alpha1.NewVolume("seed.iso")
//	vol.Spec.Format = "iso"
//	if err := mgr.Define(ctx, vol); err != nil {
//	    return err
//	}
//	f, _ := os.Open("seed.iso")
//	defer f.Close()
//	if err := mgr.Upload(ctx, vol, f); err != nil {
//	    return err
//	}
package storage
