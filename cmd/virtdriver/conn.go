package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	vlibvirt "github.com/jbweber/virtdriver/internal/libvirt"
	"github.com/jbweber/virtdriver/internal/retry"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fmt.Println("Testing libvirt connection...")

		client, err := vlibvirt.Connect(ctx, vlibvirt.Options{
			URI:     cfg.Connection.URI,
			Socket:  cfg.Connection.Socket,
			Timeout: cfg.Connection.Timeout,
			Policy:  retry.New(cfg.Retry, vlibvirt.Classify, retry.WithLogger(log)),
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		v, err := client.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}
		fmt.Printf("✓ Libvirt version: %s\n", v)

		hostname, err := client.Hostname(ctx)
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)
		fmt.Printf("✓ Connection URI: %s\n", client.URI())

		fmt.Println("\nConnection test successful!")
		return nil
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show the guests the hypervisor can run",
	Long: `Show each guest architecture offered by the hypervisor together with
its domain types and device model emulator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		caps, err := d.Capabilities(ctx)
		if err != nil {
			return err
		}

		if caps.Host.CPU != nil {
			fmt.Printf("Host arch: %s\n\n", caps.Host.CPU.Arch)
		}
		fmt.Printf("%-12s %-10s %s\n", "ARCH", "TYPE", "EMULATOR")
		for _, guest := range caps.Guests {
			for _, dom := range guest.Arch.Domains {
				emulator, err := vlibvirt.FindEmulator(caps, guest.Arch.Name, dom.Type)
				if err != nil {
					emulator = "-"
				}
				fmt.Printf("%-12s %-10s %s\n", guest.Arch.Name, dom.Type, emulator)
			}
		}
		return nil
	},
}
