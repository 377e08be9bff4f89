package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/loader"
	"github.com/jbweber/virtdriver/internal/output"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create and start the resources of a manifest",
	Long: `Define and start every network, volume and node in the manifest.

Networks come first, then volumes, then nodes. Nodes with a cloudInit
section get a seed ISO volume before they are defined. Identities
assigned by the hypervisor are saved back into the manifest, also when
apply fails part way.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := loadManifest()
		if err != nil {
			return err
		}
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		applyErr := d.Apply(ctx, m)
		if err := saveManifest(m); err != nil {
			return err
		}
		if applyErr != nil {
			return fmt.Errorf("apply failed: %w", applyErr)
		}

		fmt.Printf("✓ Applied %d network(s), %d volume(s), %d node(s)\n", len(m.Networks), len(m.Volumes), len(m.Nodes))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the resources of a manifest",
	Long: `Stop and remove every node, volume and network in the manifest, in
reverse order. Objects already gone are skipped. The statuses in the
manifest are cleared once everything is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := loadManifest()
		if err != nil {
			return err
		}
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		if err := d.Delete(ctx, m); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}

		clearStatus(m)
		if err := saveManifest(m); err != nil {
			return err
		}
		fmt.Println("✓ Resources deleted")
		return nil
	},
}

func clearStatus(m *loader.Manifest) {
	for _, n := range m.Nodes {
		n.Status = v1alpha1.NodeStatus{}
	}
	for _, net := range m.Networks {
		net.Status = v1alpha1.NetworkStatus{}
	}
	for _, vol := range m.Volumes {
		vol.Status = v1alpha1.VolumeStatus{}
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the observed state of a manifest's resources",
	Long: `Refresh and display the state of every resource in the manifest.

Output formats:
  -o table  Human-readable tables (default)
  -o yaml   Full YAML resources
  -o json   Full JSON resources`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := loadManifest()
		if err != nil {
			return err
		}
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		if err := d.Refresh(ctx, m); err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		sections := []func() (string, error){
			func() (string, error) { return formatter.FormatNetworks(m.Networks) },
			func() (string, error) { return formatter.FormatVolumes(m.Volumes) },
			func() (string, error) { return formatter.FormatNodes(m.Nodes) },
		}
		for _, format := range sections {
			result, err := format()
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Print(result)
		}
		return nil
	},
}
