package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/storage"
)

var (
	uploadPool   string
	uploadFormat string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <source-path> <volume-name>",
	Short: "Import a local image into a new volume",
	Long: `Create a volume sized to a local image file and upload the file into it.

The volume format is detected from the file contents (qcow2, iso or raw)
unless --format is given. A failed upload removes the new volume.

Example:
  virtdriver upload --pool images /path/to/fedora-43.qcow2 fedora-43.qcow2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sourcePath, name := args[0], args[1]

		f, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("failed to open source image: %w", err)
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat source image: %w", err)
		}

		format := uploadFormat
		if format == "" {
			if format, err = storage.DetectFormat(f); err != nil {
				return err
			}
		}

		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		vol := v1alpha1.NewVolume(name)
		vol.Spec.Pool = uploadPool
		vol.Spec.Format = format
		vol.Spec.CapacityBytes = uint64(info.Size())
		vol.Normalize()

		if err := d.EnsurePool(ctx, vol.Spec.Pool); err != nil {
			return err
		}

		fmt.Printf("Importing %s as %s/%s (%s)...\n", sourcePath, vol.Spec.Pool, name, format)
		if err := d.Volumes().Define(ctx, vol); err != nil {
			return err
		}
		if err := d.Volumes().Upload(ctx, vol, f); err != nil {
			if derr := d.Volumes().Delete(ctx, vol); derr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to remove volume after failed upload: %v\n", derr)
			}
			return err
		}
		if err := d.Volumes().RefreshPool(ctx, vol.Spec.Pool); err != nil {
			log.WithError(err).Warn("Warning: failed to refresh pool")
		}

		fmt.Printf("✓ Volume %s imported (key %s)\n", name, vol.Status.Key)
		return nil
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage configured storage pools",
	Long: `Manage the directory-backed storage pools listed under storage.pools
in the configuration file.`,
}

var poolEnsureCmd = &cobra.Command{
	Use:   "ensure [name...]",
	Short: "Create and start configured pools",
	Long: `Define, build and start each named configured pool that does not exist
yet, and start pools that are defined but inactive. Without names every
configured pool is ensured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		names := args
		if len(names) == 0 {
			names = slices.Sorted(maps.Keys(cfg.Storage.Pools))
		}
		if len(names) == 0 {
			fmt.Println("No storage pools configured")
			return nil
		}

		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		for _, name := range names {
			if _, ok := cfg.Storage.Pools[name]; !ok {
				return fmt.Errorf("pool %s is not configured", name)
			}
			if err := d.EnsurePool(ctx, name); err != nil {
				return err
			}
			fmt.Printf("✓ Pool %s ready at %s\n", name, cfg.Storage.Pools[name])
		}
		return nil
	},
}

var poolRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Rescan a pool's directory for volumes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		if err := d.Volumes().RefreshPool(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Pool %s refreshed\n", args[0])
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadPool, "pool", v1alpha1.DefaultPool, "storage pool to create the volume in")
	uploadCmd.Flags().StringVar(&uploadFormat, "format", "", "volume format (default detected from contents)")

	poolCmd.AddCommand(poolEnsureCmd)
	poolCmd.AddCommand(poolRefreshCmd)
}
