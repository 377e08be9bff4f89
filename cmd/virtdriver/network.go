package main

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"
)

var (
	refreshAllocated bool
	checkPrefix      string
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Show address ranges claimed by defined networks",
	Long: `List the address ranges configured on every network the hypervisor
knows, active or not. Use these to pick a free range for a new network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDriver(d)

		if checkPrefix != "" {
			p, err := netip.ParsePrefix(checkPrefix)
			if err != nil {
				return fmt.Errorf("invalid cidr %q: %w", checkPrefix, err)
			}
			taken, err := d.Networks().IsAllocated(ctx, p.Masked())
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%s overlaps an allocated network", p.Masked())
			}
			fmt.Printf("✓ %s is free\n", p.Masked())
			return nil
		}

		get := d.Networks().AllocatedNetworks
		if refreshAllocated {
			get = d.Networks().RefreshAllocatedNetworks
		}
		prefixes, err := get(ctx)
		if err != nil {
			return err
		}
		if len(prefixes) == 0 {
			fmt.Println("No allocated networks found")
			return nil
		}
		for _, p := range prefixes {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	networksCmd.Flags().BoolVar(&refreshAllocated, "refresh", false, "rescan instead of using the cached result")
	networksCmd.Flags().StringVar(&checkPrefix, "check", "", "report whether this cidr overlaps an allocated network")
}
