package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/driver"
	"github.com/jbweber/virtdriver/internal/naming"
	"github.com/jbweber/virtdriver/internal/node"
	"github.com/jbweber/virtdriver/internal/output"
)

// withNode loads the manifest, resolves name to its node and connects.
func withNode(cmd *cobra.Command, name string, fn func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error) error {
	ctx := cmd.Context()
	m, err := loadManifest()
	if err != nil {
		return err
	}
	n := m.Node(strings.ToLower(name))
	if n == nil {
		return fmt.Errorf("node %s not found in %s", name, manifestPath)
	}
	d, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeDriver(d)
	return fn(ctx, d, n)
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Control the power state of a node",
	Long: `Control a node defined by the manifest.

Nodes are addressed by the identity recorded in the manifest, so the
manifest must have been applied first.`,
}

type nodeAction struct {
	use   string
	short string
	done  string
	call  func(m *node.Manager) func(context.Context, *v1alpha1.Node) error
}

var nodeActions = []nodeAction{
	{"start", "Start a node", "started", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Create }},
	{"stop", "Ask a node's guest to power off", "shutting down", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Shutdown }},
	{"destroy", "Forcibly stop a node", "destroyed", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Destroy }},
	{"reboot", "Ask a node's guest to reboot", "rebooting", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Reboot }},
	{"reset", "Hard-reset a node", "reset", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Reset }},
	{"suspend", "Pause a node's vCPUs", "suspended", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Suspend }},
	{"resume", "Resume a suspended node", "resumed", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Resume }},
	{"undefine", "Remove a node's persistent definition", "undefined", func(m *node.Manager) func(context.Context, *v1alpha1.Node) error { return m.Undefine }},
}

func init() {
	for _, a := range nodeActions {
		nodeCmd.AddCommand(&cobra.Command{
			Use:   a.use + " <name>",
			Short: a.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
					if err := a.call(d.Nodes())(ctx, n); err != nil {
						return err
					}
					fmt.Printf("✓ Node %s %s\n", n.Name, a.done)
					return nil
				})
			},
		})
	}

	nodeCmd.AddCommand(nodeRecordedCmd)

	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRevertCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotCreateCmd.Flags().StringVar(&snapshotDescription, "description", "", "snapshot description")
	sendKeysCmd.Flags().DurationVar(&keyPause, "pause", 0, "delay for each <wait> token (default from configuration)")
}

var nodeRecordedCmd = &cobra.Command{
	Use:   "recorded <name>",
	Short: "Show the manifest a node's domain was defined from",
	Long: `Show the node manifest recorded in the domain's metadata at define
time. Use -o yaml to compare it with the manifest file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			rec, err := d.Nodes().Recorded(ctx, n)
			if err != nil {
				return err
			}
			rec.Status = n.Status
			formatter, err := output.NewFormatter(output.Options{
				Format:    output.Format(outputFormat),
				NoHeaders: noHeaders,
			})
			if err != nil {
				return err
			}
			result, err := formatter.FormatNodes([]*v1alpha1.Node{rec})
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Print(result)
			return nil
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage node snapshots",
	Long: `List, create, revert to and delete snapshots of a node.

Commands that take a snapshot name accept "current" for the node's
current snapshot.`,
}

var snapshotDescription string

var snapshotListCmd = &cobra.Command{
	Use:   "list <node>",
	Short: "List a node's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			names, err := d.Nodes().Snapshots(ctx, n)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Printf("No snapshots found for node %s\n", n.Name)
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		})
	},
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <node> [name]",
	Short: "Create a snapshot",
	Long: `Create a snapshot of a node. Without a name the snapshot is named
after the current time, e.g. snap-20260304-050607.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := naming.SnapshotName("", time.Now())
		if len(args) == 2 {
			name = args[1]
		}
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			if err := d.Nodes().CreateSnapshot(ctx, n, name, snapshotDescription); err != nil {
				return err
			}
			fmt.Printf("✓ Snapshot %s of node %s created\n", name, n.Name)
			return nil
		})
	},
}

func selector(name string) node.SnapshotSelector {
	if name == "current" {
		return node.Current()
	}
	return node.Named(name)
}

var snapshotRevertCmd = &cobra.Command{
	Use:   "revert <node> <name|current>",
	Short: "Revert a node to a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := selector(args[1])
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			if err := d.Nodes().RevertSnapshot(ctx, n, sel); err != nil {
				return err
			}
			fmt.Printf("✓ Node %s reverted to snapshot %s\n", n.Name, sel)
			return nil
		})
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <node> <name|current>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := selector(args[1])
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			if err := d.Nodes().DeleteSnapshot(ctx, n, sel); err != nil {
				return err
			}
			fmt.Printf("✓ Snapshot %s of node %s deleted\n", sel, n.Name)
			return nil
		})
	},
}

var keyPause time.Duration

var sendKeysCmd = &cobra.Command{
	Use:   "send-keys <node> <keys>",
	Short: "Type keys into a node's console",
	Long: `Send keystrokes to a running node.

Plain characters are typed as-is. Named keys go in angle brackets, e.g.
<enter>, <esc> or <f2>; keys joined with + are pressed together, as in
<ctrl+alt+delete>. <wait> pauses before the next key, and <lt> and <gt>
type literal angle brackets.

Example:
  virtdriver send-keys -f lab.yaml web 'root<enter><wait>'`,
	Args: cobra.ExactArgs(2),
	PreRun: func(cmd *cobra.Command, args []string) {
		if keyPause > 0 {
			cfg.Keys.Pause = keyPause
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, args[0], func(ctx context.Context, d *driver.Driver, n *v1alpha1.Node) error {
			if err := d.Nodes().SendKeys(ctx, n, args[1]); err != nil {
				return err
			}
			fmt.Printf("✓ Keys sent to node %s\n", n.Name)
			return nil
		})
	},
}
