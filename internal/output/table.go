package output

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatNodes formats nodes as a table.
func (f *TableFormatter) FormatNodes(nodes []*v1alpha1.Node) (string, error) {
	if len(nodes) == 0 {
		return "No nodes found\n", nil
	}
	return f.table("NAME\tUUID\tSTATE\tVNC\tVCPUs\tMEMORY\tAGE", len(nodes), func(i int) []string {
		n := nodes[i]
		return []string{
			n.Name,
			dash(n.Status.UUID),
			dash(n.Status.State),
			dash(n.Status.VNCPort),
			strconv.Itoa(n.Spec.VCPUs),
			fmt.Sprintf("%d MiB", n.Spec.MemoryMiB),
			age(n.CreationTimestamp),
		}
	}), nil
}

// FormatNetworks formats networks as a table.
func (f *TableFormatter) FormatNetworks(nets []*v1alpha1.Network) (string, error) {
	if len(nets) == 0 {
		return "No networks found\n", nil
	}
	return f.table("NAME\tUUID\tACTIVE\tBRIDGE\tFORWARD\tCIDR\tAGE", len(nets), func(i int) []string {
		n := nets[i]
		active := "-"
		if n.IsDefined() {
			active = strconv.FormatBool(n.Status.Active)
		}
		return []string{
			n.Name,
			dash(n.Status.UUID),
			active,
			dash(n.Status.Bridge),
			dash(n.Spec.Forward),
			dash(n.Spec.CIDR),
			age(n.CreationTimestamp),
		}
	}), nil
}

// FormatVolumes formats volumes as a table.
func (f *TableFormatter) FormatVolumes(vols []*v1alpha1.Volume) (string, error) {
	if len(vols) == 0 {
		return "No volumes found\n", nil
	}
	return f.table("NAME\tPOOL\tFORMAT\tCAPACITY\tALLOCATION\tPATH", len(vols), func(i int) []string {
		v := vols[i]
		capacity := v.Status.CapacityBytes
		if capacity == 0 {
			capacity = v.Spec.CapacityBytes
		}
		return []string{
			v.Name,
			dash(v.Spec.Pool),
			dash(v.Spec.Format),
			formatBytes(capacity),
			formatBytes(v.Status.AllocationBytes),
			dash(v.Status.Path),
		}
	}), nil
}

func (f *TableFormatter) table(header string, n int, row func(int) []string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, header)
	}
	for i := 0; i < n; i++ {
		cols := row(i)
		for j, c := range cols {
			if j > 0 {
				_, _ = fmt.Fprint(w, "\t")
			}
			_, _ = fmt.Fprint(w, c)
		}
		_, _ = fmt.Fprintln(w)
	}

	_ = w.Flush()
	return buf.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func age(ts v1alpha1.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return formatAge(time.Since(ts.Time))
}

// formatBytes renders a size with binary units, e.g. "10.0 GiB".
func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}
	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}
	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
