// Package output renders resource handles as tables, YAML or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML stream, one document per resource.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON array for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats resource handles for output.
type Formatter interface {
	FormatNodes(nodes []*v1alpha1.Node) (string, error)
	FormatNetworks(nets []*v1alpha1.Network) (string, error)
	FormatVolumes(vols []*v1alpha1.Volume) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

func setNodeMeta(n *v1alpha1.Node)       { v1alpha1.SetDefaultAPIVersion(&n.TypeMeta, v1alpha1.NodeKind) }
func setNetworkMeta(n *v1alpha1.Network) { v1alpha1.SetDefaultAPIVersion(&n.TypeMeta, v1alpha1.NetworkKind) }
func setVolumeMeta(v *v1alpha1.Volume)   { v1alpha1.SetDefaultAPIVersion(&v.TypeMeta, v1alpha1.VolumeKind) }
