package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// YAMLFormatter formats resources as a YAML stream.
type YAMLFormatter struct{}

// FormatNodes formats nodes as YAML documents.
func (f *YAMLFormatter) FormatNodes(nodes []*v1alpha1.Node) (string, error) {
	return marshalYAML(nodes, setNodeMeta)
}

// FormatNetworks formats networks as YAML documents.
func (f *YAMLFormatter) FormatNetworks(nets []*v1alpha1.Network) (string, error) {
	return marshalYAML(nets, setNetworkMeta)
}

// FormatVolumes formats volumes as YAML documents.
func (f *YAMLFormatter) FormatVolumes(vols []*v1alpha1.Volume) (string, error) {
	return marshalYAML(vols, setVolumeMeta)
}

// marshalYAML separates documents with "---" (but not before the first one).
func marshalYAML[T any](items []T, setMeta func(T)) (string, error) {
	var buf bytes.Buffer
	for i, item := range items {
		setMeta(item)
		data, err := yaml.Marshal(item)
		if err != nil {
			return "", fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}
