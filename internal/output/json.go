package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// JSONFormatter formats resources as a JSON array.
type JSONFormatter struct{}

// FormatNodes formats nodes as JSON.
func (f *JSONFormatter) FormatNodes(nodes []*v1alpha1.Node) (string, error) {
	return marshalJSON(nodes, setNodeMeta)
}

// FormatNetworks formats networks as JSON.
func (f *JSONFormatter) FormatNetworks(nets []*v1alpha1.Network) (string, error) {
	return marshalJSON(nets, setNetworkMeta)
}

// FormatVolumes formats volumes as JSON.
func (f *JSONFormatter) FormatVolumes(vols []*v1alpha1.Volume) (string, error) {
	return marshalJSON(vols, setVolumeMeta)
}

func marshalJSON[T any](items []T, setMeta func(T)) (string, error) {
	if len(items) == 0 {
		return "[]\n", nil
	}
	for _, item := range items {
		setMeta(item)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
