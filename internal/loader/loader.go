// Package loader reads and writes manifests of Node, Network and Volume
// handles as multi-document YAML.
//
// Identities assigned by the driver live in each handle's status, so
// saving a manifest after Define records them and a later run addresses
// the same hypervisor objects.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// Manifest is an ordered set of resource handles.
type Manifest struct {
	Networks []*v1alpha1.Network
	Volumes  []*v1alpha1.Volume
	Nodes    []*v1alpha1.Node

	// docs keeps document order for SaveToFile.
	docs []any
}

// Add appends handles to the manifest. Values other than *Node, *Network
// and *Volume are ignored.
func (m *Manifest) Add(objs ...any) {
	for _, obj := range objs {
		switch o := obj.(type) {
		case *v1alpha1.Node:
			m.Nodes = append(m.Nodes, o)
		case *v1alpha1.Network:
			m.Networks = append(m.Networks, o)
		case *v1alpha1.Volume:
			m.Volumes = append(m.Volumes, o)
		default:
			continue
		}
		m.docs = append(m.docs, obj)
	}
}

// Node returns the node called name, or nil.
func (m *Manifest) Node(name string) *v1alpha1.Node {
	for _, n := range m.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Network returns the network called name, or nil.
func (m *Manifest) Network(name string) *v1alpha1.Network {
	for _, n := range m.Networks {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Volume returns the volume called name, or nil.
func (m *Manifest) Volume(name string) *v1alpha1.Volume {
	for _, v := range m.Volumes {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// LoadFromFile loads a manifest from a YAML file.
func LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return LoadFromYAML(data)
}

// LoadFromYAML loads a manifest from YAML bytes. Every document must carry
// the virtdriver apiVersion and one of the known kinds; empty documents
// are skipped.
func LoadFromYAML(data []byte) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(bytes.NewReader(data))

	for i := 0; ; i++ {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: failed to unmarshal YAML: %w", i, err)
		}
		if isEmpty(&doc) {
			continue
		}

		obj, err := decodeDocument(&doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		m.Add(obj)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return m, nil
}

func decodeDocument(doc *yaml.Node) (any, error) {
	var tm v1alpha1.TypeMeta
	if err := doc.Decode(&tm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if tm.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if tm.Kind == "" {
		return nil, fmt.Errorf("missing required field: kind")
	}
	expectedAPIVersion := v1alpha1.GroupName + "/" + v1alpha1.Version
	if tm.APIVersion != expectedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion: %s (expected: %s)", tm.APIVersion, expectedAPIVersion)
	}

	var obj interface{ Normalize() }
	switch tm.Kind {
	case v1alpha1.NodeKind:
		obj = &v1alpha1.Node{}
	case v1alpha1.NetworkKind:
		obj = &v1alpha1.Network{}
	case v1alpha1.VolumeKind:
		obj = &v1alpha1.Volume{}
	default:
		return nil, fmt.Errorf("unsupported kind: %s (expected one of %s, %s, %s)",
			tm.Kind, v1alpha1.NodeKind, v1alpha1.NetworkKind, v1alpha1.VolumeKind)
	}
	if err := doc.Decode(obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", tm.Kind, err)
	}
	obj.Normalize()
	if n, ok := obj.(*v1alpha1.Node); ok {
		n.Name = strings.ToLower(n.Name)
	}
	return obj, nil
}

func isEmpty(doc *yaml.Node) bool {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	return doc.Kind == 0 || (doc.Kind == yaml.ScalarNode && doc.Tag == "!!null")
}

// SaveToFile writes the manifest, including assigned identities, to path.
func SaveToFile(m *Manifest, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	for _, obj := range m.docs {
		switch o := obj.(type) {
		case *v1alpha1.Node:
			v1alpha1.SetDefaultAPIVersion(&o.TypeMeta, v1alpha1.NodeKind)
		case *v1alpha1.Network:
			v1alpha1.SetDefaultAPIVersion(&o.TypeMeta, v1alpha1.NetworkKind)
		case *v1alpha1.Volume:
			v1alpha1.SetDefaultAPIVersion(&o.TypeMeta, v1alpha1.VolumeKind)
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to marshal manifest to YAML: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal manifest to YAML: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}
