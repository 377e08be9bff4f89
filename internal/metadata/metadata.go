// Package metadata records a node's manifest inside its domain descriptor,
// using libvirt's custom XML metadata, so the spec a domain was defined
// from can be recovered from the hypervisor alone.
package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/virtdriver/api/v1alpha1"
)

// Namespace identifies virtdriver's metadata element.
const Namespace = "http://virtdriver.jbweber.dev/v1alpha1"

// ErrNoMetadata is returned by Decode when the domain carries no node
// manifest.
var ErrNoMetadata = errors.New("domain has no virtdriver metadata")

// nodeElement is the XML form of the recorded manifest. The node is stored
// as YAML text so it stays readable in `virsh dumpxml`.
type nodeElement struct {
	XMLName xml.Name `xml:"node"`
	Xmlns   string   `xml:"xmlns,attr"`
	YAML    string   `xml:",chardata"`
}

// Element renders node as a domain metadata block. Status and the root
// password hash are not recorded.
func Element(node *v1alpha1.Node) (*libvirtxml.DomainMetadata, error) {
	rec := *node
	rec.Status = v1alpha1.NodeStatus{}
	v1alpha1.SetDefaultAPIVersion(&rec.TypeMeta, v1alpha1.NodeKind)
	if ci := node.Spec.CloudInit; ci != nil {
		c := *ci
		c.RootPasswordHash = ""
		rec.Spec.CloudInit = &c
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node to YAML: %w", err)
	}
	out, err := xml.Marshal(nodeElement{Xmlns: Namespace, YAML: string(data)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}
	return &libvirtxml.DomainMetadata{XML: string(out)}, nil
}

// Decode extracts the recorded node from a domain descriptor. Metadata
// elements of other namespaces are ignored.
func Decode(domainXML string) (*v1alpha1.Node, error) {
	var dom libvirtxml.Domain
	if err := dom.Unmarshal(domainXML); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	if dom.Metadata == nil {
		return nil, ErrNoMetadata
	}

	dec := xml.NewDecoder(strings.NewReader(dom.Metadata.XML))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoMetadata
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse metadata XML: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != Namespace || start.Name.Local != "node" {
			continue
		}

		var el nodeElement
		if err := dec.DecodeElement(&el, &start); err != nil {
			return nil, fmt.Errorf("failed to parse metadata XML: %w", err)
		}
		var node v1alpha1.Node
		if err := yaml.Unmarshal([]byte(el.YAML), &node); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node from YAML: %w", err)
		}
		return &node, nil
	}
}
