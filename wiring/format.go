package wiring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	bundlestate "github.com/albertocavalcante/go-bundlestate"
	"gopkg.in/yaml.v3"
)

const separatorWidth = 60 // Width of separator lines in text output

// Document is the serialized form of a Wiring used by ToJSON and ToYAML.
type Document struct {
	Timestamp int64         `json:"timestamp" yaml:"timestamp"`
	Bundles   []BundleEntry `json:"bundles" yaml:"bundles"`
}

// BundleEntry describes one resolved bundle.
type BundleEntry struct {
	ID             int64       `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	Version        string      `json:"version" yaml:"version"`
	RemovalPending bool        `json:"removal_pending,omitempty" yaml:"removal_pending,omitempty"`
	Hosts          []string    `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Exports        []string    `json:"exports,omitempty" yaml:"exports,omitempty"`
	Wires          []WireEntry `json:"wires,omitempty" yaml:"wires,omitempty"`
}

// WireEntry describes one wire from the bundle's point of view.
type WireEntry struct {
	Namespace   string `json:"namespace" yaml:"namespace"`
	Requirement string `json:"requirement" yaml:"requirement"`
	Provider    string `json:"provider" yaml:"provider"`
	Capability  string `json:"capability" yaml:"capability"`
}

// Document returns the serializable form of w.
func (w *Wiring) Document() *Document {
	doc := &Document{Timestamp: w.Timestamp, Bundles: make([]BundleEntry, 0, len(w.nodes))}
	for _, n := range w.nodes {
		b := n.Bundle
		entry := BundleEntry{
			ID:             int64(b.ID()),
			Name:           b.SymbolicName(),
			Version:        b.Version().String(),
			RemovalPending: b.IsRemovalPending(),
		}
		for _, h := range n.Hosts {
			entry.Hosts = append(entry.Hosts, h.String())
		}
		for _, c := range w.Capabilities(b, bundlestate.NamespacePackage) {
			entry.Exports = append(entry.Exports, fmt.Sprintf("%s;version=%s", c.Name, c.Version))
		}
		for _, wire := range n.RequiredWires {
			entry.Wires = append(entry.Wires, WireEntry{
				Namespace:   wire.Requirement.Namespace,
				Requirement: wire.Requirement.String(),
				Provider:    wire.Provider().String(),
				Capability:  wire.Capability.String(),
			})
		}
		doc.Bundles = append(doc.Bundles, entry)
	}
	return doc
}

// ToJSON outputs the projection as indented JSON.
func (w *Wiring) ToJSON() ([]byte, error) {
	return json.MarshalIndent(w.Document(), "", "  ")
}

// ToYAML outputs the projection as YAML.
func (w *Wiring) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(w.Document()); err != nil {
		return nil, fmt.Errorf("failed to encode wiring: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode wiring: %w", err)
	}
	return buf.Bytes(), nil
}

// ToDOT outputs the dependency graph in Graphviz DOT format. Edges are
// labeled with the namespaces of the wires they stand for.
func (w *Wiring) ToDOT() string {
	var buf bytes.Buffer

	buf.WriteString("digraph wiring {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box];\n\n")

	for _, n := range w.nodes {
		b := n.Bundle
		label := fmt.Sprintf("%s\\n%s", b.SymbolicName(), b.Version())
		attrs := fmt.Sprintf(`label="%s"`, label) //nolint:gocritic // DOT format requires this quote style
		if len(n.Hosts) > 0 {
			attrs += ", style=dashed"
		}
		if b.IsRemovalPending() {
			attrs += ", color=gray"
		}
		buf.WriteString(fmt.Sprintf("  %q [%s];\n", nodeID(b), attrs))
	}

	buf.WriteString("\n")

	for _, n := range w.nodes {
		for _, dep := range n.Dependencies {
			var namespaces []string
			for _, wire := range n.RequiredWires {
				if wire.Provider() == dep && !slices.Contains(namespaces, shortNamespace(wire.Requirement.Namespace)) {
					namespaces = append(namespaces, shortNamespace(wire.Requirement.Namespace))
				}
			}
			buf.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", nodeID(n.Bundle), nodeID(dep), strings.Join(namespaces, ",")))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(b *bundlestate.Bundle) string {
	if b.IsRemovalPending() {
		return fmt.Sprintf("%d (pending)", b.ID())
	}
	return fmt.Sprintf("%d", b.ID())
}

func shortNamespace(ns string) string {
	if i := strings.LastIndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ToText outputs a human-readable representation: summary statistics and
// a dependency tree per root bundle.
func (w *Wiring) ToText() string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Wiring (timestamp: %d)\n", w.Timestamp))
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	stats := w.Stats()
	buf.WriteString(fmt.Sprintf("Resolved bundles: %d\n", stats.Bundles))
	buf.WriteString(fmt.Sprintf("Wires: %d\n", stats.Wires))
	buf.WriteString(fmt.Sprintf("Max depth: %d\n", stats.MaxDepth))
	if stats.Fragments > 0 {
		buf.WriteString(fmt.Sprintf("Fragments: %d\n", stats.Fragments))
	}
	if stats.RemovalPending > 0 {
		buf.WriteString(fmt.Sprintf("Removal pending: %d\n", stats.RemovalPending))
	}
	buf.WriteString("\n")

	buf.WriteString("Dependency Tree:\n")
	visited := make(map[*bundlestate.Bundle]bool)
	for _, root := range w.Roots() {
		w.printTree(&buf, root, "", true, visited)
	}

	return buf.String()
}

func (w *Wiring) printTree(buf *bytes.Buffer, b *bundlestate.Bundle, prefix string, isLast bool, visited map[*bundlestate.Bundle]bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if prefix == "" {
		buf.WriteString(b.String())
	} else {
		buf.WriteString(prefix + connector + b.String())
	}

	n := w.index[b]
	if n != nil && len(n.Hosts) > 0 {
		buf.WriteString(" (fragment)")
	}
	if b.IsRemovalPending() {
		buf.WriteString(" (pending removal)")
	}

	if visited[b] {
		buf.WriteString(" (circular)\n")
		return
	}
	buf.WriteString("\n")

	visited[b] = true
	defer func() { visited[b] = false }()

	if n == nil {
		return
	}

	for i, dep := range n.Dependencies {
		isLastChild := i == len(n.Dependencies)-1
		childPrefix := prefix
		if prefix != "" {
			if isLast {
				childPrefix += "    "
			} else {
				childPrefix += "│   "
			}
		} else {
			childPrefix = " "
		}
		w.printTree(buf, dep, childPrefix, isLastChild, visited)
	}
}
