// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DefaultVersion is the definition version used when none is configured.
const DefaultVersion = "1"

// ErrNoSuchNode is the sentinel error wrapped by NoSuchNodeError.
var ErrNoSuchNode = errors.New("no such node")

type (
	// NoSuchNodeError reports an edge operation referring to a node the
	// definition does not contain.
	NoSuchNodeError struct {
		Node string
	}

	// Node is an individual state in a definition along with its opaque
	// data and the set of states it may transition to.
	Node struct {
		Name  string
		Data  string
		edges map[string]struct{}
	}

	// Definition is a graph of states and the edges connecting them.
	// Edges can be cyclic and a graph can have more than one root.
	Definition struct {
		Name    string
		Version string
		nodes   map[string]*Node
		nonRoot map[string]struct{}
	}
)

// Error implements the error interface.
func (e *NoSuchNodeError) Error() string {
	return fmt.Sprintf("no such node: %q", e.Node)
}

// Unwrap returns ErrNoSuchNode so callers can use errors.Is for detection.
func (e *NoSuchNodeError) Unwrap() error { return ErrNoSuchNode }

// NewNode creates a node with no edges.
func NewNode(name, data string) *Node {
	return &Node{Name: name, Data: data, edges: make(map[string]struct{})}
}

// AddEdge records a transition from this node to the named state.
func (n *Node) AddEdge(to string) {
	n.edges[to] = struct{}{}
}

// HasEdge reports whether a direct transition to the named state exists.
func (n *Node) HasEdge(to string) bool {
	_, ok := n.edges[to]
	return ok
}

// Edges returns the node's outgoing edges, sorted.
func (n *Node) Edges() []string {
	out := make([]string, 0, len(n.edges))
	for to := range n.edges {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// NewDefinition creates an empty definition. An empty name gets an
// auto-generated one.
func NewDefinition(name, version string) *Definition {
	if version == "" {
		version = DefaultVersion
	}
	return &Definition{
		Name:    DefinitionName(name),
		Version: version,
		nodes:   make(map[string]*Node),
		nonRoot: make(map[string]struct{}),
	}
}

// FormatName normalizes a definition name: spaces become dots.
func FormatName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", ".")
}

// DefinitionName normalizes a name, generating one when it is empty.
func DefinitionName(name string) string {
	if formatted := FormatName(name); formatted != "" {
		return formatted
	}
	return "auto-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Tag builds the identifier a definition is referred to by: <name>.v<version>.
func Tag(name, version string) string {
	return fmt.Sprintf("%s.v%s", name, version)
}

// Tag returns the definition's identifier.
func (d *Definition) Tag() string {
	return Tag(d.Name, d.Version)
}

// AddNode adds a state by name along with opaque data it carries.
// Re-adding an existing state resets its data and edges.
func (d *Definition) AddNode(name, data string) {
	d.nodes[name] = NewNode(name, data)
}

// Node returns the named state, or nil.
func (d *Definition) Node(name string) *Node {
	return d.nodes[name]
}

// HasNode reports whether the named state exists.
func (d *Definition) HasNode(name string) bool {
	_, ok := d.nodes[name]
	return ok
}

// Nodes returns the state names, sorted.
func (d *Definition) Nodes() []string {
	out := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddEdge adds a transition between two existing states. Either state
// missing is reported via NoSuchNodeError.
func (d *Definition) AddEdge(from, to string) error {
	if err := d.checkNodes(from, to); err != nil {
		return err
	}
	d.nodes[from].AddEdge(to)

	// At least one edge leads to it, so it cannot be a root.
	d.nonRoot[to] = struct{}{}
	return nil
}

// HasEdge reports whether a direct transition between two states exists.
// Unknown states have no edges.
func (d *Definition) HasEdge(from, to string) bool {
	node, ok := d.nodes[from]
	return ok && node.HasEdge(to)
}

// Roots returns the states no edge points at, sorted. Objects unknown to
// the backend may only enter the graph at one of these.
func (d *Definition) Roots() []string {
	roots := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		if _, ok := d.nonRoot[name]; !ok {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)
	return roots
}

// String renders the definition with roots marked by a leading tilde and
// each state followed by its outgoing edges.
func (d *Definition) String() string {
	roots := d.Roots()
	isRoot := make(map[string]bool, len(roots))
	for _, name := range roots {
		isRoot[name] = true
	}

	// Roots first, then the remaining states, both sorted.
	names := make([]string, 0, len(d.nodes))
	for _, name := range roots {
		names = append(names, "~"+name)
	}
	for _, name := range d.Nodes() {
		if !isRoot[name] {
			names = append(names, name)
		}
	}

	maxName := 0
	for _, name := range names {
		if len(name) > maxName {
			maxName = len(name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Definition %s v%s: %s", d.Name, d.Version, strings.Join(names, ", "))
	for _, name := range names {
		edges := d.nodes[strings.TrimPrefix(name, "~")].Edges()
		target := "(None)"
		if len(edges) > 0 {
			target = strings.Join(edges, ", ")
		}
		fmt.Fprintf(&b, "\n * %-*s -> %s", maxName, name, target)
	}
	return b.String()
}

func (d *Definition) checkNodes(names ...string) error {
	for _, name := range names {
		if !d.HasNode(name) {
			return &NoSuchNodeError{Node: name}
		}
	}
	return nil
}
