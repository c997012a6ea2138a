// Package fieldspec turns caller-supplied field paths ("firstName",
// "department.name", "departments") into a validated field tree, expanding
// wildcards within the configured depth and recursion limits.
package fieldspec

import (
	"strings"

	"github.com/conduit-lang/flatquery/internal/orm/schema"
)

// Kind classifies a field node
type Kind int

const (
	// KindScalar is a leaf scalar property
	KindScalar Kind = iota
	// KindNavigation is a single-valued relationship
	KindNavigation
	// KindCollection is a collection-valued relationship
	KindCollection
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNavigation:
		return "navigation"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// FieldNode is one node of a requested-field tree. Scalar nodes carry
// Property and never have children; navigation and collection nodes carry
// Navigation and at least one child.
type FieldNode struct {
	Name     string
	FullPath string
	Kind     Kind
	Children []*FieldNode

	Property   *schema.Property
	Navigation *schema.Navigation
}

// Depth is the number of dot segments in FullPath minus one
func (n *FieldNode) Depth() int {
	return strings.Count(n.FullPath, ".")
}

// Alias is the flat column name of the node ("department.name" -> "department_name")
func (n *FieldNode) Alias() string {
	return strings.ReplaceAll(n.FullPath, ".", "_")
}

// IsLeaf reports whether the node is a scalar
func (n *FieldNode) IsLeaf() bool {
	return n.Kind == KindScalar
}

func (n *FieldNode) count() int {
	total := 1
	for _, child := range n.Children {
		total += child.count()
	}
	return total
}

func (n *FieldNode) leaves(out []*FieldNode) []*FieldNode {
	if n.IsLeaf() {
		return append(out, n)
	}
	for _, child := range n.Children {
		out = child.leaves(out)
	}
	return out
}

// Selection is the parsed field tree of one request
type Selection struct {
	Entity      string
	Fields      []*FieldNode
	MaxDepth    int
	ActualDepth int
}

// TotalFieldCount counts every node of the tree, scalar and navigation alike
func (s *Selection) TotalFieldCount() int {
	total := 0
	for _, f := range s.Fields {
		total += f.count()
	}
	return total
}

// Leaves returns the scalar nodes in depth-first order
func (s *Selection) Leaves() []*FieldNode {
	var out []*FieldNode
	for _, f := range s.Fields {
		out = f.leaves(out)
	}
	return out
}

// ScalarPaths returns the full paths of all scalar leaves in depth-first order
func (s *Selection) ScalarPaths() []string {
	leaves := s.Leaves()
	paths := make([]string, len(leaves))
	for i, leaf := range leaves {
		paths[i] = leaf.FullPath
	}
	return paths
}

// Find returns the node at the given full path (case-sensitive, canonical names)
func (s *Selection) Find(path string) *FieldNode {
	nodes := s.Fields
	var found *FieldNode
	for _, seg := range strings.Split(path, ".") {
		found = nil
		for _, n := range nodes {
			if n.Name == seg {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		nodes = found.Children
	}
	return found
}
