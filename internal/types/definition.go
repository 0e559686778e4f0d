// internal/types/definition.go
package types

/*
 * Serialized query definitions.
 *
 * Definition is the document form of a Query. It is wire-format agnostic:
 * the same struct decodes from YAML, JSON and msgpack, and rules.Compile turns
 * it into an executable Query bound to an Engine.
 *
 * Node shapes (exactly one per node):
 *   - and/or: two or more children, folded left
 *   - not/group: one child
 *   - op: leaf predicate with type, left, right and on_missing
 *
 * Operands are the printString forms accepted by rules.ParseValue, e.g.
 * "`field:address/city`", "`param:minAge`" or "`const:30`".
 */

// Definition is a named query over a registered type.
type Definition struct {
	Name       string            `json:"name" yaml:"name" msgpack:"name"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty" msgpack:"parameters,omitempty"`
	Condition  *Node             `json:"condition" yaml:"condition" msgpack:"condition"`
}

// Node is one vertex of a serialized condition tree.
type Node struct {
	ID        string  `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id,omitempty"`
	And       []*Node `json:"and,omitempty" yaml:"and,omitempty" msgpack:"and,omitempty"`
	Or        []*Node `json:"or,omitempty" yaml:"or,omitempty" msgpack:"or,omitempty"`
	Not       *Node   `json:"not,omitempty" yaml:"not,omitempty" msgpack:"not,omitempty"`
	Group     *Node   `json:"group,omitempty" yaml:"group,omitempty" msgpack:"group,omitempty"`
	Op        string  `json:"op,omitempty" yaml:"op,omitempty" msgpack:"op,omitempty"`
	Type      string  `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty"`
	Left      string  `json:"left,omitempty" yaml:"left,omitempty" msgpack:"left,omitempty"`
	Right     string  `json:"right,omitempty" yaml:"right,omitempty" msgpack:"right,omitempty"`
	OnMissing string  `json:"on_missing,omitempty" yaml:"on_missing,omitempty" msgpack:"on_missing,omitempty"`
}

// Depth returns the nesting depth of the tree rooted at n. A leaf has depth 1.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	depth := 0
	for _, c := range n.children() {
		if d := c.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

func (n *Node) children() []*Node {
	var out []*Node
	out = append(out, n.And...)
	out = append(out, n.Or...)
	if n.Not != nil {
		out = append(out, n.Not)
	}
	if n.Group != nil {
		out = append(out, n.Group)
	}
	return out
}
