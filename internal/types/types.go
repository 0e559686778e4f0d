// Package types provides domain models shared across qengine components.
//
// types.go, errors.go and definition.go use only the standard library so the
// definition format can be shared with tools that do not link the engine.
// ID utilities in ids.go import uuid.
package types

// VertexID identifies a node in a condition tree. Optional; empty means unset.
type VertexID string

// QueryID identifies a stored query definition (UUIDv7).
type QueryID string

// Parameters maps parameter names to their textual values.
// Values are parsed through the declaring operand's DataType at evaluation time.
type Parameters map[string]string

// Clone returns an independent copy so a Query never shares its map with callers.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Resource limits enforced when paths are parsed and definitions compiled.
const (
	// MaxPathDepth bounds the number of segments in a field path.
	// 16 levels covers deeply nested aggregates without unbounded walks.
	MaxPathDepth = 16

	// MaxTreeDepth bounds condition tree nesting for compiled definitions.
	MaxTreeDepth = 64

	// MaxCollectionValues bounds literal collection size in a definition.
	// Larger sets belong in a reference list.
	MaxCollectionValues = 1024

	// MaxSchemaFields bounds the number of entries in one schema index.
	MaxSchemaFields = 4096

	// MaxTypeRecursion bounds how many times one struct type may occur on a
	// single descent path while a schema index is built.
	MaxTypeRecursion = 3
)

// Limits groups the configurable resource limits.
type Limits struct {
	MaxPathDepth        int
	MaxTreeDepth        int
	MaxCollectionValues int
}

// DefaultLimits returns the compiled-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPathDepth:        MaxPathDepth,
		MaxTreeDepth:        MaxTreeDepth,
		MaxCollectionValues: MaxCollectionValues,
	}
}
