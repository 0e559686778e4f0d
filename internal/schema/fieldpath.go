// internal/schema/fieldpath.go
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

/*
 * Field path parsing.
 *
 * A path is a "/"-separated list of segments. A segment is either a plain
 * field name or an indexed access name[key]. The key is opaque text: an
 * integer position for lists and sets, a map key literal for maps.
 *
 * Three parse modes:
 *   - Parse: against a schema Index; journeys are slash-joined index keys
 *   - ParseType: against a Go type by direct reflection; journeys dot-joined
 *   - ParseUnchecked: no schema, for dynamic documents (map[string]any)
 *
 * Checked modes fail fast with a ValidationError naming the offending
 * sub-path: unknown field, index on a non-container, a container used
 * mid-path without an index, or a key that does not parse as the
 * container's key type. Nothing is deferred to walk time.
 */

var indexedSegment = regexp.MustCompile(`^(\w+)\s*\[\s*(\S+)\s*\]$`)

// PathNode is one parsed segment.
type PathNode struct {
	Name     string
	Sequence int
	Journey  string        // path up to and including this node
	Field    *IndexedField // nil for unchecked paths
	Indexed  bool          // name[key] form
	Key      string        // raw key text, set when Indexed
}

// FieldPath is a parsed path, reusable across instances of its root type.
type FieldPath struct {
	text  string
	root  reflect.Type
	nodes []PathNode
}

// String returns the path text as parsed.
func (p *FieldPath) String() string { return p.text }

// Root returns the type the path was validated against, nil if unchecked.
func (p *FieldPath) Root() reflect.Type { return p.root }

// Nodes returns a copy of the parsed segments.
func (p *FieldPath) Nodes() []PathNode {
	return append([]PathNode(nil), p.nodes...)
}

// Depth returns the number of segments.
func (p *FieldPath) Depth() int { return len(p.nodes) }

// Terminal returns the field addressed by the last segment, nil if unchecked.
func (p *FieldPath) Terminal() *IndexedField {
	return p.nodes[len(p.nodes)-1].Field
}

// Parse parses text against idx.
func Parse(text string, idx *Index) (*FieldPath, error) {
	if idx == nil {
		return nil, types.NewValidationError(text, types.ErrNotStruct, "no schema index")
	}
	return parse(text, idx.root, "/", func(journey string, _ *IndexedField) (*IndexedField, bool) {
		return idx.Find(journey)
	})
}

// ParseType parses text against t by direct reflection, without a cached index.
func ParseType(text string, t reflect.Type) (*FieldPath, error) {
	if t == nil || datatype.Indirect(t).Kind() != reflect.Struct {
		return nil, types.NewValidationError(text, types.ErrNotStruct, "cannot resolve paths on %v", t)
	}
	root := datatype.Indirect(t)
	return parse(text, root, ".", func(journey string, prev *IndexedField) (*IndexedField, bool) {
		owner := root
		if prev != nil {
			owner = elementStruct(prev.Type)
			if owner == nil {
				return nil, false
			}
		}
		name := journey[strings.LastIndex(journey, ".")+1:]
		return lookupField(owner, name, journey)
	})
}

// ParseUnchecked splits text into nodes without any schema validation.
func ParseUnchecked(text string) (*FieldPath, error) {
	return parse(text, nil, "/", nil)
}

type resolver func(journey string, prev *IndexedField) (*IndexedField, bool)

func parse(text string, root reflect.Type, sep string, resolve resolver) (*FieldPath, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, types.NewValidationError(text, types.ErrMalformedPath, "empty path")
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) > types.MaxPathDepth {
		return nil, types.NewValidationError(trimmed, types.ErrPathTooDeep, "%d segments", len(segments))
	}

	fp := &FieldPath{text: trimmed, root: root, nodes: make([]PathNode, 0, len(segments))}
	journey := ""
	var prev *IndexedField

	for i, raw := range segments {
		seg := strings.TrimSpace(raw)
		node := PathNode{Name: seg, Sequence: i}

		if strings.ContainsAny(seg, "[]") {
			m := indexedSegment.FindStringSubmatch(seg)
			if m == nil {
				return nil, types.NewValidationError(joinWith(journey, seg, sep), types.ErrMalformedPath, "bad indexed segment %q", seg)
			}
			node.Name, node.Key, node.Indexed = m[1], m[2], true
		}
		if node.Name == "" {
			return nil, types.NewValidationError(trimmed, types.ErrMalformedPath, "empty segment at position %d", i)
		}

		journey = joinWith(journey, node.Name, sep)
		node.Journey = journey

		if resolve != nil {
			f, ok := resolve(journey, prev)
			if !ok {
				return nil, types.NewValidationError(journey, types.ErrFieldNotFound, "no such field in %s", root)
			}
			if err := checkNode(f, node, i == len(segments)-1); err != nil {
				return nil, err
			}
			node.Field = f
			prev = f
		}
		fp.nodes = append(fp.nodes, node)
	}
	return fp, nil
}

// checkNode enforces the container rules for one resolved segment.
func checkNode(f *IndexedField, node PathNode, last bool) error {
	if !node.Indexed {
		if !last && f.IsContainer() {
			return types.NewValidationError(node.Journey, types.ErrContainerNotIndexed, "index %s before descending", node.Name)
		}
		return nil
	}

	base := datatype.Indirect(f.Type)
	switch {
	case base.Kind() == reflect.Slice || base.Kind() == reflect.Array || datatype.IsSet(base):
		if _, err := strconv.Atoi(node.Key); err != nil {
			return types.NewValidationError(node.Journey, types.ErrMalformedPath, "position %q is not an integer", node.Key)
		}
	case base.Kind() == reflect.Map:
		if _, err := mapKey(base, node.Key); err != nil {
			return types.NewValidationError(node.Journey, err, "bad map key %q", node.Key)
		}
	default:
		return types.NewValidationError(node.Journey, types.ErrNotIndexable, "%s is %s", node.Name, base)
	}
	return nil
}

// mapKey parses key text into a value of mapType's key type.
func mapKey(mapType reflect.Type, key string) (reflect.Value, error) {
	keyType := mapType.Key()
	if keyType.Kind() == reflect.Interface {
		return reflect.ValueOf(key), nil
	}
	kdt, ok := datatype.Convert(keyType).(datatype.Basic)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", types.ErrUnsupportedKey, keyType)
	}
	v, err := kdt.FromString(key)
	if err != nil {
		return reflect.Value{}, err
	}
	if v == nil {
		return reflect.Value{}, fmt.Errorf("%w: empty key", types.ErrCoercionFailed)
	}
	kv := reflect.ValueOf(v)
	if !kv.Type().ConvertibleTo(keyType) {
		return reflect.Value{}, fmt.Errorf("%w: %s to %s", types.ErrCoercionFailed, kv.Type(), keyType)
	}
	return kv.Convert(keyType), nil
}

// lookupField resolves name on struct type owner for direct-reflection parsing.
func lookupField(owner reflect.Type, name, journey string) (*IndexedField, bool) {
	for _, sf := range reflect.VisibleFields(owner) {
		if !sf.IsExported() || (sf.Anonymous && datatype.Indirect(sf.Type).Kind() == reflect.Struct) {
			continue
		}
		if FieldName(sf) == name && accessible(datatype.Indirect(sf.Type)) {
			return newIndexedField(owner, sf, journey), true
		}
	}
	return nil, false
}

// elementStruct returns the struct reached through t itself or through its
// list/map elements, nil if there is none.
func elementStruct(t reflect.Type) reflect.Type {
	base := datatype.Indirect(t)
	switch base.Kind() {
	case reflect.Slice, reflect.Array:
		base = datatype.Indirect(base.Elem())
	case reflect.Map:
		if datatype.IsSet(base) {
			return nil
		}
		base = datatype.Indirect(base.Elem())
	}
	if base.Kind() != reflect.Struct {
		return nil
	}
	return base
}

func joinWith(prefix, name, sep string) string {
	if prefix == "" {
		return name
	}
	return prefix + sep + name
}
