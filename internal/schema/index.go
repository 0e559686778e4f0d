// internal/schema/index.go
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

/*
 * Flattened per-type field index.
 *
 * Build walks every exported field reachable from a root struct type
 * (promoted fields of embedded structs included) and records one entry per
 * path. Paths join field names with "/". A field's name is its `qe` tag, then
 * its `json` tag, then the Go field name; a tag of "-" hides the field.
 *
 * Classification per field:
 *   - scalar, enum, time: one entry, no descent
 *   - slice/array/set: one entry; struct elements are indexed at the SAME path
 *   - map: one entry; struct values are indexed at the same path
 *   - struct: one entry; children are indexed under "path/"
 *   - chan/func/unsafe pointer: skipped
 *
 * Cycle policy: a struct type is entered at most types.MaxTypeRecursion
 * times on one descent path, and never below types.MaxPathDepth segments.
 * The field that would enter it once more still gets its entry, so for a
 * self-referential node "next/next/label" is indexed and
 * "next/next/next" is the last entry down that chain. A map whose key is not
 * a basic DataType fails the whole build.
 *
 * Each entry carries an accessor closure over the reflect field index, built
 * once, so walks never look fields up by name.
 */

// IndexedField is one entry of an Index.
type IndexedField struct {
	Path     string
	Name     string            // Go field name
	Owner    reflect.Type      // struct type that declares (or promotes) the field
	Type     reflect.Type      // declared field type
	DataType datatype.DataType // nil when the field type has no DataType

	get func(owner reflect.Value) (reflect.Value, bool)
}

// Get reads the field from owner, a value of type Owner. It reports false
// when the field is unreachable, e.g. through a nil embedded pointer.
func (f *IndexedField) Get(owner reflect.Value) (reflect.Value, bool) {
	return f.get(owner)
}

// Kind returns the reflect kind of the field type with pointers stripped.
func (f *IndexedField) Kind() reflect.Kind {
	return datatype.Indirect(f.Type).Kind()
}

// IsContainer reports whether the field holds a list, set or map.
func (f *IndexedField) IsContainer() bool {
	switch f.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

// Index is the flattened path map for one root type.
type Index struct {
	root   reflect.Type
	fields map[string]*IndexedField
}

// Root returns the indexed type.
func (x *Index) Root() reflect.Type { return x.root }

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.fields) }

// Find looks up a slash-joined path. Absence means the path is not part of the schema.
func (x *Index) Find(path string) (*IndexedField, bool) {
	f, ok := x.fields[path]
	return f, ok
}

// Paths returns every indexed path in sorted order.
func (x *Index) Paths() []string {
	paths := make([]string, 0, len(x.fields))
	for p := range x.fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Equal reports whether two indices have the same root and the same entries.
func (x *Index) Equal(o *Index) bool {
	if x == o {
		return true
	}
	if x == nil || o == nil || x.root != o.root || len(x.fields) != len(o.fields) {
		return false
	}
	for p, f := range x.fields {
		g, ok := o.fields[p]
		if !ok || f.Name != g.Name || f.Owner != g.Owner || f.Type != g.Type {
			return false
		}
	}
	return true
}

var timeType = reflect.TypeOf(time.Time{})

// Build indexes t, which must be a struct or a pointer to one.
func Build(t reflect.Type) (*Index, error) {
	if t == nil {
		return nil, types.ErrNotStruct
	}
	root := datatype.Indirect(t)
	if root.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", types.ErrNotStruct, t)
	}

	b := &builder{
		fields: make(map[string]*IndexedField),
		active: map[reflect.Type]int{root: 1},
	}
	if err := b.walk(root, ""); err != nil {
		return nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	return &Index{root: root, fields: b.fields}, nil
}

type builder struct {
	fields map[string]*IndexedField
	active map[reflect.Type]int // occurrences on the current descent path
}

func (b *builder) walk(t reflect.Type, prefix string) error {
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous && datatype.Indirect(sf.Type).Kind() == reflect.Struct {
			// promoted fields are visited on their own
			continue
		}
		if !sf.IsExported() {
			continue
		}
		name := FieldName(sf)
		if name == "" {
			continue
		}
		base := datatype.Indirect(sf.Type)
		if !accessible(base) {
			continue
		}
		if base.Kind() == reflect.Map {
			if _, ok := datatype.Convert(base.Key()).(datatype.Basic); !ok {
				return fmt.Errorf("%w: field %s.%s has key type %s", types.ErrUnsupportedKey, t, sf.Name, base.Key())
			}
		}

		path := joinPath(prefix, name)
		b.fields[path] = newIndexedField(t, sf, path)
		if len(b.fields) > types.MaxSchemaFields {
			return fmt.Errorf("schema exceeds %d fields", types.MaxSchemaFields)
		}

		if err := b.descend(base, path); err != nil {
			return err
		}
	}
	return nil
}

// descend indexes the structure reachable through a field of type base.
func (b *builder) descend(base reflect.Type, path string) error {
	var next reflect.Type
	switch base.Kind() {
	case reflect.Struct:
		next = base
	case reflect.Slice, reflect.Array:
		next = datatype.Indirect(base.Elem())
	case reflect.Map:
		if datatype.IsSet(base) {
			return nil
		}
		next = datatype.Indirect(base.Elem())
	default:
		return nil
	}
	if next.Kind() != reflect.Struct || next == timeType || next.Implements(enumerationType) {
		return nil
	}
	if b.active[next] >= types.MaxTypeRecursion || strings.Count(path, "/")+1 >= types.MaxPathDepth {
		return nil
	}
	b.active[next]++
	defer func() { b.active[next]-- }()
	return b.walk(next, path)
}

var enumerationType = reflect.TypeOf((*datatype.Enumeration)(nil)).Elem()

func newIndexedField(owner reflect.Type, sf reflect.StructField, path string) *IndexedField {
	index := append([]int(nil), sf.Index...)
	return &IndexedField{
		Path:     path,
		Name:     sf.Name,
		Owner:    owner,
		Type:     sf.Type,
		DataType: datatype.ConvertElement(sf.Type),
		get: func(v reflect.Value) (reflect.Value, bool) {
			fv, err := v.FieldByIndexErr(index)
			if err != nil || !fv.CanInterface() {
				return reflect.Value{}, false
			}
			return fv, true
		},
	}
}

// FieldName returns the path name of a struct field: the qe tag, the json
// tag, or the Go name. It returns "" for fields hidden with "-".
func FieldName(sf reflect.StructField) string {
	for _, key := range []string{"qe", "json"} {
		tag, ok := sf.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return sf.Name
}

func accessible(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Invalid:
		return false
	}
	return true
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
