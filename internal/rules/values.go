// internal/rules/values.go
package rules

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/schema"
	"github.com/solatis/qengine/internal/types"
)

/*
 * Value operands.
 *
 * A Value is a leaf of the condition tree that resolves to data:
 *   - ConstantValue: one literal parsed through its DataType at construction
 *   - CollectionValue: a literal list of one element type
 *   - ParameterValue: late-bound from the evaluation's parameter map
 *   - FieldValue: walked out of the evaluated instance by a FieldPath
 *   - ReferenceValue: a named reference list from the engine's reference data
 *   - QueryOutputValue: rows read through a named loader connection
 *
 * Resolution yields an operand: absent, one value, or many values. Absence is
 * not an error here; predicates apply their OnMissing policy. Literals are
 * parsed once, when the value is built, and a bad literal is reported by
 * validation rather than at evaluation time.
 */

// Vertex is any node of a condition tree.
type Vertex interface {
	// ID returns the optional identifier assigned to the node.
	ID() types.VertexID
	// String returns the node's printable form. For values this is the
	// operand syntax accepted by ParseValue.
	String() string
}

// Value is a Vertex that resolves to data.
type Value interface {
	Vertex
	// DataType is the declared type. Collection-valued operands report a
	// Collection whose element is what predicates compare.
	DataType() datatype.DataType

	validate(v *validator, at string)
	resolve(env *Env, data any) (operand, error)
}

type vertex struct {
	id types.VertexID
}

func (x *vertex) ID() types.VertexID { return x.id }

// SetID assigns the node identifier used in error messages.
func (x *vertex) SetID(id types.VertexID) { x.id = id }

// operand is a resolved Value.
type operand struct {
	value   any
	values  []any
	many    bool
	present bool
}

func one(v any) operand {
	if v == nil {
		return operand{}
	}
	return operand{value: v, present: true}
}

func some(vs []any) operand {
	return operand{values: vs, many: true, present: true}
}

// scalar unwraps the operand to one value. An empty collection is absent and
// a collection of more than one member is ambiguous.
func (o operand) scalar() (any, bool, error) {
	if !o.present {
		return nil, false, nil
	}
	if !o.many {
		return o.value, true, nil
	}
	switch len(o.values) {
	case 0:
		return nil, false, nil
	case 1:
		return o.values[0], o.values[0] != nil, nil
	}
	return nil, false, types.ErrAmbiguousValue
}

// members returns the operand as a list, a single value becoming a list of one.
func (o operand) members() []any {
	switch {
	case !o.present:
		return nil
	case o.many:
		return o.values
	}
	return []any{o.value}
}

// ConstantValue is a literal of a basic type.
type ConstantValue struct {
	vertex
	dt      datatype.Basic
	literal string
	value   any
	err     error
}

// Constant parses literal through dt.
func Constant(dt datatype.Basic, literal string) *ConstantValue {
	c := &ConstantValue{dt: dt, literal: literal}
	if dt != nil {
		c.value, c.err = dt.FromString(literal)
	}
	return c
}

func (c *ConstantValue) DataType() datatype.DataType { return basicType(c.dt) }

// Literal returns the source text.
func (c *ConstantValue) Literal() string { return c.literal }

// Value returns the parsed value, nil for an empty literal.
func (c *ConstantValue) Value() any { return c.value }

func (c *ConstantValue) String() string { return printOperand(kwConst, c.literal) }

func (c *ConstantValue) validate(v *validator, at string) {
	switch {
	case c.dt == nil:
		v.fail(at, types.ErrMissingOperand, "constant %q has no type", c.literal)
	case c.err != nil:
		v.fail(at, c.err, "constant %q", c.literal)
	}
}

func (c *ConstantValue) resolve(*Env, any) (operand, error) {
	return one(c.value), nil
}

// CollectionValue is a literal list of elem values.
type CollectionValue struct {
	vertex
	elem     datatype.Basic
	literals []string
	values   []any
	err      error
}

// Constants builds a literal list. Empty literals are kept in the printed form
// but are not members.
func Constants(elem datatype.Basic, literals ...string) *CollectionValue {
	c := &CollectionValue{elem: elem}
	for _, l := range literals {
		c.Add(l)
	}
	return c
}

// Add appends one literal. It must not be called once the list is part of a
// condition that is being evaluated.
func (c *CollectionValue) Add(literal string) *CollectionValue {
	c.literals = append(c.literals, literal)
	if c.elem == nil || c.err != nil {
		return c
	}
	v, err := c.elem.FromString(literal)
	if err != nil {
		c.err = err
		return c
	}
	if v != nil {
		c.values = append(c.values, v)
	}
	return c
}

func (c *CollectionValue) DataType() datatype.DataType {
	if c.elem == nil {
		return nil
	}
	return datatype.NewCollection(c.elem)
}

// Len returns the number of members.
func (c *CollectionValue) Len() int { return len(c.values) }

// IsEmpty reports whether the list has no members.
func (c *CollectionValue) IsEmpty() bool { return len(c.values) == 0 }

// At returns the i-th member. Out of range is absence, not a panic.
func (c *CollectionValue) At(i int) (any, bool) {
	if i < 0 || i >= len(c.values) {
		return nil, false
	}
	return c.values[i], true
}

// Contains reports whether every one of values is a member.
func (c *CollectionValue) Contains(values ...any) bool {
	for _, v := range values {
		ok, err := member(c.elem, c.values, v)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (c *CollectionValue) String() string {
	return printOperand(kwList, strings.Join(c.literals, ","))
}

func (c *CollectionValue) validate(v *validator, at string) {
	switch {
	case c.elem == nil:
		v.fail(at, types.ErrMissingOperand, "list has no element type")
	case c.err != nil:
		v.fail(at, c.err, "list literal")
	case len(c.literals) > v.limits.MaxCollectionValues:
		v.fail(at, types.ErrTooManyValues, "%d values, limit %d", len(c.literals), v.limits.MaxCollectionValues)
	}
}

func (c *CollectionValue) resolve(*Env, any) (operand, error) {
	return some(c.values), nil
}

// ParameterValue is bound by name from the evaluation's parameters. A
// Collection type splits the parameter text on commas and trims each member.
type ParameterValue struct {
	vertex
	dt   datatype.DataType
	name string
}

// Parameter declares a parameter operand.
func Parameter(dt datatype.DataType, name string) *ParameterValue {
	return &ParameterValue{dt: dt, name: name}
}

func (p *ParameterValue) DataType() datatype.DataType { return p.dt }

// Name returns the parameter name.
func (p *ParameterValue) Name() string { return p.name }

func (p *ParameterValue) String() string { return printOperand(kwParam, p.name) }

func (p *ParameterValue) validate(v *validator, at string) {
	if p.name == "" {
		v.fail(at, types.ErrMissingOperand, "parameter has no name")
		return
	}
	if elementBasic(p.dt) == nil {
		v.fail(at, types.ErrIncompatibleTypes, "parameter %s must have a basic or collection type, got %s", p.name, typeLabel(p.dt))
	}
	if _, ok := v.params[p.name]; !ok {
		v.fail(at, types.ErrParameterNotFound, "parameter %s", p.name)
	}
}

func (p *ParameterValue) resolve(env *Env, _ any) (operand, error) {
	text, ok := env.params[p.name]
	if !ok {
		return operand{}, types.NewEvaluationError(types.ErrParameterNotFound, "parameter %s", p.name)
	}
	elem := elementBasic(p.dt)
	if _, isList := p.dt.(*datatype.Collection); !isList {
		v, err := elem.FromString(text)
		if err != nil {
			return operand{}, err
		}
		return one(v), nil
	}

	var values []any
	for _, part := range strings.Split(text, ",") {
		v, err := elem.FromString(strings.TrimSpace(part))
		if err != nil {
			return operand{}, err
		}
		if v != nil {
			values = append(values, v)
		}
	}
	return some(values), nil
}

// FieldValue reads a value out of the evaluated instance.
type FieldValue struct {
	vertex
	dt   datatype.DataType
	path *schema.FieldPath
}

// Field declares a field operand over an already parsed path.
func Field(dt datatype.DataType, path *schema.FieldPath) *FieldValue {
	return &FieldValue{dt: dt, path: path}
}

func (f *FieldValue) DataType() datatype.DataType { return f.dt }

// Path returns the parsed path.
func (f *FieldValue) Path() *schema.FieldPath { return f.path }

func (f *FieldValue) String() string {
	if f.path == nil {
		return printOperand(kwField, "")
	}
	return printOperand(kwField, f.path.String())
}

func (f *FieldValue) validate(v *validator, at string) {
	if f.path == nil {
		v.fail(at, types.ErrMissingOperand, "field has no path")
		return
	}
	if f.dt == nil {
		v.fail(at, types.ErrMissingOperand, "field %s has no type", f.path)
		return
	}
	if f.path.Depth() > v.limits.MaxPathDepth {
		v.fail(at, types.ErrPathTooDeep, "field %s has %d segments, limit %d", f.path, f.path.Depth(), v.limits.MaxPathDepth)
	}
	if root := f.path.Root(); root != nil && v.root != nil && root != v.root {
		v.fail(at, types.ErrTypeMismatch, "field %s is bound to %s, query type is %s", f.path, root, v.root)
	}
	if term := f.path.Terminal(); term != nil && term.DataType != nil {
		declared, actual := elementOf(f.dt), elementOf(term.DataType)
		if declared.CompareTo(actual) == datatype.Incompatible {
			v.fail(at, types.ErrIncompatibleTypes, "field %s is %s, declared %s", f.path, actual.Name(), declared.Name())
		}
	}
}

func (f *FieldValue) resolve(_ *Env, data any) (operand, error) {
	v, found, err := f.path.Walk(data)
	if err != nil || !found {
		return operand{}, err
	}
	if members, ok := expand(v); ok {
		return some(members), nil
	}
	return one(v), nil
}

// ReferenceValue is a named reference list.
type ReferenceValue struct {
	vertex
	elem datatype.Basic
	name string
}

// Reference declares a reference list operand whose members are elem values.
func Reference(elem datatype.Basic, name string) *ReferenceValue {
	return &ReferenceValue{elem: elem, name: name}
}

func (r *ReferenceValue) DataType() datatype.DataType {
	if r.elem == nil {
		return nil
	}
	return datatype.NewCollection(r.elem)
}

// Name returns the reference list name.
func (r *ReferenceValue) Name() string { return r.name }

func (r *ReferenceValue) String() string { return printOperand(kwRef, r.name) }

func (r *ReferenceValue) validate(v *validator, at string) {
	if r.name == "" {
		v.fail(at, types.ErrMissingOperand, "reference list has no name")
	}
	if r.elem == nil {
		v.fail(at, types.ErrMissingOperand, "reference list %s has no element type", r.name)
	}
}

func (r *ReferenceValue) resolve(env *Env, _ any) (operand, error) {
	if env.engine == nil || env.engine.refs == nil {
		return operand{}, &types.ConfigurationError{Component: "rules", Message: "no reference data configured", Err: types.ErrReferenceNotFound}
	}
	raw, err := env.engine.refs.Get(env.ctx, r.name)
	if err != nil {
		return operand{}, err
	}
	return coerceAll(r.elem, raw)
}

// QueryOutputValue is the single-column result of a query on a named connection.
type QueryOutputValue struct {
	vertex
	elem       datatype.Basic
	connection string
	kind       string
	text       string
}

// QueryOutput declares a query operand. The connection is "name" or
// "name@kind"; the kind defaults to DefaultConnectionKind.
func QueryOutput(elem datatype.Basic, connection, text string) *QueryOutputValue {
	name, kind, ok := strings.Cut(connection, "@")
	if !ok || kind == "" {
		kind = DefaultConnectionKind
	}
	return &QueryOutputValue{elem: elem, connection: name, kind: kind, text: text}
}

// DefaultConnectionKind is the loader kind used when a connection names none.
const DefaultConnectionKind = "sql"

func (q *QueryOutputValue) DataType() datatype.DataType {
	if q.elem == nil {
		return nil
	}
	return datatype.NewCollection(q.elem)
}

// Connection returns the connection name and kind.
func (q *QueryOutputValue) Connection() (string, string) { return q.connection, q.kind }

// Text returns the query text.
func (q *QueryOutputValue) Text() string { return q.text }

func (q *QueryOutputValue) String() string {
	conn := q.connection
	if q.kind != DefaultConnectionKind {
		conn += "@" + q.kind
	}
	return printOperand(kwQuery, conn+":"+q.text)
}

func (q *QueryOutputValue) validate(v *validator, at string) {
	if q.connection == "" {
		v.fail(at, types.ErrMissingOperand, "query has no connection")
	}
	if strings.TrimSpace(q.text) == "" {
		v.fail(at, types.ErrMissingOperand, "query has no text")
	}
	if q.elem == nil {
		v.fail(at, types.ErrMissingOperand, "query has no element type")
	}
}

func (q *QueryOutputValue) resolve(env *Env, _ any) (operand, error) {
	if env.engine == nil || env.engine.loaders == nil {
		return operand{}, &types.ConfigurationError{
			Component: "rules",
			Message:   "Data Store connection not found: [" + q.connection + "][" + q.kind + "]",
			Err:       types.ErrConnectionNotFound,
		}
	}
	ld, err := env.engine.loaders.Loader(q.connection, q.kind)
	if err != nil {
		return operand{}, err
	}
	rows, err := ld.Read(env.ctx, q.text, q.elem)
	if err != nil {
		return operand{}, err
	}
	return some(rows), nil
}

// coerceAll converts raw members to elem, dropping nulls.
func coerceAll(elem datatype.Basic, raw []any) (operand, error) {
	values := make([]any, 0, len(raw))
	for _, r := range raw {
		res, err := datatype.Coerce(r, elem)
		if err != nil {
			return operand{}, err
		}
		if !res.IsNull {
			values = append(values, res.Value)
		}
	}
	return some(values), nil
}

// expand returns the members of a list, array, set or map value.
func expand(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		keys := rv.MapKeys()
		out := make([]any, 0, len(keys))
		if datatype.IsSet(rv.Type()) {
			for _, k := range keys {
				out = append(out, k.Interface())
			}
		} else {
			sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface()) })
			for _, k := range keys {
				out = append(out, rv.MapIndex(k).Interface())
			}
		}
		return out, true
	}
	return nil, false
}

// member reports whether v equals one of values under dt's comparison.
func member(dt datatype.Basic, values []any, v any) (bool, error) {
	for _, m := range values {
		c, err := dt.CompareValue(m, v)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return true, nil
		}
	}
	return false, nil
}

// elementOf returns the type a predicate compares for dt: the element of a
// collection, the value of a map, or dt itself.
func elementOf(dt datatype.DataType) datatype.DataType {
	switch t := dt.(type) {
	case *datatype.Collection:
		return t.Element
	case *datatype.Map:
		return t.Value
	}
	return dt
}

// elementBasic is elementOf narrowed to Basic, nil when it is not.
func elementBasic(dt datatype.DataType) datatype.Basic {
	if dt == nil {
		return nil
	}
	b, _ := elementOf(dt).(datatype.Basic)
	return b
}

// basicType avoids a typed-nil DataType for a nil Basic.
func basicType(b datatype.Basic) datatype.DataType {
	if b == nil {
		return nil
	}
	return b
}

func typeLabel(dt datatype.DataType) string {
	if dt == nil {
		return "<none>"
	}
	return dt.Name()
}
