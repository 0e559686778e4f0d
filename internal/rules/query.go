package rules

import (
	"context"
	"fmt"
	"reflect"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/schema"
	"github.com/solatis/qengine/internal/types"
)

// Query is a named condition over one root type (or over documents when it
// has no schema) plus default parameter values.
//
// A Query is assembled with AddParameter and WithCondition. Once assembled
// it is read-only, and Evaluate may be called concurrently.
type Query struct {
	name     string
	typeName string
	index    *schema.Index
	params   types.Parameters
	cond     Condition
}

// NewQuery starts a query over idx's root type. A nil idx makes a document query.
func NewQuery(name string, idx *schema.Index) *Query {
	return &Query{name: name, index: idx, params: types.Parameters{}}
}

func (q *Query) Name() string { return q.name }

// TypeName is the registered type name the query was built for, if any.
func (q *Query) TypeName() string { return q.typeName }

// Root returns the root type, nil for document queries.
func (q *Query) Root() reflect.Type {
	if q.index == nil {
		return nil
	}
	return q.index.Root()
}

// Index returns the schema index, nil for document queries.
func (q *Query) Index() *schema.Index { return q.index }

// Parameters returns a copy of the default parameters.
func (q *Query) Parameters() types.Parameters { return q.params.Clone() }

// Condition returns the root condition.
func (q *Query) Condition() Condition { return q.cond }

// AddParameter sets a default parameter value.
func (q *Query) AddParameter(name, value string) *Query {
	q.params[name] = value
	return q
}

// WithCondition sets the root condition.
func (q *Query) WithCondition(c Condition) *Query {
	q.cond = c
	return q
}

// Path parses a field path against the query's schema.
func (q *Query) Path(path string) (*schema.FieldPath, error) {
	if q.index == nil {
		return schema.ParseUnchecked(path)
	}
	return schema.Parse(path, q.index)
}

// Field parses path and declares a field operand of type dt.
func (q *Query) Field(dt datatype.DataType, path string) (*FieldValue, error) {
	fp, err := q.Path(path)
	if err != nil {
		return nil, err
	}
	return Field(dt, fp), nil
}

// MustField is Field that panics on error, for statically known paths.
func (q *Query) MustField(dt datatype.DataType, path string) *FieldValue {
	f, err := q.Field(dt, path)
	if err != nil {
		panic(err)
	}
	return f
}

// Validate checks the condition tree with the default parameters overlaid by overrides.
func (q *Query) Validate(limits types.Limits, overrides types.Parameters) error {
	v := newValidator(q.Root(), q.bind(overrides), limits)
	v.condition("root", q.cond)
	return v.result("query " + q.name)
}

// Evaluate runs the query against instance with its default parameters.
func (q *Query) Evaluate(ctx context.Context, eng *Engine, instance any) (bool, error) {
	return q.EvaluateWith(ctx, eng, instance, nil)
}

// EvaluateWith runs the query with overrides replacing default parameters of
// the same name. The tree is validated before any value is resolved.
func (q *Query) EvaluateWith(ctx context.Context, eng *Engine, instance any, overrides types.Parameters) (bool, error) {
	env := NewEnv(ctx, eng, q.bind(overrides))
	env.root = q.Root()

	if err := q.Validate(env.limits(), env.params); err != nil {
		return false, err
	}
	if err := q.checkInstance(instance); err != nil {
		return false, err
	}

	ok, err := q.cond.eval(env, instance)
	if err != nil {
		return false, types.NewEvaluationError(err, "query %s", q.name)
	}
	return ok, nil
}

func (q *Query) checkInstance(instance any) error {
	root := q.Root()
	if root == nil {
		return nil
	}
	if instance == nil {
		return &types.EvaluationError{Message: fmt.Sprintf("query %s: nil instance", q.name), Err: types.ErrTypeMismatch}
	}
	if got := datatype.Indirect(reflect.TypeOf(instance)); got != root {
		return &types.EvaluationError{
			Message: fmt.Sprintf("query %s expects %s, got %s", q.name, root, got),
			Err:     types.ErrTypeMismatch,
		}
	}
	return nil
}

func (q *Query) bind(overrides types.Parameters) types.Parameters {
	out := q.params.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Cost estimates the evaluation cost of the condition tree.
func (q *Query) Cost() int {
	if isNilCondition(q.cond) {
		return 0
	}
	return Cost(q.cond)
}

// Definition converts the query back into its serialized form.
func (q *Query) Definition() *types.Definition {
	def := &types.Definition{Name: q.name, Type: q.typeName}
	if len(q.params) > 0 {
		def.Parameters = q.params.Clone()
	}
	if !isNilCondition(q.cond) {
		def.Condition = describe(q.cond)
	}
	return def
}

// describe renders a condition as a definition node. Left-nested chains of
// the same combinator flatten into one list, the inverse of AllOf/AnyOf.
func describe(c Condition) *types.Node {
	n := &types.Node{ID: string(c.ID())}
	switch c := c.(type) {
	case *AndCondition:
		n.And = append(flatten(c.Left, func(x Condition) (Condition, Condition, bool) {
			a, ok := x.(*AndCondition)
			if !ok || a.ID() != "" {
				return nil, nil, false
			}
			return a.Left, a.Right, true
		}), describe(c.Right))
	case *OrCondition:
		n.Or = append(flatten(c.Left, func(x Condition) (Condition, Condition, bool) {
			o, ok := x.(*OrCondition)
			if !ok || o.ID() != "" {
				return nil, nil, false
			}
			return o.Left, o.Right, true
		}), describe(c.Right))
	case *NotCondition:
		n.Not = describe(c.Inner)
	case *GroupCondition:
		n.Group = describe(c.Inner)
	case *Predicate:
		n.Op = c.Op.String()
		if c.DataType != nil {
			n.Type = c.DataType.Name()
		}
		n.Left = valueString(c.Left)
		if !isNilValue(c.Right) {
			n.Right = c.Right.String()
		}
		if c.OnMissing != OnMissingSkip {
			n.OnMissing = c.OnMissing.String()
		}
	}
	return n
}

func flatten(c Condition, split func(Condition) (Condition, Condition, bool)) []*types.Node {
	if l, r, ok := split(c); ok {
		return append(flatten(l, split), describe(r))
	}
	return []*types.Node{describe(c)}
}
