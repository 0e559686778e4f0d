// internal/rules/conditions.go
package rules

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"

	"github.com/solatis/qengine/internal/types"
)

/*
 * Boolean combinators and the validate-then-evaluate protocol.
 *
 * Evaluate always validates the whole tree first and evaluates only when
 * validation found nothing, so no operand is resolved for a malformed tree.
 * Validation collects every problem rather than stopping at the first; the
 * result is one ValidationError (or the single underlying one) from which
 * errors.Is reaches each sentinel.
 *
 * And and Or short-circuit once the left child decides the result. That is
 * safe because the right child was already validated. Group is transparent
 * and exists so explicit parenthesization survives a round trip through a
 * serialized tree.
 */

// Condition is a Vertex that evaluates to a boolean.
type Condition interface {
	Vertex
	validate(v *validator, at string)
	eval(env *Env, data any) (bool, error)
}

// AndCondition is true when both children are.
type AndCondition struct {
	vertex
	Left, Right Condition
}

// And combines two conditions.
func And(left, right Condition) *AndCondition {
	return &AndCondition{Left: left, Right: right}
}

// AllOf folds conditions left into nested Ands. It returns nil for none.
func AllOf(conds ...Condition) Condition {
	if len(conds) == 0 {
		return nil
	}
	acc := conds[0]
	for _, c := range conds[1:] {
		acc = And(acc, c)
	}
	return acc
}

func (a *AndCondition) String() string {
	return "(" + conditionString(a.Left) + " AND " + conditionString(a.Right) + ")"
}

func (a *AndCondition) validate(v *validator, at string) {
	v.binary(label(a, at), "AND", a.Left, a.Right)
}

func (a *AndCondition) eval(env *Env, data any) (bool, error) {
	l, err := a.Left.eval(env, data)
	if err != nil || !l {
		return false, err
	}
	return a.Right.eval(env, data)
}

// OrCondition is true when either child is.
type OrCondition struct {
	vertex
	Left, Right Condition
}

// Or combines two conditions.
func Or(left, right Condition) *OrCondition {
	return &OrCondition{Left: left, Right: right}
}

// AnyOf folds conditions left into nested Ors. It returns nil for none.
func AnyOf(conds ...Condition) Condition {
	if len(conds) == 0 {
		return nil
	}
	acc := conds[0]
	for _, c := range conds[1:] {
		acc = Or(acc, c)
	}
	return acc
}

func (o *OrCondition) String() string {
	return "(" + conditionString(o.Left) + " OR " + conditionString(o.Right) + ")"
}

func (o *OrCondition) validate(v *validator, at string) {
	v.binary(label(o, at), "OR", o.Left, o.Right)
}

func (o *OrCondition) eval(env *Env, data any) (bool, error) {
	l, err := o.Left.eval(env, data)
	if err != nil || l {
		return l, err
	}
	return o.Right.eval(env, data)
}

// NotCondition inverts its child.
type NotCondition struct {
	vertex
	Inner Condition
}

func Not(inner Condition) *NotCondition {
	return &NotCondition{Inner: inner}
}

func (n *NotCondition) String() string {
	return "NOT " + conditionString(n.Inner)
}

func (n *NotCondition) validate(v *validator, at string) {
	v.unary(label(n, at), "NOT", n.Inner)
}

func (n *NotCondition) eval(env *Env, data any) (bool, error) {
	ok, err := n.Inner.eval(env, data)
	return !ok && err == nil, err
}

// GroupCondition is explicit parenthesization.
type GroupCondition struct {
	vertex
	Inner Condition
}

func Group(inner Condition) *GroupCondition {
	return &GroupCondition{Inner: inner}
}

func (g *GroupCondition) String() string {
	return "(" + conditionString(g.Inner) + ")"
}

func (g *GroupCondition) validate(v *validator, at string) {
	v.unary(label(g, at), "GROUP", g.Inner)
}

func (g *GroupCondition) eval(env *Env, data any) (bool, error) {
	return g.Inner.eval(env, data)
}

// Env carries what one evaluation needs: the context for external reads,
// the engine's collaborators and the bound parameters.
type Env struct {
	ctx    context.Context
	engine *Engine
	params types.Parameters
	root   reflect.Type
}

// NewEnv builds an evaluation environment. engine may be nil when the
// condition uses no reference lists or query outputs.
func NewEnv(ctx context.Context, engine *Engine, params types.Parameters) *Env {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Env{ctx: ctx, engine: engine, params: params.Clone()}
}

func (e *Env) limits() types.Limits {
	if e.engine == nil {
		return types.DefaultLimits()
	}
	return e.engine.limits
}

// Validate checks c structurally against the parameters bound in env.
func Validate(env *Env, c Condition) error {
	v := newValidator(env.root, env.params, env.limits())
	v.condition("root", c)
	return v.result("condition")
}

// Evaluate validates c and, only if it is well formed, evaluates it against data.
func Evaluate(env *Env, c Condition, data any) (bool, error) {
	if err := Validate(env, c); err != nil {
		return false, err
	}
	ok, err := c.eval(env, data)
	if err != nil {
		return false, types.NewEvaluationError(err, "evaluating %s", label(c, "condition"))
	}
	return ok, nil
}

type validator struct {
	root   reflect.Type
	params types.Parameters
	limits types.Limits
	depth  int
	errs   *multierror.Error
}

func newValidator(root reflect.Type, params types.Parameters, limits types.Limits) *validator {
	return &validator{root: root, params: params, limits: limits}
}

func (v *validator) fail(at string, err error, format string, args ...any) {
	v.errs = multierror.Append(v.errs, types.NewValidationError(at, err, format, args...))
}

// condition validates c as a required child at position at.
func (v *validator) condition(at string, c Condition) {
	if isNilCondition(c) {
		v.fail(at, types.ErrMissingOperand, "condition is missing")
		return
	}
	v.depth++
	defer func() { v.depth-- }()
	if v.depth > v.limits.MaxTreeDepth {
		v.fail(at, types.ErrTreeTooDeep, "depth exceeds %d", v.limits.MaxTreeDepth)
		return
	}
	c.validate(v, at)
}

func (v *validator) binary(at, name string, left, right Condition) {
	if isNilCondition(left) {
		v.fail(at, types.ErrMissingOperand, "%s requires a left condition", name)
	} else {
		v.condition(label(left, at+"/left"), left)
	}
	if isNilCondition(right) {
		v.fail(at, types.ErrMissingOperand, "%s requires a right condition", name)
	} else {
		v.condition(label(right, at+"/right"), right)
	}
}

func (v *validator) unary(at, name string, inner Condition) {
	if isNilCondition(inner) {
		v.fail(at, types.ErrMissingOperand, "%s requires an inner condition", name)
		return
	}
	v.condition(label(inner, at+"/inner"), inner)
}

func (v *validator) result(subject string) error {
	if v.errs == nil || len(v.errs.Errors) == 0 {
		return nil
	}
	if len(v.errs.Errors) == 1 {
		return v.errs.Errors[0]
	}
	return &types.ValidationError{
		Node:    subject,
		Message: fmt.Sprintf("%d problems", len(v.errs.Errors)),
		Err:     v.errs,
	}
}

// label prefers a vertex's own ID over its structural position.
func label(x Vertex, at string) string {
	if x != nil {
		if id := x.ID(); id != "" {
			return string(id)
		}
	}
	return at
}

func isNilCondition(c Condition) bool {
	return c == nil || isNilPointer(c)
}

func isNilValue(v Value) bool {
	return v == nil || isNilPointer(v)
}

func isNilPointer(x any) bool {
	rv := reflect.ValueOf(x)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func conditionString(c Condition) string {
	if isNilCondition(c) {
		return "<nil>"
	}
	return c.String()
}
