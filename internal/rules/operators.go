// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

/*
 * Leaf predicates.
 *
 * A Predicate applies one operator to two Values (one for exists/is_null)
 * under a declared basic DataType. Both operands are coerced to that type by
 * CompareValue before comparing, so mixed representations (int vs "30")
 * compare by value.
 *
 * Operators:
 *   - exists/is_null: presence checks, unary, never consult OnMissing
 *   - eq/neq/lt/lte/gt/gte: scalar comparison
 *   - in/not_in: left scalar is (not) a member of the right collection
 *   - contains: every right member is in the left collection; on two
 *     string scalars it is substring containment
 *   - starts_with/ends_with: string and char types only
 *
 * Absent operands: a missing field, an empty parameter, or an empty
 * collection in scalar position is absent. The predicate's OnMissing policy
 * decides: skip yields false (absent never equals anything, including for
 * neq), match yields true, fail raises an EvaluationError wrapping
 * ErrValueAbsent.
 */

// Operator identifies a predicate's comparison.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpStartsWith
	OpEndsWith
	OpIn
	OpNotIn
	OpContains
	OpExists
	OpIsNull
)

var operatorNames = [...]string{
	OpUnspecified: "unspecified",
	OpEq:          "eq",
	OpNeq:         "neq",
	OpLt:          "lt",
	OpLte:         "lte",
	OpGt:          "gt",
	OpGte:         "gte",
	OpStartsWith:  "starts_with",
	OpEndsWith:    "ends_with",
	OpIn:          "in",
	OpNotIn:       "not_in",
	OpContains:    "contains",
	OpExists:      "exists",
	OpIsNull:      "is_null",
}

// operatorAliases are accepted by ParseOperator besides the canonical names.
var operatorAliases = map[string]Operator{
	"=": OpEq, "==": OpEq, "equals": OpEq,
	"!=": OpNeq, "<>": OpNeq,
	"<": OpLt, "<=": OpLte, ">": OpGt, ">=": OpGte,
	"prefix": OpStartsWith, "suffix": OpEndsWith,
	"nin": OpNotIn,
}

func (op Operator) String() string {
	if op < 0 || int(op) >= len(operatorNames) {
		return "unspecified"
	}
	return operatorNames[op]
}

// ParseOperator accepts canonical names, case-insensitively, and the
// symbolic aliases =, !=, <, <=, >, >=.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for op, name := range operatorNames {
		if name == key && Operator(op) != OpUnspecified {
			return Operator(op), nil
		}
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return OpUnspecified, types.NewValidationError(s, types.ErrInvalidOperator, "unknown operator")
}

func (op Operator) unary() bool {
	return op == OpExists || op == OpIsNull
}

func (op Operator) textual() bool {
	return op == OpStartsWith || op == OpEndsWith
}

// OnMissing is the policy for an absent operand.
type OnMissing int

const (
	OnMissingSkip OnMissing = iota
	OnMissingMatch
	OnMissingFail
)

func (m OnMissing) String() string {
	switch m {
	case OnMissingMatch:
		return "match"
	case OnMissingFail:
		return "fail"
	default:
		return "skip"
	}
}

// ParseOnMissing accepts "skip", "match" and "fail"; empty means skip.
func ParseOnMissing(s string) (OnMissing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return OnMissingSkip, nil
	case "match":
		return OnMissingMatch, nil
	case "fail":
		return OnMissingFail, nil
	}
	return OnMissingSkip, types.NewValidationError(s, types.ErrInvalidOperator, "unknown on_missing policy")
}

// Predicate is a leaf condition.
type Predicate struct {
	vertex
	Op        Operator
	Left      Value
	Right     Value // nil for unary operators
	DataType  datatype.Basic
	OnMissing OnMissing
}

// NewPredicate builds a predicate comparing under dt.
func NewPredicate(op Operator, dt datatype.Basic, left, right Value) *Predicate {
	return &Predicate{Op: op, DataType: dt, Left: left, Right: right}
}

func Equals(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpEq, dt, left, right)
}

func NotEquals(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpNeq, dt, left, right)
}

func LessThan(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpLt, dt, left, right)
}

func LessThanOrEquals(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpLte, dt, left, right)
}

func GreaterThan(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpGt, dt, left, right)
}

func GreaterThanOrEquals(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpGte, dt, left, right)
}

// In tests left for membership in the collection right.
func In(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpIn, dt, left, right)
}

func NotIn(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpNotIn, dt, left, right)
}

// Contains tests that every member of right is in the collection left.
func Contains(dt datatype.Basic, left, right Value) *Predicate {
	return NewPredicate(OpContains, dt, left, right)
}

func StartsWith(left, right Value) *Predicate {
	return NewPredicate(OpStartsWith, datatype.String, left, right)
}

func EndsWith(left, right Value) *Predicate {
	return NewPredicate(OpEndsWith, datatype.String, left, right)
}

// Exists is true when v resolves to a value.
func Exists(v Value) *Predicate {
	return NewPredicate(OpExists, elementBasic(valueType(v)), v, nil)
}

// IsNull is true when v resolves to nothing.
func IsNull(v Value) *Predicate {
	return NewPredicate(OpIsNull, elementBasic(valueType(v)), v, nil)
}

// WithOnMissing sets the absent-operand policy and returns p.
func (p *Predicate) WithOnMissing(m OnMissing) *Predicate {
	p.OnMissing = m
	return p
}

func (p *Predicate) String() string {
	if p.Op.unary() {
		return p.Op.String() + "(" + valueString(p.Left) + ")"
	}
	return valueString(p.Left) + " " + p.Op.String() + " " + valueString(p.Right)
}

func (p *Predicate) validate(v *validator, at string) {
	at = label(p, at)
	if p.Op <= OpUnspecified || p.Op > OpIsNull {
		v.fail(at, types.ErrInvalidOperator, "operator %d", int(p.Op))
		return
	}
	if isNilValue(p.Left) {
		v.fail(at, types.ErrMissingOperand, "%s requires a left operand", p.Op)
	} else {
		p.Left.validate(v, label(p.Left, at+"/left"))
	}

	if p.Op.unary() {
		if !isNilValue(p.Right) {
			v.fail(at, types.ErrInvalidOperator, "%s takes one operand", p.Op)
		}
		return
	}

	if isNilValue(p.Right) {
		v.fail(at, types.ErrMissingOperand, "%s requires a right operand", p.Op)
	} else {
		p.Right.validate(v, label(p.Right, at+"/right"))
	}
	if p.DataType == nil {
		v.fail(at, types.ErrMissingOperand, "%s has no data type", p.Op)
		return
	}
	if p.Op.textual() && p.DataType.Kind() != datatype.KindString && p.DataType.Kind() != datatype.KindChar {
		v.fail(at, types.ErrInvalidOperator, "%s needs a string type, got %s", p.Op, p.DataType.Name())
	}
	p.checkOperandType(v, at+"/left", p.Left)
	p.checkOperandType(v, at+"/right", p.Right)

	// Literal lists only make sense where a collection is expected.
	if _, isList := p.Left.(*CollectionValue); isList && p.Op != OpContains {
		v.fail(at, types.ErrInvalidOperator, "%s does not accept a list on the left", p.Op)
	}
	if _, isList := p.Right.(*CollectionValue); isList && p.Op != OpIn && p.Op != OpNotIn && p.Op != OpContains {
		v.fail(at, types.ErrInvalidOperator, "%s does not accept a list on the right", p.Op)
	}
}

func (p *Predicate) checkOperandType(v *validator, at string, val Value) {
	if isNilValue(val) || val.DataType() == nil {
		return
	}
	elem := elementOf(val.DataType())
	if !datatype.WidensTo(elem, p.DataType) {
		v.fail(at, types.ErrIncompatibleTypes, "%s does not widen to %s", elem.Name(), p.DataType.Name())
	}
}

func (p *Predicate) eval(env *Env, data any) (bool, error) {
	ok, err := p.apply(env, data)
	if err != nil {
		return false, types.NewEvaluationError(err, "%s", label(p, p.String()))
	}
	return ok, nil
}

func (p *Predicate) apply(env *Env, data any) (bool, error) {
	left, err := p.Left.resolve(env, data)
	if err != nil {
		return false, err
	}
	switch p.Op {
	case OpExists:
		return left.present, nil
	case OpIsNull:
		return !left.present, nil
	}

	right, err := p.Right.resolve(env, data)
	if err != nil {
		return false, err
	}
	if !left.present {
		return p.absent("left")
	}
	if !right.present {
		return p.absent("right")
	}

	switch p.Op {
	case OpIn, OpNotIn:
		lv, ok, err := left.scalar()
		if err != nil || !ok {
			return p.scalarMiss("left", err)
		}
		found, err := member(p.DataType, right.members(), lv)
		if err != nil {
			return false, err
		}
		return found == (p.Op == OpIn), nil

	case OpContains:
		if !left.many && !right.many && p.DataType.Kind() == datatype.KindString {
			return textTest(strings.Contains, left.value, right.value)
		}
		for _, rv := range right.members() {
			found, err := member(p.DataType, left.members(), rv)
			if err != nil || !found {
				return false, err
			}
		}
		return true, nil
	}

	lv, ok, err := left.scalar()
	if err != nil || !ok {
		return p.scalarMiss("left", err)
	}
	rv, ok, err := right.scalar()
	if err != nil || !ok {
		return p.scalarMiss("right", err)
	}

	switch p.Op {
	case OpStartsWith:
		return textTest(strings.HasPrefix, lv, rv)
	case OpEndsWith:
		return textTest(strings.HasSuffix, lv, rv)
	}

	c, err := p.DataType.CompareValue(lv, rv)
	if err != nil {
		return false, err
	}
	switch p.Op {
	case OpEq:
		return c == 0, nil
	case OpNeq:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLte:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGte:
		return c >= 0, nil
	}
	return false, types.ErrInvalidOperator
}

// absent applies the OnMissing policy.
func (p *Predicate) absent(side string) (bool, error) {
	switch p.OnMissing {
	case OnMissingMatch:
		return true, nil
	case OnMissingFail:
		return false, types.NewEvaluationError(types.ErrValueAbsent, "%s operand of %s", side, p.Op)
	}
	return false, nil
}

func (p *Predicate) scalarMiss(side string, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return p.absent(side)
}

// textTest applies a string test to the text forms of a and b.
func textTest(test func(s, sub string) bool, a, b any) (bool, error) {
	as, err := datatype.CoerceOrZero(a, datatype.String)
	if err != nil {
		return false, err
	}
	bs, err := datatype.CoerceOrZero(b, datatype.String)
	if err != nil {
		return false, err
	}
	return test(as.(string), bs.(string)), nil
}

func valueType(v Value) datatype.DataType {
	if isNilValue(v) {
		return nil
	}
	return v.DataType()
}

func valueString(v Value) string {
	if isNilValue(v) {
		return "<nil>"
	}
	return v.String()
}
