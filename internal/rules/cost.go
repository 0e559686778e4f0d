// internal/rules/cost.go
package rules

import "github.com/solatis/qengine/internal/datatype"

/*
 * Cost model for condition evaluation.
 *
 * Cost estimates the work one evaluation does, for reporting by `qengine
 * check` and for comparing alternative formulations of a query. It does not
 * reorder evaluation: And/Or always evaluate left to right.
 *
 * Predicate cost = operand costs + operator_cost * type_multiplier * fanout
 *
 * Operand costs: constants are free, parameters are parsed per evaluation,
 * fields pay per path segment, reference lists and query outputs pay for the
 * external round trip on a cache miss. Fanout is 8 when either operand is a
 * collection, reflecting membership scans.
 */

const (
	// Operator base costs
	CostExists     = 1
	CostIsNull     = 1
	CostEq         = 5
	CostNeq        = 5
	CostLt         = 7
	CostLte        = 7
	CostGt         = 7
	CostGte        = 7
	CostIn         = 8
	CostContains   = 8
	CostStartsWith = 10
	CostEndsWith   = 10

	// Operand costs
	CostLookupPerSegment = 128
	CostParameter        = 16
	CostReference        = 1024
	CostQueryOutput      = 8192

	// Data type multipliers
	MultiplierInt      = 1
	MultiplierBool     = 1
	MultiplierFloat    = 4
	MultiplierTemporal = 4
	MultiplierString   = 48
	MultiplierAny      = 128

	// Fanout applied when an operand is a collection
	CollectionFanout = 8
)

// Cost computes the estimated cost of evaluating c once.
func Cost(c Condition) int {
	switch c := c.(type) {
	case *AndCondition:
		return Cost(c.Left) + Cost(c.Right)
	case *OrCondition:
		return Cost(c.Left) + Cost(c.Right)
	case *NotCondition:
		return Cost(c.Inner)
	case *GroupCondition:
		return Cost(c.Inner)
	case *Predicate:
		return predicateCost(c)
	}
	return 0
}

func predicateCost(p *Predicate) int {
	fanout := 1
	total := 0
	for _, v := range []Value{p.Left, p.Right} {
		if isNilValue(v) {
			continue
		}
		total += operandCost(v)
		if _, many := v.DataType().(*datatype.Collection); many {
			fanout = CollectionFanout
		}
	}
	return total + operatorCost(p.Op)*typeMultiplier(p.DataType)*fanout
}

func operandCost(v Value) int {
	switch v := v.(type) {
	case *FieldValue:
		if v.Path() == nil {
			return 0
		}
		return CostLookupPerSegment * v.Path().Depth()
	case *ParameterValue:
		return CostParameter
	case *ReferenceValue:
		return CostReference
	case *QueryOutputValue:
		return CostQueryOutput
	}
	return 0
}

// operatorCost returns base cost for operator execution.
func operatorCost(op Operator) int {
	switch op {
	case OpExists, OpIsNull:
		return CostExists
	case OpEq, OpNeq:
		return CostEq
	case OpLt, OpLte, OpGt, OpGte:
		return CostLt
	case OpIn, OpNotIn:
		return CostIn
	case OpContains:
		return CostContains
	case OpStartsWith, OpEndsWith:
		return CostStartsWith
	default:
		return CostEq
	}
}

// typeMultiplier returns cost multiplier based on data type comparison cost.
func typeMultiplier(dt datatype.Basic) int {
	if dt == nil {
		return MultiplierAny
	}
	switch k := dt.Kind(); {
	case k == datatype.KindBoolean:
		return MultiplierBool
	case k == datatype.KindFloat || k == datatype.KindDouble:
		return MultiplierFloat
	case k.IsNumeric():
		return MultiplierInt
	case k.IsTemporal():
		return MultiplierTemporal
	case k == datatype.KindString || k == datatype.KindChar:
		return MultiplierString
	default:
		return MultiplierAny
	}
}
