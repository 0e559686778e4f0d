// internal/rules/compile.go
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

/*
 * Definition compilation.
 *
 * Compiles a types.Definition into a Query bound to an Engine: the type name
 * is resolved to a schema index, every field operand is parsed against it,
 * literals are parsed through their DataType, and and/or lists fold left
 * into binary nodes.
 *
 * Compilation workflow:
 *   1. Enforce resource limits (tree depth, list sizes, path depth)
 *   2. Resolve the query type
 *   3. Build the condition tree, collecting every node error
 *   4. Validate the assembled query against its default parameters
 *
 * Errors from step 3 are collected so one pass reports every bad node. A
 * query that compiles may still fail validation later when a parameter it
 * needs is supplied only at evaluation time; Compile therefore validates with
 * parameter presence relaxed.
 */

// Format names a serialized definition encoding.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatFromPath infers the format from a file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".msgpack", ".mp":
		return FormatMsgpack
	}
	return FormatYAML
}

// DecodeDefinition parses a definition document.
func DecodeDefinition(data []byte, format Format) (*types.Definition, error) {
	var def types.Definition
	var err error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&def)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &def)
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&def)
	default:
		return nil, fmt.Errorf("unknown definition format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s definition: %w", format, err)
	}
	return &def, nil
}

// EncodeDefinition serializes a definition.
func EncodeDefinition(def *types.Definition, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(def, "", "  ")
	case FormatMsgpack:
		return msgpack.Marshal(def)
	case FormatYAML, "":
		return yaml.Marshal(def)
	}
	return nil, fmt.Errorf("unknown definition format %q", format)
}

// Compile turns def into a Query over eng's registered types.
func Compile(eng *Engine, def *types.Definition) (*Query, error) {
	if def == nil {
		return nil, types.NewValidationError("definition", types.ErrMissingOperand, "nil definition")
	}
	limits := eng.Limits()
	if d := def.Condition.Depth(); d > limits.MaxTreeDepth {
		return nil, types.NewValidationError(def.Name, types.ErrTreeTooDeep, "depth %d exceeds %d", d, limits.MaxTreeDepth)
	}

	q, err := eng.NewQuery(def.Name, def.Type)
	if err != nil {
		return nil, err
	}
	for k, v := range def.Parameters {
		q.AddParameter(k, v)
	}

	c := &compiler{query: q, limits: limits}
	cond := c.node("root", def.Condition)
	if c.errs != nil {
		if len(c.errs.Errors) == 1 {
			return nil, c.errs.Errors[0]
		}
		return nil, &types.ValidationError{
			Node:    "query " + def.Name,
			Message: fmt.Sprintf("%d problems", len(c.errs.Errors)),
			Err:     c.errs,
		}
	}
	q.WithCondition(cond)

	v := newValidator(q.Root(), nil, limits)
	v.condition("root", cond)
	if err := v.result("query " + def.Name); err != nil && !onlyMissingParameters(v.errs) {
		return nil, err
	}
	return q, nil
}

// CompileDynamic compiles def like Compile, but a type eng does not know is
// compiled as a dynamic document query. Services without host Go types use
// it to evaluate typed definitions against decoded JSON or YAML. The second
// result reports that fallback.
func CompileDynamic(eng *Engine, def *types.Definition) (*Query, bool, error) {
	q, err := Compile(eng, def)
	if err == nil || def == nil || def.Type == "" || !errors.Is(err, types.ErrUnknownQueryType) {
		return q, false, err
	}
	dynamic := *def
	dynamic.Type = ""
	q, err = Compile(eng, &dynamic)
	return q, true, err
}

// onlyMissingParameters reports whether every collected problem is an
// unbound parameter.
func onlyMissingParameters(errs *multierror.Error) bool {
	for _, err := range errs.Errors {
		ve, ok := err.(*types.ValidationError)
		if !ok || ve.Err != types.ErrParameterNotFound {
			return false
		}
	}
	return true
}

type compiler struct {
	query  *Query
	limits types.Limits
	errs   *multierror.Error
}

func (c *compiler) fail(err error) {
	c.errs = multierror.Append(c.errs, err)
}

func (c *compiler) failf(at string, sentinel error, format string, args ...any) {
	c.fail(types.NewValidationError(at, sentinel, format, args...))
}

// node compiles n. It returns nil after recording an error.
func (c *compiler) node(at string, n *types.Node) Condition {
	if n == nil {
		c.failf(at, types.ErrMissingOperand, "condition is missing")
		return nil
	}
	if n.ID != "" {
		at = n.ID
	}

	shapes := 0
	for _, set := range []bool{len(n.And) > 0, len(n.Or) > 0, n.Not != nil, n.Group != nil, n.Op != ""} {
		if set {
			shapes++
		}
	}
	if shapes != 1 {
		c.failf(at, types.ErrInvalidOperator, "node must have exactly one of and, or, not, group, op; has %d", shapes)
		return nil
	}

	var cond Condition
	switch {
	case len(n.And) > 0:
		cond = c.list(at, "and", n.And, AllOf)
	case len(n.Or) > 0:
		cond = c.list(at, "or", n.Or, AnyOf)
	case n.Not != nil:
		if inner := c.node(at+"/not", n.Not); inner != nil {
			cond = Not(inner)
		}
	case n.Group != nil:
		if inner := c.node(at+"/group", n.Group); inner != nil {
			cond = Group(inner)
		}
	default:
		if p := c.predicate(at, n); p != nil {
			cond = p
		}
	}
	if cond != nil && n.ID != "" {
		cond.(interface{ SetID(types.VertexID) }).SetID(types.VertexID(n.ID))
	}
	return cond
}

func (c *compiler) list(at, name string, nodes []*types.Node, fold func(...Condition) Condition) Condition {
	if len(nodes) < 2 {
		c.failf(at, types.ErrMissingOperand, "%s needs at least two conditions", name)
		return nil
	}
	children := make([]Condition, 0, len(nodes))
	for i, child := range nodes {
		if cond := c.node(fmt.Sprintf("%s/%s[%d]", at, name, i), child); cond != nil {
			children = append(children, cond)
		}
	}
	if len(children) != len(nodes) {
		return nil
	}
	return fold(children...)
}

func (c *compiler) predicate(at string, n *types.Node) *Predicate {
	op, err := ParseOperator(n.Op)
	if err != nil {
		c.fail(err)
		return nil
	}
	onMissing, err := ParseOnMissing(n.OnMissing)
	if err != nil {
		c.fail(err)
		return nil
	}

	var dt datatype.Basic
	if strings.TrimSpace(n.Type) != "" {
		if dt, err = datatype.ParseBasic(n.Type); err != nil {
			c.failf(at, err, "type %q", n.Type)
			return nil
		}
	} else if !op.unary() {
		c.failf(at, types.ErrMissingOperand, "%s needs a type", op)
		return nil
	}

	left := c.operand(at+"/left", n.Left, dt, op == OpContains)
	if op.unary() {
		if n.Right != "" {
			c.failf(at, types.ErrInvalidOperator, "%s takes one operand", op)
			return nil
		}
		if left == nil {
			return nil
		}
		if dt == nil {
			dt = elementBasic(left.DataType())
		}
		return NewPredicate(op, dt, left, nil).WithOnMissing(onMissing)
	}

	right := c.operand(at+"/right", n.Right, dt, op == OpIn || op == OpNotIn || op == OpContains)
	if left == nil || right == nil {
		return nil
	}
	return NewPredicate(op, dt, left, right).WithOnMissing(onMissing)
}

// operand parses one printed operand. Parameters in a collection position
// take a Collection type so their text splits on commas.
func (c *compiler) operand(at, text string, dt datatype.Basic, collection bool) Value {
	if strings.TrimSpace(text) == "" {
		c.failf(at, types.ErrMissingOperand, "operand is empty")
		return nil
	}
	v, err := ParseValue(c.query, text, dt)
	if err != nil {
		c.fail(err)
		return nil
	}

	switch x := v.(type) {
	case *ParameterValue:
		if collection && dt != nil {
			return Parameter(datatype.NewCollection(dt), x.Name())
		}
	case *FieldValue:
		if x.Path().Depth() > c.limits.MaxPathDepth {
			c.failf(at, types.ErrPathTooDeep, "%d segments, limit %d", x.Path().Depth(), c.limits.MaxPathDepth)
			return nil
		}
		if dt == nil {
			// Untyped unary predicates take the schema's type for the field.
			if term := x.Path().Terminal(); term != nil && term.DataType != nil {
				return Field(term.DataType, x.Path())
			}
			return Field(datatype.String, x.Path())
		}
	case *CollectionValue:
		if x.Len() > c.limits.MaxCollectionValues {
			c.failf(at, types.ErrTooManyValues, "%d values, limit %d", x.Len(), c.limits.MaxCollectionValues)
			return nil
		}
	}
	return v
}
