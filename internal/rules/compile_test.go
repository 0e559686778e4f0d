package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/qengine/internal/types"
)

const adultsYAML = `
name: adults
type: person
parameters:
  minAge: "18"
condition:
  and:
    - op: eq
      type: string
      left: "` + "`field:name`" + `"
      right: "` + "`const:Ann`" + `"
    - op: gte
      type: long
      left: "` + "`field:age`" + `"
      right: "` + "`param:minAge`" + `"
`

func compileYAML(t *testing.T, eng *Engine, doc string) (*Query, error) {
	t.Helper()
	def, err := DecodeDefinition([]byte(doc), FormatYAML)
	require.NoError(t, err)
	return Compile(eng, def)
}

func TestCompile_Evaluate(t *testing.T) {
	eng := newTestEngine(t)
	q, err := compileYAML(t, eng, adultsYAML)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if q.Name() != "adults" || q.TypeName() != "person" {
		t.Errorf("Compile() = %s/%s, want adults/person", q.Name(), q.TypeName())
	}

	tests := []struct {
		name string
		in   person
		want bool
	}{
		{"adult ann", person{Name: "Ann", Age: 30}, true},
		{"young ann", person{Name: "Ann", Age: 3}, false},
		{"adult bob", person{Name: "Bob", Age: 30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Evaluate(context.Background(), eng, tt.in)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_RoundTripFormats(t *testing.T) {
	eng := newTestEngine(t)
	src, err := DecodeDefinition([]byte(adultsYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeDefinition(src, format)
			require.NoError(t, err)
			def, err := DecodeDefinition(data, format)
			require.NoError(t, err)

			q, err := Compile(eng, def)
			require.NoError(t, err)
			assert.Equal(t, src, q.Definition())
		})
	}
}

func TestCompile_DefinitionShapes(t *testing.T) {
	eng := newTestEngine(t)
	def := &types.Definition{
		Name: "shapes",
		Type: "person",
		Condition: &types.Node{Or: []*types.Node{
			{ID: "named", Op: "exists", Left: "`field:address/city`"},
			{Not: &types.Node{Group: &types.Node{Op: "in", Type: "string", Left: "`field:name`", Right: "`list:Ann,Bob`"}}},
			{Op: "lt", Type: "long", Left: "`field:age`", Right: "`const:5`", OnMissing: "match"},
		}},
	}

	q, err := Compile(eng, def)
	require.NoError(t, err)

	got := q.Definition()
	// Untyped unary predicates take the field's schema type.
	def.Condition.Or[0].Type = "string"
	assert.Equal(t, def, got)
	assert.Equal(t, types.VertexID("named"), q.Condition().(*OrCondition).Left.(*OrCondition).Left.ID())

	ok, err := q.Evaluate(context.Background(), eng, person{Name: "Cid", Age: 40})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompile_Membership(t *testing.T) {
	eng := newTestEngine(t)
	q, err := compileYAML(t, eng, `
name: names
type: person
parameters:
  names: "Ann, Bob"
condition:
  op: in
  type: string
  left: "`+"`field:name`"+`"
  right: "`+"`param:names`"+`"
`)
	require.NoError(t, err)

	for name, want := range map[string]bool{"Ann": true, "Bob": true, "Cid": false} {
		got, err := q.Evaluate(context.Background(), eng, person{Name: name})
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestCompile_LateParameters(t *testing.T) {
	eng := newTestEngine(t)
	q, err := Compile(eng, &types.Definition{
		Name: "late",
		Type: "person",
		Condition: &types.Node{
			Op: "eq", Type: "string", Left: "`field:name`", Right: "`param:who`",
		},
	})
	require.NoError(t, err, "parameters may be supplied at evaluation time")

	_, err = q.Evaluate(context.Background(), eng, person{Name: "Ann"})
	assert.ErrorIs(t, err, types.ErrParameterNotFound)

	got, err := q.EvaluateWith(context.Background(), eng, person{Name: "Ann"}, types.Parameters{"who": "Ann"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompile_DocumentType(t *testing.T) {
	eng := NewEngine()
	q, err := Compile(eng, &types.Definition{
		Name:      "doc",
		Condition: &types.Node{Op: "starts_with", Type: "string", Left: "`field:user/email`", Right: "`const:admin@`"},
	})
	require.NoError(t, err)

	got, err := q.Evaluate(context.Background(), eng, map[string]any{"user": map[string]any{"email": "admin@example.com"}})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompileDynamic(t *testing.T) {
	def := &types.Definition{
		Name:      "adults",
		Type:      "person",
		Condition: &types.Node{Op: "gte", Type: "long", Left: "`field:age`", Right: "`const:18`"},
	}

	eng := NewEngine()
	q, dynamic, err := CompileDynamic(eng, def)
	require.NoError(t, err)
	assert.True(t, dynamic)
	assert.Equal(t, "person", def.Type, "caller's definition is not modified")

	got, err := q.Evaluate(context.Background(), eng, map[string]any{"age": 30})
	require.NoError(t, err)
	assert.True(t, got)

	_, dynamic, err = CompileDynamic(newTestEngine(t), def)
	require.NoError(t, err)
	assert.False(t, dynamic, "registered types compile against their schema")

	_, dynamic, err = CompileDynamic(NewEngine(), &types.Definition{Type: "person", Condition: &types.Node{Op: "like"}})
	assert.True(t, types.IsValidation(err))
	assert.True(t, dynamic)
}

func TestCompile_Errors(t *testing.T) {
	leaf := func() *types.Node {
		return &types.Node{Op: "eq", Type: "string", Left: "`field:name`", Right: "`const:x`"}
	}

	tests := []struct {
		name string
		def  *types.Definition
		want error
	}{
		{"nil definition", nil, types.ErrMissingOperand},
		{"unknown type", &types.Definition{Type: "alien", Condition: leaf()}, types.ErrUnknownQueryType},
		{"missing condition", &types.Definition{Type: "person"}, types.ErrMissingOperand},
		{"two shapes", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Not: leaf()}}, types.ErrInvalidOperator},
		{"empty node", &types.Definition{Type: "person", Condition: &types.Node{}}, types.ErrInvalidOperator},
		{"single child and", &types.Definition{Type: "person", Condition: &types.Node{And: []*types.Node{leaf()}}}, types.ErrMissingOperand},
		{"unknown operator", &types.Definition{Type: "person", Condition: &types.Node{Op: "like", Type: "string", Left: "`field:name`", Right: "`const:x`"}}, types.ErrInvalidOperator},
		{"unknown on_missing", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "string", Left: "`field:name`", Right: "`const:x`", OnMissing: "maybe"}}, types.ErrInvalidOperator},
		{"missing type", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Left: "`field:name`", Right: "`const:x`"}}, types.ErrMissingOperand},
		{"unknown data type", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "blob", Left: "`field:name`", Right: "`const:x`"}}, types.ErrUnknownType},
		{"unknown field", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "string", Left: "`field:nickname`", Right: "`const:x`"}}, types.ErrFieldNotFound},
		{"unknown keyword", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "string", Left: "`column:name`", Right: "`const:x`"}}, types.ErrUnknownOperand},
		{"empty operand", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "string", Left: "`field:name`"}}, types.ErrMissingOperand},
		{"unary with right", &types.Definition{Type: "person", Condition: &types.Node{Op: "exists", Left: "`field:name`", Right: "`const:x`"}}, types.ErrInvalidOperator},
		{"bad literal", &types.Definition{Type: "person", Condition: &types.Node{Op: "eq", Type: "long", Left: "`field:age`", Right: "`const:old`"}}, types.ErrCoercionFailed},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(eng, tt.def)
			if !types.IsValidation(err) {
				t.Fatalf("Compile() error = %v, want ValidationError", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompile_CollectsNodeErrors(t *testing.T) {
	eng := newTestEngine(t)
	_, err := Compile(eng, &types.Definition{
		Name: "broken",
		Type: "person",
		Condition: &types.Node{And: []*types.Node{
			{Op: "like", Type: "string", Left: "`field:name`", Right: "`const:x`"},
			{Op: "eq", Type: "string", Left: "`field:nickname`", Right: "`const:x`"},
		}},
	})

	var ve *types.ValidationError
	require.True(t, errors.As(err, &ve), "error = %v", err)
	assert.Equal(t, "2 problems", ve.Message)
	assert.ErrorIs(t, err, types.ErrInvalidOperator)
	assert.ErrorIs(t, err, types.ErrFieldNotFound)
}

func TestCompile_Limits(t *testing.T) {
	eng := NewEngine(WithLimits(types.Limits{MaxTreeDepth: 2, MaxPathDepth: 1, MaxCollectionValues: 2}))
	require.NoError(t, eng.RegisterType("person", person{}))
	leaf := &types.Node{Op: "eq", Type: "string", Left: "`field:name`", Right: "`const:x`"}

	tests := []struct {
		name string
		node *types.Node
		want error
	}{
		{"tree depth", &types.Node{Not: &types.Node{Not: leaf}}, types.ErrTreeTooDeep},
		{"path depth", &types.Node{Op: "eq", Type: "string", Left: "`field:address/city`", Right: "`const:x`"}, types.ErrPathTooDeep},
		{"collection size", &types.Node{Op: "in", Type: "string", Left: "`field:name`", Right: "`list:a,b,c`"}, types.ErrTooManyValues},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(eng, &types.Definition{Name: tt.name, Type: "person", Condition: tt.node})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeDefinition_Strict(t *testing.T) {
	_, err := DecodeDefinition([]byte("name: x\nconditon: {}\n"), FormatYAML)
	assert.Error(t, err)
	_, err = DecodeDefinition([]byte(`{"name":"x","extra":1}`), FormatJSON)
	assert.Error(t, err)
	_, err = DecodeDefinition([]byte(`{}`), Format("toml"))
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"q.json":    FormatJSON,
		"q.MP":      FormatMsgpack,
		"q.msgpack": FormatMsgpack,
		"q.yaml":    FormatYAML,
		"q":         FormatYAML,
	} {
		assert.Equal(t, want, FormatFromPath(path), path)
	}
}
