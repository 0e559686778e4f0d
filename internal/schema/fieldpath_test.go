package schema

import (
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/qengine/internal/types"
)

func sample() outer {
	return outer{
		DV: 1.5,
		SV: "text",
		TC: testClass{
			Values: map[string]inner{"k1": {Name: "v1", Value: 1}},
			List:   []string{"a", "b", "c", "d", "e", "f"},
			Tags:   map[int32]struct{}{30: {}, 10: {}, 20: {}},
			Scores: map[int32]*inner{7: {Name: "seven"}},
		},
	}
}

func mustIndex(t *testing.T, v any) *Index {
	t.Helper()
	idx, err := Build(reflect.TypeOf(v))
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	return idx
}

func TestParse(t *testing.T) {
	idx := mustIndex(t, outer{})

	tests := []struct {
		name     string
		path     string
		wantErr  error
		wantNode string // offending sub-path reported in the ValidationError
	}{
		{name: "map then field", path: "tc/map[key]/name"},
		{name: "list position", path: "tc/list[5]"},
		{name: "whole container at the end", path: "tc/list"},
		{name: "set position", path: "tc/tags[0]"},
		{name: "integer map key", path: "tc/scores[7]/name"},
		{name: "spaces inside brackets", path: "tc/list[ 2 ]"},
		{name: "empty", path: "  ", wantErr: types.ErrMalformedPath},
		{name: "unknown field", path: "tc/nope", wantErr: types.ErrFieldNotFound, wantNode: "tc/nope"},
		{name: "unknown nested field", path: "tc/map[k]/nope", wantErr: types.ErrFieldNotFound, wantNode: "tc/map/nope"},
		{name: "container mid-path", path: "tc/map/name", wantErr: types.ErrContainerNotIndexed, wantNode: "tc/map"},
		{name: "index on scalar", path: "dv[1]", wantErr: types.ErrNotIndexable, wantNode: "dv"},
		{name: "non-integer position", path: "tc/list[x]", wantErr: types.ErrMalformedPath, wantNode: "tc/list"},
		{name: "unbalanced bracket", path: "tc/list[", wantErr: types.ErrMalformedPath},
		{name: "bad map key", path: "tc/scores[abc]", wantErr: types.ErrCoercionFailed, wantNode: "tc/scores"},
		{name: "empty segment", path: "tc//list", wantErr: types.ErrMalformedPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := Parse(tt.path, idx)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Parse(%q) error = %v, want nil", tt.path, err)
				}
				if fp.Root() != reflect.TypeOf(outer{}) {
					t.Errorf("Root() = %v, want outer", fp.Root())
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
			var ve *types.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Parse(%q) error is %T, want *ValidationError", tt.path, err)
			}
			if tt.wantNode != "" && ve.Node != tt.wantNode {
				t.Errorf("ValidationError.Node = %q, want %q", ve.Node, tt.wantNode)
			}
		})
	}
}

func TestParse_TooDeep(t *testing.T) {
	path := "a"
	for i := 0; i < types.MaxPathDepth; i++ {
		path += "/a"
	}
	if _, err := ParseUnchecked(path); !errors.Is(err, types.ErrPathTooDeep) {
		t.Errorf("ParseUnchecked() error = %v, want ErrPathTooDeep", err)
	}
}

func TestParse_Nodes(t *testing.T) {
	fp, err := Parse("tc/map[k1]/name", mustIndex(t, outer{}))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}

	nodes := fp.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("len(Nodes()) = %d, want 3", len(nodes))
	}
	want := []PathNode{
		{Name: "tc", Sequence: 0, Journey: "tc"},
		{Name: "map", Sequence: 1, Journey: "tc/map", Indexed: true, Key: "k1"},
		{Name: "name", Sequence: 2, Journey: "tc/map/name"},
	}
	for i, n := range nodes {
		w := want[i]
		if n.Name != w.Name || n.Sequence != w.Sequence || n.Journey != w.Journey || n.Indexed != w.Indexed || n.Key != w.Key {
			t.Errorf("Nodes()[%d] = %+v, want %+v", i, n, w)
		}
		if n.Field == nil {
			t.Errorf("Nodes()[%d].Field = nil, want resolved", i)
		}
	}
	if fp.Terminal().Owner != reflect.TypeOf(inner{}) {
		t.Errorf("Terminal().Owner = %v, want inner", fp.Terminal().Owner)
	}
}

func TestParseType_DotJourney(t *testing.T) {
	fp, err := ParseType("tc/map[k1]/name", reflect.TypeOf(&outer{}))
	if err != nil {
		t.Fatalf("ParseType() error = %v, want nil", err)
	}
	if got := fp.Nodes()[2].Journey; got != "tc.map.name" {
		t.Errorf("Journey = %q, want tc.map.name", got)
	}

	got, ok, err := fp.Walk(sample())
	if err != nil || !ok || got != "v1" {
		t.Errorf("Walk() = %v, %v, %v; want v1, true, nil", got, ok, err)
	}

	if _, err := ParseType("tc/list/name", reflect.TypeOf(outer{})); !errors.Is(err, types.ErrContainerNotIndexed) {
		t.Errorf("ParseType(tc/list/name) error = %v, want ErrContainerNotIndexed", err)
	}
	if _, err := ParseType("x", reflect.TypeOf("")); !errors.Is(err, types.ErrNotStruct) {
		t.Errorf("ParseType() on string error = %v, want ErrNotStruct", err)
	}
}

func TestWalk(t *testing.T) {
	idx := mustIndex(t, outer{})
	instance := sample()

	tests := []struct {
		name      string
		path      string
		instance  any
		expected  any
		wantFound bool
	}{
		{name: "list position", path: "tc/list[3]", instance: instance, expected: "d", wantFound: true},
		{name: "map then field", path: "tc/map[k1]/name", instance: instance, expected: "v1", wantFound: true},
		{name: "scalar", path: "dv", instance: instance, expected: 1.5, wantFound: true},
		{name: "pointer instance", path: "sv", instance: &instance, expected: "text", wantFound: true},
		{name: "set snapshot is sorted", path: "tc/tags[0]", instance: instance, expected: int32(10), wantFound: true},
		{name: "set last member", path: "tc/tags[2]", instance: instance, expected: int32(30), wantFound: true},
		{name: "integer key into pointer values", path: "tc/scores[7]/name", instance: instance, expected: "seven", wantFound: true},
		{name: "list past the end", path: "tc/list[10]", instance: instance},
		{name: "negative position", path: "tc/list[-1]", instance: instance},
		{name: "missing map key", path: "tc/map[zz]/name", instance: instance},
		{name: "nil pointer field", path: "ptr/name", instance: instance},
		{name: "nil instance", path: "sv", instance: (*outer)(nil)},
		{name: "nil slice", path: "tc/list[0]", instance: outer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := Parse(tt.path, idx)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v, want nil", tt.path, err)
			}
			got, found, err := fp.Walk(tt.instance)
			if err != nil {
				t.Fatalf("Walk() error = %v, want nil", err)
			}
			if found != tt.wantFound {
				t.Fatalf("Walk() found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.expected {
				t.Errorf("Walk() = %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestWalk_WholeContainer(t *testing.T) {
	fp, err := Parse("tc/list", mustIndex(t, outer{}))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	got, found, err := fp.Walk(sample())
	if err != nil || !found {
		t.Fatalf("Walk() = %v, %v; want found", found, err)
	}
	if !reflect.DeepEqual(got, sample().TC.List) {
		t.Errorf("Walk() = %v, want the whole list", got)
	}
}

func TestWalk_Unchecked(t *testing.T) {
	doc := map[string]any{
		"user": map[string]any{
			"name": "Alice",
			"tags": []any{"x", "y"},
			"prefs": map[string]any{
				"theme": "dark",
			},
		},
	}

	tests := []struct {
		path      string
		expected  any
		wantFound bool
	}{
		{path: "user/name", expected: "Alice", wantFound: true},
		{path: "user/tags[1]", expected: "y", wantFound: true},
		{path: "user/prefs[theme]", expected: "dark", wantFound: true},
		{path: "user/prefs/theme", expected: "dark", wantFound: true},
		{path: "user/missing", wantFound: false},
		{path: "user/name/first", wantFound: false},
		{path: "user/tags[5]", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fp, err := ParseUnchecked(tt.path)
			if err != nil {
				t.Fatalf("ParseUnchecked() error = %v, want nil", err)
			}
			got, found, err := fp.Walk(doc)
			if err != nil {
				t.Fatalf("Walk() error = %v, want nil", err)
			}
			if found != tt.wantFound {
				t.Fatalf("Walk() found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.expected {
				t.Errorf("Walk() = %v, want %v", got, tt.expected)
			}
		})
	}

	fp, _ := ParseUnchecked("user/tags[first]")
	if _, _, err := fp.Walk(doc); !errors.Is(err, types.ErrMalformedPath) {
		t.Errorf("Walk(tags[first]) error = %v, want ErrMalformedPath", err)
	}
	fp, _ = ParseUnchecked("user/name[0]")
	if _, _, err := fp.Walk(doc); !errors.Is(err, types.ErrNotIndexable) {
		t.Errorf("Walk(name[0]) error = %v, want ErrNotIndexable", err)
	}
}

func TestSet(t *testing.T) {
	idx := mustIndex(t, outer{})
	instance := sample()

	tests := []struct {
		path  string
		value any
		check func(o outer) bool
	}{
		{"sv", 42, func(o outer) bool { return o.SV == "42" }},
		{"dv", "2.5", func(o outer) bool { return o.DV == 2.5 }},
		{"tc/list[1]", "B", func(o outer) bool { return o.TC.List[1] == "B" }},
		{"tc/map[k2]", inner{Name: "v2"}, func(o outer) bool { return o.TC.Values["k2"].Name == "v2" }},
		{"tc/scores[7]/name", "SEVEN", func(o outer) bool { return o.TC.Scores[7].Name == "SEVEN" }},
		{"sv", nil, func(o outer) bool { return o.SV == "" }},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fp, err := Parse(tt.path, idx)
			if err != nil {
				t.Fatalf("Parse() error = %v, want nil", err)
			}
			if err := fp.Set(&instance, tt.value); err != nil {
				t.Fatalf("Set() error = %v, want nil", err)
			}
			if !tt.check(instance) {
				t.Errorf("Set(%q, %v) did not take effect: %+v", tt.path, tt.value, instance)
			}
		})
	}
}

func TestSet_Errors(t *testing.T) {
	idx := mustIndex(t, outer{})
	instance := sample()

	tests := []struct {
		name    string
		path    string
		target  any
		value   any
		wantErr error
	}{
		{"not a pointer", "sv", instance, "x", types.ErrNotAssignable},
		{"nil intermediate", "ptr/name", &instance, "x", types.ErrNotAssignable},
		{"list position out of range", "tc/list[9]", &instance, "x", types.ErrNotAssignable},
		{"set member", "tc/tags[0]", &instance, 1, types.ErrNotAssignable},
		{"uncoercible value", "dv", &instance, "abc", types.ErrCoercionFailed},
		{"map value is not addressable", "tc/map[k1]/name", &instance, "x", types.ErrNotAssignable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := Parse(tt.path, idx)
			if err != nil {
				t.Fatalf("Parse() error = %v, want nil", err)
			}
			if err := fp.Set(tt.target, tt.value); !errors.Is(err, tt.wantErr) {
				t.Errorf("Set() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// Property: a list position resolves to the element iff it is in range.
func TestProperty_ListPosition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	idx := mustIndex(t, testClass{})

	properties.Property("position lookup matches slice indexing", prop.ForAll(
		func(list []string, pos int) bool {
			fp, err := Parse("list["+strconv.Itoa(pos)+"]", idx)
			if err != nil {
				return false
			}
			got, found, err := fp.Walk(testClass{List: list})
			if err != nil {
				return false
			}
			if pos >= len(list) {
				return !found
			}
			return found && got == list[pos]
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
