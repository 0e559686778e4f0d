package schema

import (
	"math"
	"sort"

	"github.com/solatis/qengine/internal/datatype"
)

// Entry is one path of a described document.
type Entry struct {
	Path string
	Type string
}

// Type labels for document values that have no scalar DataType.
const (
	TypeObject = "object"
	TypeNull   = "null"
	TypeMixed  = "mixed"
)

// Describe flattens a decoded JSON or YAML document the way Build flattens a
// struct: nested objects are listed under "parent/child" and objects inside
// lists are described at the list's own path. Whole numbers are long, other
// numbers double. Entries come back sorted by path.
func Describe(doc any) []Entry {
	seen := map[string]string{}
	describe(doc, "", seen)

	out := make([]Entry, 0, len(seen))
	for p, t := range seen {
		if p == "" {
			continue
		}
		out = append(out, Entry{Path: p, Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func describe(v any, path string, seen map[string]string) {
	record(seen, path, label(v))

	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			describe(child, join(path, k), seen)
		}
	case []any:
		for _, elem := range x {
			if m, ok := elem.(map[string]any); ok {
				for k, child := range m {
					describe(child, join(path, k), seen)
				}
			}
		}
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "/" + key
}

// record merges t into the label already seen at path.
func record(seen map[string]string, path, t string) {
	prev, ok := seen[path]
	if !ok || prev == TypeNull {
		seen[path] = t
		return
	}
	if t != TypeNull {
		seen[path] = merge(prev, t)
	}
}

func merge(a, b string) string {
	switch {
	case a == b:
		return a
	case isNumber(a) && isNumber(b):
		return datatype.Double.Name()
	}
	return TypeMixed
}

func isNumber(t string) bool {
	return t == datatype.Long.Name() || t == datatype.Double.Name()
}

func label(v any) string {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return datatype.Boolean.Name()
	case string:
		return datatype.String.Name()
	case int, int64:
		return datatype.Long.Name()
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return datatype.Long.Name()
		}
		return datatype.Double.Name()
	case map[string]any:
		return TypeObject
	case []any:
		elem := ""
		for _, e := range x {
			t := label(e)
			switch {
			case t == TypeNull:
			case elem == "":
				elem = t
			default:
				elem = merge(elem, t)
			}
		}
		if elem == "" {
			elem = TypeNull
		}
		return "Collection<" + elem + ">"
	}
	return TypeMixed
}
