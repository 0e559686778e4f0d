package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

// Walk resolves the path against instance. The second result is false when
// the path leads nowhere: a nil value on the way, a list position out of
// range, a missing map key, or a runtime value whose shape does not carry the
// named field. Absence is not an error. Errors are reserved for keys that
// cannot be interpreted at all.
func (p *FieldPath) Walk(instance any) (any, bool, error) {
	cur := reflect.ValueOf(instance)
	for _, node := range p.nodes {
		var ok bool
		if cur, ok = indirectValue(cur); !ok {
			return nil, false, nil
		}
		next, ok := member(cur, node)
		if !ok {
			return nil, false, nil
		}
		if node.Indexed {
			var err error
			next, ok, err = element(next, node)
			if err != nil || !ok {
				return nil, false, err
			}
		}
		cur = next
	}

	cur, ok := indirectValue(cur)
	if !ok || !cur.CanInterface() {
		return nil, false, nil
	}
	return cur.Interface(), true, nil
}

// Set writes value through the path into target, which must be a non-nil
// pointer. The value is coerced to the addressed field's DataType when that
// type is basic. Intermediate nil pointers are not allocated.
func (p *FieldPath) Set(target any, value any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: %s needs a non-nil pointer, got %T", types.ErrNotAssignable, p.text, target)
	}
	cur := rv
	last := len(p.nodes) - 1

	for i, node := range p.nodes {
		var ok bool
		if cur, ok = indirectValue(cur); !ok {
			return fmt.Errorf("%w: nil value before %s", types.ErrNotAssignable, node.Journey)
		}
		next, ok := member(cur, node)
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrFieldNotFound, node.Journey)
		}
		if i == last {
			if node.Indexed {
				return setElement(next, node, value)
			}
			return assign(next, node.Journey, value)
		}
		if node.Indexed {
			var err error
			next, ok, err = element(next, node)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no element at %s[%s]", types.ErrNotAssignable, node.Journey, node.Key)
			}
		}
		cur = next
	}
	return nil
}

// member reads the field named by node from cur.
func member(cur reflect.Value, node PathNode) (reflect.Value, bool) {
	switch cur.Kind() {
	case reflect.Struct:
		f := node.Field
		if f == nil || f.Owner != cur.Type() {
			var ok bool
			if f, ok = lookupField(cur.Type(), node.Name, node.Journey); !ok {
				return reflect.Value{}, false
			}
		}
		return f.Get(cur)
	case reflect.Map:
		if cur.Type().Key().Kind() != reflect.String && cur.Type().Key().Kind() != reflect.Interface {
			return reflect.Value{}, false
		}
		v := cur.MapIndex(reflect.ValueOf(node.Name).Convert(cur.Type().Key()))
		return v, v.IsValid()
	}
	return reflect.Value{}, false
}

// element applies node's index to container v.
func element(v reflect.Value, node PathNode) (reflect.Value, bool, error) {
	v, ok := indirectValue(v)
	if !ok {
		return reflect.Value{}, false, nil
	}

	switch {
	case v.Kind() == reflect.Slice || v.Kind() == reflect.Array:
		i, err := position(node)
		if err != nil {
			return reflect.Value{}, false, err
		}
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, false, nil
		}
		return v.Index(i), true, nil

	case datatype.IsSet(v.Type()):
		i, err := position(node)
		if err != nil {
			return reflect.Value{}, false, err
		}
		keys := sortedKeys(v)
		if i < 0 || i >= len(keys) {
			return reflect.Value{}, false, nil
		}
		return keys[i], true, nil

	case v.Kind() == reflect.Map:
		k, err := mapKey(v.Type(), node.Key)
		if err != nil {
			return reflect.Value{}, false, fmt.Errorf("key %q at %s: %w", node.Key, node.Journey, err)
		}
		e := v.MapIndex(k)
		return e, e.IsValid(), nil
	}
	return reflect.Value{}, false, fmt.Errorf("%w: %s is %s", types.ErrNotIndexable, node.Journey, v.Type())
}

func position(node PathNode) (int, error) {
	i, err := strconv.Atoi(node.Key)
	if err != nil {
		return 0, fmt.Errorf("%w: position %q at %s", types.ErrMalformedPath, node.Key, node.Journey)
	}
	return i, nil
}

// sortedKeys snapshots a set's members in ascending order so positions are stable.
func sortedKeys(set reflect.Value) []reflect.Value {
	keys := set.MapKeys()
	kdt, ok := datatype.Convert(set.Type().Key()).(datatype.Basic)
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i].Interface(), keys[j].Interface()
		if ok {
			if c, err := kdt.CompareValue(a, b); err == nil {
				return c < 0
			}
		}
		return fmt.Sprint(a) < fmt.Sprint(b)
	})
	return keys
}

func setElement(container reflect.Value, node PathNode, value any) error {
	container, ok := indirectValue(container)
	if !ok {
		return fmt.Errorf("%w: %s is nil", types.ErrNotAssignable, node.Journey)
	}
	switch container.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := position(node)
		if err != nil {
			return err
		}
		if i < 0 || i >= container.Len() {
			return fmt.Errorf("%w: position %d outside %s", types.ErrNotAssignable, i, node.Journey)
		}
		return assign(container.Index(i), node.Journey, value)
	case reflect.Map:
		if datatype.IsSet(container.Type()) {
			return fmt.Errorf("%w: set members at %s", types.ErrNotAssignable, node.Journey)
		}
		k, err := mapKey(container.Type(), node.Key)
		if err != nil {
			return err
		}
		v, err := convertTo(container.Type().Elem(), node.Journey, value)
		if err != nil {
			return err
		}
		container.SetMapIndex(k, v)
		return nil
	}
	return fmt.Errorf("%w: %s", types.ErrNotIndexable, node.Journey)
}

func assign(dst reflect.Value, journey string, value any) error {
	if !dst.CanSet() {
		return fmt.Errorf("%w: %s", types.ErrNotAssignable, journey)
	}
	v, err := convertTo(dst.Type(), journey, value)
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}

// convertTo produces a value of type t from value, coercing through t's DataType.
func convertTo(t reflect.Type, journey string, value any) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	if dt, ok := datatype.Convert(t).(datatype.Basic); ok {
		res, err := datatype.Coerce(value, dt)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("setting %s: %w", journey, err)
		}
		if res.IsNull {
			return reflect.Zero(t), nil
		}
		value = res.Value
	}

	rv := reflect.ValueOf(value)
	base := datatype.Indirect(t)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(base) && t.Kind() == reflect.Pointer:
		ptr := reflect.New(base)
		ptr.Elem().Set(rv.Convert(base))
		return ptr, nil
	case rv.Type().ConvertibleTo(t):
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %T to %s at %s", types.ErrNotAssignable, value, t, journey)
}

// indirectValue strips pointers and interfaces. It reports false for nil and
// for nil maps and slices.
func indirectValue(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return reflect.Value{}, false
		}
	}
	return v, true
}
