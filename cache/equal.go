package cache

import (
	"math"
	"reflect"
	"unsafe"
)

// ArgEqual compares a stored argument with an incoming one.
type ArgEqual func(stored, incoming any) bool

// KeyEqual compares a whole stored argument list with an incoming one.
type KeyEqual func(stored, incoming []any) bool

// SameValue is the default argument equality. NaN equals NaN, comparable values use ==,
// and reference kinds (maps, slices, funcs, chans) are equal only when they share the
// same underlying storage. Two closures of the same literal are different functions.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return x == y || (math.IsNaN(x) && math.IsNaN(y))
		}
		return false
	case float32:
		if y, ok := b.(float32); ok {
			return x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	case int:
		y, ok := b.(int)
		return ok && x == y
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Func:
		return funcIdentity(va) == funcIdentity(vb)
	case reflect.Map, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}

	if ta.Comparable() {
		return safeEqual(a, b)
	}
	return false
}

// safeEqual guards against structs or arrays that are comparable by type but hold an
// uncomparable value in an interface field.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// shallowEqual compares the first-level properties of two values. Maps compare key by key,
// structs compare exported fields, and a pointer to a struct is dereferenced once. Nested
// values are compared with eq and never recursed into.
func shallowEqual(a, b any, eq ArgEqual) bool {
	if eq(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	va, vb := indirectStruct(reflect.ValueOf(a)), indirectStruct(reflect.ValueOf(b))
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() == vb.IsNil()
		}
		if va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !eq(iter.Value().Interface(), other.Interface()) {
				return false
			}
		}
		return true
	case reflect.Struct:
		t := va.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if !eq(va.Field(i).Interface(), vb.Field(i).Interface()) {
				return false
			}
		}
		return true
	}
	return false
}

func indirectStruct(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct {
		return v.Elem()
	}
	return v
}

// funcIdentity returns the address of the function value itself. reflect's Pointer only
// yields the code address, which every closure of one literal shares.
func funcIdentity(v reflect.Value) uintptr {
	if v.IsNil() {
		return 0
	}
	if !v.CanInterface() {
		return v.Pointer()
	}
	fn := v.Interface()
	return uintptr((*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1])
}
