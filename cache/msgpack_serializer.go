package cache

import (
	"bytes"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// msgpackKeySerializer renders argument lists as msgpack with sorted map keys. Keys are
// binary and shorter than the default text form, which suits data-only arguments stored
// in the shared service. Functions and channels are rejected by the encoder.
type msgpackKeySerializer struct{}

// NewMsgpackKeySerializer creates a compact binary key serializer.
func NewMsgpackKeySerializer() KeySerializer {
	return &msgpackKeySerializer{}
}

func (s *msgpackKeySerializer) SerializeKey(args ...any) (string, error) {
	if hasCycle(args) {
		text, err := serializeArgs(args, true)
		if err != nil {
			return "", &KeyError{Err: err}
		}
		return text, nil
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", &KeyError{Err: err}
	}
	return buf.String(), nil
}

// hasCycle walks args looking for a reference that contains itself. The encoder would
// recurse forever on such input.
func hasCycle(args []any) bool {
	active := make(map[ref]struct{})
	for _, arg := range args {
		if cyclic(reflect.ValueOf(arg), active) {
			return true
		}
	}
	return false
}

func cyclic(rv reflect.Value, active map[ref]struct{}) bool {
	if !rv.IsValid() {
		return false
	}

	switch rv.Kind() {
	case reflect.Interface:
		return !rv.IsNil() && cyclic(rv.Elem(), active)
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if cyclic(rv.Index(i), active) {
				return true
			}
		}
		return false
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).IsExported() && cyclic(rv.Field(i), active) {
				return true
			}
		}
		return false
	}

	r, ok := refOf(rv)
	if !ok {
		return false
	}
	if _, seen := active[r]; seen {
		return true
	}
	active[r] = struct{}{}
	defer delete(active, r)

	switch rv.Kind() {
	case reflect.Pointer:
		return cyclic(rv.Elem(), active)
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if cyclic(rv.Index(i), active) {
				return true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if cyclic(iter.Key(), active) || cyclic(iter.Value(), active) {
				return true
			}
		}
	}
	return false
}
