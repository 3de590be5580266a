package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// KeySerializer turns a whole argument list into a stable string. Two argument lists
// that serialize to the same text resolve to the same cache entry.
type KeySerializer interface {
	SerializeKey(args ...any) (string, error)
}

// SerializerFunc adapts a plain function to KeySerializer.
type SerializerFunc func(args ...any) (string, error)

func (f SerializerFunc) SerializeKey(args ...any) (string, error) {
	return f(args...)
}

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Function and channel values are rendered by address, maps by sorted key, structs by
// exported field. Self-referencing values are rendered by the reference-breaking pass.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey renders every argument and joins them with KeySeparator.
//
// The first pass fails with ErrCyclicValue as soon as a value refers back to one of its
// ancestors. The serializer then renders the arguments again, replacing every repeated
// reference with a {"$ref":"<path>"} marker naming the first place it was seen, and
// returns that text instead.
func (s *defaultKeySerializer) SerializeKey(args ...any) (string, error) {
	text, err := serializeArgs(args, false)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, ErrCyclicValue) {
		return "", &KeyError{Err: err}
	}

	text, err = serializeArgs(args, true)
	if err != nil {
		return "", &KeyError{Err: err}
	}
	return text, nil
}

func serializeArgs(args []any, decycle bool) (string, error) {
	w := newWalker(decycle)
	parts := make([]string, len(args))
	for i, arg := range args {
		part, err := w.walk(reflect.ValueOf(arg), "$["+strconv.Itoa(i)+"]")
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return strings.Join(parts, KeySeparator), nil
}

// ref identifies a reference value. The type is part of the identity because a pointer
// to a struct and a pointer to its first field share an address.
type ref struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func refOf(rv reflect.Value) (ref, bool) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Type().Elem().Size() == 0 {
			return ref{}, false
		}
		return ref{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Map:
		if rv.IsNil() {
			return ref{}, false
		}
		return ref{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.IsNil() || rv.Len() == 0 {
			return ref{}, false
		}
		return ref{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}, true
	}
	return ref{}, false
}

type walker struct {
	decycle bool
	active  map[ref]struct{}
	seen    map[ref]string
}

func newWalker(decycle bool) *walker {
	w := &walker{decycle: decycle}
	if decycle {
		w.seen = make(map[ref]string)
	} else {
		w.active = make(map[ref]struct{})
	}
	return w
}

func (w *walker) walk(rv reflect.Value, path string) (string, error) {
	if !rv.IsValid() {
		return "nil", nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return "nil", nil
		}
		return w.walk(rv.Elem(), path)

	case reflect.Func:
		if rv.IsNil() {
			return "func:nil", nil
		}
		return fmt.Sprintf("func:%#x", funcIdentity(rv)), nil

	case reflect.Chan:
		if rv.IsNil() {
			return "chan:nil", nil
		}
		return fmt.Sprintf("chan:%#x", rv.Pointer()), nil

	case reflect.String:
		return strconv.Quote(rv.String()), nil

	case reflect.Pointer:
		if rv.IsNil() {
			return "nil", nil
		}
		return w.enter(rv, path, func() (string, error) {
			return w.walk(rv.Elem(), path)
		})

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil", nil
		}
		return w.enter(rv, path, func() (string, error) {
			return w.list("slice", rv, path)
		})

	case reflect.Array:
		return w.list("array", rv, path)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil", nil
		}
		return w.enter(rv, path, func() (string, error) {
			return w.mapping(rv, path)
		})

	case reflect.Struct:
		return w.structure(rv, path)
	}

	if isBasicKind(rv.Kind()) {
		return fmt.Sprintf("%v", rv), nil
	}
	return jsonFallback(rv), nil
}

// enter tracks reference identity around body. In the first pass it only knows the
// references currently being rendered, so shared but acyclic values render in full.
func (w *walker) enter(rv reflect.Value, path string, body func() (string, error)) (string, error) {
	r, ok := refOf(rv)
	if !ok {
		return body()
	}

	if w.decycle {
		if first, seen := w.seen[r]; seen {
			return fmt.Sprintf(`{"$ref":%q}`, first), nil
		}
		w.seen[r] = path
		return body()
	}

	if _, cyclic := w.active[r]; cyclic {
		return "", ErrCyclicValue
	}
	w.active[r] = struct{}{}
	defer delete(w.active, r)
	return body()
}

func (w *walker) list(label string, rv reflect.Value, path string) (string, error) {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		part, err := w.walk(rv.Index(i), path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return fmt.Sprintf("%s[%d]:{%s}", label, length, strings.Join(parts, ",")), nil
}

// mapping renders entries sorted by their rendered key so output does not depend on map
// iteration order.
func (w *walker) mapping(rv reflect.Value, path string) (string, error) {
	type pair struct {
		key   string
		value reflect.Value
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := newWalker(true).walk(iter.Key(), "")
		if err != nil {
			return "", err
		}
		pairs = append(pairs, pair{key: key, value: iter.Value()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		value, err := w.walk(p.value, path+"["+p.key+"]")
		if err != nil {
			return "", err
		}
		parts[i] = p.key + "=" + value
	}
	return fmt.Sprintf("map[%d]:{%s}", len(parts), strings.Join(parts, ",")), nil
}

func (w *walker) structure(rv reflect.Value, path string) (string, error) {
	rt := rv.Type()
	parts := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		value, err := w.walk(rv.Field(i), path+"."+field.Name)
		if err != nil {
			return "", err
		}
		parts = append(parts, field.Name+":"+value)
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ",")), nil
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// jsonFallback covers the remaining kinds (unsafe pointers) and never fails.
func jsonFallback(rv reflect.Value) string {
	if rv.CanInterface() {
		if data, err := json.Marshal(rv.Interface()); err == nil {
			return "json:" + string(data)
		}
	}
	return "fallback:" + rv.Type().String()
}
