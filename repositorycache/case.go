package repositorycache

import (
	"reflect"
	"strings"
	"unicode"
)

// modelName returns the snake_case name of T's underlying struct, used to name the
// memoized read methods in logs and metrics.
func modelName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if name := toSnake(t.Name()); name != "" {
		return name
	}
	return "record"
}

// toSnake converts s to snake_case. Characters other than letters and digits become a
// single separator, so reflected names of generic or pointer types stay usable as
// metric labels.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	underscore := func() {
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					underscore()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			sep = false
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			sep = false
		default:
			underscore()
		}
	}
	return strings.Trim(b.String(), "_")
}
