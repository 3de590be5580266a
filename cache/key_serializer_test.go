package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestScenario represents a test scenario loaded from fixtures
type TestScenario struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Cases       []TestCase `json:"cases"`
}

// TestCase represents individual test cases within a scenario
type TestCase struct {
	Args        []any  `json:"args"`
	ExpectedKey string `json:"expectedKey"`
}

// TestFixtures represents the structure of the test fixture file
type TestFixtures struct {
	Scenarios []TestScenario `json:"scenarios"`
}

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func mustSerialize(t *testing.T, s KeySerializer, args ...any) string {
	t.Helper()
	key, err := s.SerializeKey(args...)
	if err != nil {
		t.Fatalf("SerializeKey() error = %v", err)
	}
	return key
}

type node struct {
	Name string
	Next *node
}

type user struct {
	Name  string
	Email string
	age   int
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name string
		args []any
		want string
	}{
		{name: "no args", args: []any{}, want: ""},
		{name: "single int", args: []any{42}, want: "42"},
		{
			name: "multiple basic types",
			args: []any{1, "hello", true, 3.14},
			want: joinWithSeparator("1", `"hello"`, "true", "3.14"),
		},
		{name: "string with separator", args: []any{"hello::world"}, want: `"hello::world"`},
		{name: "nil", args: []any{nil}, want: "nil"},
		{name: "nil slice", args: []any{[]int(nil)}, want: "slice:nil"},
		{name: "nil map", args: []any{map[string]int(nil)}, want: "map:nil"},
		{name: "nil pointer", args: []any{(*int)(nil)}, want: "nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustSerialize(t, serializer, tt.args...); got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_StringsAreDistinctFromNumbers(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	if mustSerialize(t, serializer, "1") == mustSerialize(t, serializer, 1) {
		t.Error(`"1" and 1 must not serialize to the same key`)
	}
	if mustSerialize(t, serializer, "a::b") == mustSerialize(t, serializer, "a", "b") {
		t.Error("a separator inside a string must not split arguments")
	}
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	value := 5

	tests := []struct {
		name string
		args []any
		want string
	}{
		{name: "int slice", args: []any{[]int{1, 2, 3}}, want: "slice[3]:{1,2,3}"},
		{name: "string array", args: []any{[2]string{"a", "b"}}, want: `array[2]:{"a","b"}`},
		{name: "map sorted by key", args: []any{map[string]int{"b": 2, "a": 1}}, want: `map[2]:{"a"=1,"b"=2}`},
		{name: "struct exported fields", args: []any{user{Name: "x", Email: "e", age: 3}}, want: `struct:{Name:"x",Email:"e"}`},
		{name: "pointer is followed", args: []any{&value}, want: "5"},
		{name: "shared acyclic slice renders twice", args: []any{[]int{1}, []int{1}}, want: "slice[1]:{1}::slice[1]:{1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustSerialize(t, serializer, tt.args...); got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_SharedReferenceIsNotACycle(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	shared := []int{1, 2}

	got := mustSerialize(t, serializer, shared, shared)
	want := "slice[2]:{1,2}::slice[2]:{1,2}"
	if got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}
}

func TestDefaultKeySerializer_Cycles(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	self := &node{Name: "a"}
	self.Next = self

	list := []any{1, nil}
	list[1] = list

	m := map[string]any{"k": 1}
	m["self"] = m

	tests := []struct {
		name string
		args []any
		want string
	}{
		{
			name: "self referencing struct",
			args: []any{self},
			want: `struct:{Name:"a",Next:{"$ref":"$[0]"}}`,
		},
		{
			name: "self referencing slice",
			args: []any{list},
			want: `slice[2]:{1,{"$ref":"$[0]"}}`,
		},
		{
			name: "self referencing map",
			args: []any{m},
			want: `map[2]:{"k"=1,"self"={"$ref":"$[0]"}}`,
		},
		{
			name: "cyclic value repeated across arguments",
			args: []any{self, self},
			want: joinWithSeparator(`struct:{Name:"a",Next:{"$ref":"$[0]"}}`, `{"$ref":"$[0]"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustSerialize(t, serializer, tt.args...); got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_DistinctCyclesStayDistinct(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	a := &node{Name: "a"}
	a.Next = a
	b := &node{Name: "b"}
	b.Next = b

	if mustSerialize(t, serializer, a) == mustSerialize(t, serializer, b) {
		t.Error("cyclic values with different content must serialize differently")
	}

	again := &node{Name: "a"}
	again.Next = again
	if mustSerialize(t, serializer, a) != mustSerialize(t, serializer, again) {
		t.Error("structurally identical cyclic values must serialize identically")
	}
}

func TestDefaultKeySerializer_Functions(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fn := func() {}

	key := mustSerialize(t, serializer, fn)
	if !strings.HasPrefix(key, "func:0x") {
		t.Errorf("expected func: prefix with address, got %v", key)
	}
	if key != mustSerialize(t, serializer, fn) {
		t.Error("the same function value must serialize identically")
	}
	if got := mustSerialize(t, serializer, (func())(nil)); got != "func:nil" {
		t.Errorf("expected func:nil, got %v", got)
	}
}

func TestDefaultKeySerializer_Channels(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	ch := make(chan int)

	key := mustSerialize(t, serializer, "ch", ch)
	if !strings.HasPrefix(key, joinWithSeparator(`"ch"`, "chan:")) {
		t.Errorf("channel should be serialized with chan: prefix, got: %v", key)
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	args := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}}

	first := mustSerialize(t, serializer, args...)
	for i := 0; i < 20; i++ {
		if got := mustSerialize(t, serializer, args...); got != first {
			t.Fatalf("key serialization should be stable across runs: %v != %v", got, first)
		}
	}
}

func TestDefaultKeySerializer_Fixtures(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fixtures := loadTestFixtures(t)

	for _, scenario := range fixtures.Scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			for _, tc := range scenario.Cases {
				if got := mustSerialize(t, serializer, tc.Args...); got != tc.ExpectedKey {
					t.Errorf("SerializeKey(%v) = %v, want %v", tc.Args, got, tc.ExpectedKey)
				}
			}
		})
	}
}

func TestMsgpackKeySerializer(t *testing.T) {
	serializer := NewMsgpackKeySerializer()

	a := mustSerialize(t, serializer, 1, "x", map[string]int{"b": 2, "a": 1})
	b := mustSerialize(t, serializer, 1, "x", map[string]int{"a": 1, "b": 2})
	if a != b {
		t.Error("map key order must not change the msgpack key")
	}
	if a == mustSerialize(t, serializer, "1", "x", map[string]int{"a": 1, "b": 2}) {
		t.Error(`"1" and 1 must produce different msgpack keys`)
	}

	self := &node{Name: "a"}
	self.Next = self
	if got := mustSerialize(t, serializer, self); got != `struct:{Name:"a",Next:{"$ref":"$[0]"}}` {
		t.Errorf("cyclic input should fall back to the reference-breaking text, got %q", got)
	}

	_, err := serializer.SerializeKey(make(chan int))
	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Errorf("expected *KeyError for unencodable argument, got %v", err)
	}
}

func loadTestFixtures(t *testing.T) TestFixtures {
	t.Helper()

	filename := filepath.Join("testdata", "key_serializer_scenarios.json")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read fixture file: %v", err)
	}

	var fixtures TestFixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("Failed to unmarshal fixture data: %v", err)
	}
	return fixtures
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	args := []any{1, "benchmark", []int{1, 2, 3}, map[string]int{"test": 1}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = serializer.SerializeKey(args...)
	}
}
