package cache

import "github.com/cespare/xxhash/v2"

// Key is the stored representation of one call's arguments. Keys are immutable once
// built and are safe to share between the resolver and the expiration controller.
type Key interface {
	// Args returns the raw representation reported by Cache.Keys.
	Args() []any
	// Matches reports whether args resolve to this key under default equality.
	Matches(args []any) bool
	// MatchesWith is Matches with a caller supplied argument equality.
	MatchesWith(args []any, eq ArgEqual) bool
}

// SingleKey wraps exactly one argument.
type SingleKey struct {
	arg any
}

func NewSingleKey(arg any) *SingleKey {
	return &SingleKey{arg: arg}
}

func (k *SingleKey) Args() []any { return []any{k.arg} }

func (k *SingleKey) Matches(args []any) bool {
	return len(args) == 1 && SameValue(k.arg, args[0])
}

func (k *SingleKey) MatchesWith(args []any, eq ArgEqual) bool {
	return len(args) == 1 && eq(k.arg, args[0])
}

// MultiKey wraps an ordered argument list.
type MultiKey struct {
	args []any
}

// NewMultiKey copies args so later mutation of the caller's slice cannot alter the key.
func NewMultiKey(args []any) *MultiKey {
	cp := make([]any, len(args))
	copy(cp, args)
	return &MultiKey{args: cp}
}

func (k *MultiKey) Args() []any {
	out := make([]any, len(k.args))
	copy(out, k.args)
	return out
}

func (k *MultiKey) Matches(args []any) bool {
	return k.MatchesWith(args, SameValue)
}

func (k *MultiKey) MatchesWith(args []any, eq ArgEqual) bool {
	if len(args) != len(k.args) {
		return false
	}
	for i := range k.args {
		if !eq(k.args[i], args[i]) {
			return false
		}
	}
	return true
}

// Serialized is the single argument the resolver produces in serialization mode.
type Serialized struct {
	Text string
	Sum  uint64
}

// NewSerialized digests text once so keys can reject mismatches without a full compare.
func NewSerialized(text string) Serialized {
	return Serialized{Text: text, Sum: xxhash.Sum64String(text)}
}

// SerializedKey wraps the serialized form of the whole argument list.
type SerializedKey struct {
	s Serialized
}

func NewSerializedKey(s Serialized) *SerializedKey {
	return &SerializedKey{s: s}
}

// Text returns the serialized argument list.
func (k *SerializedKey) Text() string { return k.s.Text }

// Sum returns the xxhash digest of Text.
func (k *SerializedKey) Sum() uint64 { return k.s.Sum }

func (k *SerializedKey) Args() []any { return []any{k.s.Text} }

func (k *SerializedKey) Matches(args []any) bool {
	if len(args) != 1 {
		return false
	}
	switch in := args[0].(type) {
	case Serialized:
		return in.Sum == k.s.Sum && in.Text == k.s.Text
	case string:
		return in == k.s.Text
	}
	return false
}

// MatchesWith ignores eq: serialized keys only ever compare by text.
func (k *SerializedKey) MatchesWith(args []any, _ ArgEqual) bool {
	return k.Matches(args)
}

// ComponentKey wraps an (attributes, context) pair and compares each half shallowly.
type ComponentKey struct {
	attrs   any
	context any
}

// NewComponentKey builds a key from args[0] (attributes) and args[1] (context).
// Missing values are treated as nil.
func NewComponentKey(args []any) *ComponentKey {
	attrs, context := componentHalves(args)
	return &ComponentKey{attrs: attrs, context: context}
}

func (k *ComponentKey) Args() []any { return []any{k.attrs, k.context} }

// Matches compares each half shallowly: property counts first, then every first-level
// property with SameValue.
func (k *ComponentKey) Matches(args []any) bool {
	attrs, context := componentHalves(args)
	return shallowEqual(k.attrs, attrs, SameValue) && shallowEqual(k.context, context, SameValue)
}

// MatchesWith replaces the shallow comparison with eq, applied to each half independently.
func (k *ComponentKey) MatchesWith(args []any, eq ArgEqual) bool {
	attrs, context := componentHalves(args)
	return eq(k.attrs, attrs) && eq(k.context, context)
}

func componentHalves(args []any) (attrs, context any) {
	if len(args) > 0 {
		attrs = args[0]
	}
	if len(args) > 1 {
		context = args[1]
	}
	return attrs, context
}
