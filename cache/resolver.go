package cache

// resolver turns raw call arguments into the arguments keys are built from, and finds
// the stored key they match. The key variant and the comparison are chosen once.
type resolver struct {
	maxArgs    int
	single     bool
	transform  func(args []any) []any
	serializer KeySerializer
	newKey     func(args []any) Key
	match      func(k Key, args []any) bool
}

func newResolver(cfg Config) *resolver {
	r := &resolver{
		maxArgs:    cfg.MaxArgs,
		transform:  cfg.TransformArgs,
		serializer: cfg.Serializer,
	}

	switch {
	case cfg.Component:
		r.newKey = func(args []any) Key { return NewComponentKey(args) }
	case r.serializer != nil:
		r.newKey = func(args []any) Key { return NewSerializedKey(args[0].(Serialized)) }
	case cfg.MaxArgs == 1 && cfg.TransformArgs == nil:
		r.single = true
		r.newKey = func(args []any) Key { return NewSingleKey(args[0]) }
	default:
		r.newKey = func(args []any) Key { return NewMultiKey(args) }
	}

	switch {
	case r.serializer != nil:
		r.match = func(k Key, args []any) bool { return k.Matches(args) }
	case cfg.MatchesKey != nil:
		eq := cfg.MatchesKey
		r.match = func(k Key, args []any) bool { return eq(k.Args(), args) }
	case cfg.MatchesArg != nil:
		eq := cfg.MatchesArg
		r.match = func(k Key, args []any) bool { return k.MatchesWith(args, eq) }
	default:
		r.match = func(k Key, args []any) bool { return k.Matches(args) }
	}
	return r
}

// prepare applies truncation, then the transform, then serialization. Each step sees the
// output of the previous one.
func (r *resolver) prepare(args []any) ([]any, error) {
	if r.maxArgs > 0 && len(args) > r.maxArgs {
		args = args[:r.maxArgs:r.maxArgs]
	}
	if r.transform != nil {
		args = r.transform(args)
	}
	if r.single && len(args) == 0 {
		args = []any{nil}
	}
	if r.serializer != nil {
		text, err := r.serializer.SerializeKey(args...)
		if err != nil {
			return nil, err
		}
		args = []any{NewSerialized(text)}
	}
	return args, nil
}

// lookup returns the index of the entry matching prepared args, or -1. The head is
// checked before anything else; the rest is scanned in recency order.
func lookup[V any](r *resolver, s *store[V], args []any) int {
	n := s.len()
	if n == 0 {
		return -1
	}
	if r.match(s.at(0).key, args) {
		return 0
	}
	for i := 1; i < n; i++ {
		if r.match(s.at(i).key, args) {
			return i
		}
	}
	return -1
}

// resolve returns the stored key matching prepared args, or a fresh key of the
// configured variant when nothing matches. It never mutates the store.
func resolve[V any](r *resolver, s *store[V], args []any) (Key, int) {
	if i := lookup(r, s, args); i >= 0 {
		return s.at(i).key, i
	}
	return r.newKey(args), -1
}
