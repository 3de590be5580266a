// Package cache implements the key resolution and eviction/expiration engine behind
// memoized functions.
//
// # Overview
//
// A Cache stores the results of one computation keyed by its arguments:
//
//   - Key: one of four interchangeable strategies for representing and matching an
//     argument list (SingleKey, MultiKey, SerializedKey, ComponentKey)
//   - store: entries ordered by recency, most recently used first
//   - resolver: truncates, transforms and serializes arguments, then looks for a match,
//     checking the most recently used entry before scanning the rest
//   - expiration: a size bound (LRU eviction) and an age bound (one-shot timers)
//   - deferred values: results that settle later; rejected results are removed
//
// The package also exports CacheService, a sharded string keyed cache (sturdyc) shared
// between many memoized functions, together with the KeySerializer implementations used
// to address it.
//
// # Basic Usage
//
//	c, err := cache.New[int](cache.Config{MaxSize: 2})
//	if err != nil {
//		return err
//	}
//
//	square := func(args []any) int { n := args[0].(int); return n * n }
//	v, _ := c.LookupOrCompute([]any{3}, square) // computes
//	v, _ = c.LookupOrCompute([]any{3}, square)  // hit
//
// # Choosing a Key Variant
//
// The variant is selected once from Config and never changes:
//
//   - Component: (attributes, context) pairs compared by shallow equality
//   - Serialize or Serializer: the whole argument list rendered to text
//   - MaxArgs == 1 without TransformArgs: a single argument
//   - otherwise: the ordered argument list
//
// Default argument equality is SameValue: NaN equals NaN and reference kinds compare by
// identity. MatchesKey and MatchesArg replace it.
//
// # Expiration
//
// With MaxAge set, each entry arms a timer when it is added (and again on every hit
// with UpdateExpire). Timers capture the entry's generation stamp, not the entry, so a
// timer that fires after the entry was removed, cleared or replaced by an equal key does
// nothing. OnExpire may return true to put the expired entry back.
//
// # Deferred Values
//
// With Deferred set, a value such as *Deferred[T] is stored while still pending, so
// concurrent identical calls share it. Its expiration is armed once it settles; if it
// is rejected the entry is removed and the next call computes again.
//
// # Error Handling
//
// Configuration problems surface from New as *ConfigError (errors.Is ErrConfiguration).
// Serializers recover from cyclic arguments by rendering repeated references as
// {"$ref":"<path>"} markers; only a failure of that fallback reaches callers, as
// *KeyError.
package cache
