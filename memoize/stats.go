package memoize

import "go.uber.org/atomic"

// Stats counts calls of one memoized function. Every call is either a hit or a miss;
// a miss is any call not answered from the cache.
type Stats struct {
	calls     atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats.
type StatsSnapshot struct {
	Calls     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRatio returns Hits/Calls, or 0 before the first call.
func (s StatsSnapshot) HitRatio() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Calls)
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	calls := s.calls.Load()
	misses := s.misses.Load()
	hits := calls - misses
	if hits < 0 {
		hits = 0
	}
	return StatsSnapshot{
		Calls:     calls,
		Hits:      hits,
		Misses:    misses,
		Evictions: s.evictions.Load(),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.calls.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)
}
