// Package connstats keeps per-connection statistics records. Each record
// carries the connection's static tag history.
package connstats

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"

	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/metrics"
	"firestige.xyz/conntag/internal/tags"
)

// ConnStats is the statistics record of one connection. Sent counts traffic
// flowing from the tuple's source to its destination.
type ConnStats struct {
	Tuple core.ConnTuple

	SentBytes   atomic.Uint64
	RecvBytes   atomic.Uint64
	SentPackets atomic.Uint64
	RecvPackets atomic.Uint64
	FirstSeen   atomic.Int64 // unix nanoseconds
	LastSeen    atomic.Int64 // unix nanoseconds

	tags tags.History
}

// StaticTags implements tags.StatsRecord.
func (s *ConnStats) StaticTags() *tags.History {
	return &s.tags
}

// Record accounts one packet of n bytes seen at ts.
func (s *ConnStats) Record(ts time.Time, n int, sent bool) {
	if sent {
		s.SentBytes.Add(uint64(n))
		s.SentPackets.Inc()
	} else {
		s.RecvBytes.Add(uint64(n))
		s.RecvPackets.Inc()
	}
	nanos := ts.UnixNano()
	s.FirstSeen.CompareAndSwap(0, nanos)
	if nanos > s.LastSeen.Load() {
		s.LastSeen.Store(nanos)
	}
}

// Table is a bounded set of statistics records. When full, the least
// recently used record is evicted.
type Table struct {
	cache *lru.Cache[core.ConnTuple, *ConnStats]
}

// NewTable creates a table holding at most size records.
func NewTable(size int) (*Table, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: stats max entries must be positive, got %d", core.ErrConfigInvalid, size)
	}
	cache, err := lru.NewWithEvict(size, func(_ core.ConnTuple, _ *ConnStats) {
		metrics.ConnStatsEvictionsTotal.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create stats table: %w", err)
	}
	return &Table{cache: cache}, nil
}

// Track returns the record of key, creating it if needed, and accounts one
// packet on it.
func (t *Table) Track(key core.ConnTuple, ts time.Time, n int, sent bool) *ConnStats {
	s, ok := t.cache.Get(key)
	if !ok {
		fresh := &ConnStats{Tuple: key}
		prev, found, _ := t.cache.PeekOrAdd(key, fresh)
		if found {
			s = prev
		} else {
			s = fresh
		}
	}
	s.Record(ts, n, sent)
	return s
}

// Get returns the record of key.
func (t *Table) Get(key core.ConnTuple) (*ConnStats, bool) {
	return t.cache.Get(key)
}

// LookupStats implements tags.StatsLookup.
func (t *Table) LookupStats(key core.ConnTuple) (tags.StatsRecord, bool) {
	s, ok := t.cache.Get(key)
	if !ok {
		return nil, false
	}
	return s, true
}

// Len returns the number of records.
func (t *Table) Len() int {
	return t.cache.Len()
}

// Records returns all records from oldest to newest use.
func (t *Table) Records() []*ConnStats {
	return t.cache.Values()
}
