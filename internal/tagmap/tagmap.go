// Package tagmap implements the bounded connection tag store.
//
// The store is a pre-sized open-addressing table allocated once at
// construction: a slot array (power of two, at least twice the entry limit)
// indexes into an arena of entries. Lookups are lock-free; creation of a new
// key takes a single mutex for one bounded probe, which gives exactly-once
// creation when several goroutines race on the same absent key.
package tagmap

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/twmb/murmur3"
	"go.uber.org/atomic"

	"firestige.xyz/conntag/internal/core"
)

// MaxSupportedEntries bounds the entry limit so slot indexes fit in 32 bits.
const MaxSupportedEntries = 1 << 30

// Counter receives one increment per creation rejected because the map is full.
type Counter interface {
	Inc()
}

type noopCounter struct{}

func (noopCounter) Inc() {}

// Map is a capacity-bounded store of per-connection tag buffers.
type Map struct {
	maxEntries int
	mask       uint64

	// slots holds entry index + 1; zero marks an empty slot. A slot is
	// published only after its entry's key is written.
	slots   []atomic.Uint32
	entries []Entry
	count   atomic.Int64

	// mu serializes creation.
	mu sync.Mutex

	overflow Counter
}

// New creates a Map holding at most maxEntries connections. overflow may be nil.
func New(maxEntries int, overflow Counter) (*Map, error) {
	if maxEntries <= 0 || maxEntries > MaxSupportedEntries {
		return nil, fmt.Errorf("%w: tag map max entries must be in [1, %d], got %d",
			core.ErrConfigInvalid, MaxSupportedEntries, maxEntries)
	}
	if overflow == nil {
		overflow = noopCounter{}
	}

	slotCount := uint64(1) << bits.Len64(uint64(maxEntries)*2-1)
	return &Map{
		maxEntries: maxEntries,
		mask:       slotCount - 1,
		slots:      make([]atomic.Uint32, slotCount),
		entries:    make([]Entry, maxEntries),
		overflow:   overflow,
	}, nil
}

// MaxEntries returns the entry limit.
func (m *Map) MaxEntries() int {
	return m.maxEntries
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return int(m.count.Load())
}

// Lookup returns the entry for key without creating it.
func (m *Map) Lookup(key core.ConnTuple) (*Entry, bool) {
	_, e := m.probe(key, hash(key))
	return e, e != nil
}

// GetOrCreate returns the entry for key, creating a zeroed one if the key is
// absent. When the map is full the overflow counter is incremented once and
// core.ErrTagMapFull is returned; existing entries are not affected.
func (m *Map) GetOrCreate(key core.ConnTuple) (*Entry, error) {
	h := hash(key)
	if _, e := m.probe(key, h); e != nil {
		return e, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created the key while we waited.
	slot, e := m.probe(key, h)
	if e != nil {
		return e, nil
	}

	n := m.count.Load()
	if n >= int64(m.maxEntries) {
		m.overflow.Inc()
		return nil, core.ErrTagMapFull
	}

	e = &m.entries[n]
	e.key = key
	m.count.Store(n + 1)
	m.slots[slot].Store(uint32(n) + 1)
	return e, nil
}

// Range calls fn for every entry in creation order until fn returns false.
func (m *Map) Range(fn func(e *Entry) bool) {
	n := int(m.count.Load())
	for i := 0; i < n; i++ {
		if !fn(&m.entries[i]) {
			return
		}
	}
}

// probe walks the slot sequence for key. It returns the entry when found,
// otherwise the first empty slot. The load factor never exceeds one half, so
// an empty slot is always reached within len(slots) steps.
func (m *Map) probe(key core.ConnTuple, h uint64) (uint64, *Entry) {
	for i := uint64(0); i <= m.mask; i++ {
		slot := (h + i) & m.mask
		v := m.slots[slot].Load()
		if v == 0 {
			return slot, nil
		}
		if e := &m.entries[v-1]; e.key == key {
			return slot, e
		}
	}
	return 0, nil
}

func hash(key core.ConnTuple) uint64 {
	var buf [core.ConnTupleSize]byte
	return murmur3.Sum64(key.AppendBinary(buf[:0]))
}
