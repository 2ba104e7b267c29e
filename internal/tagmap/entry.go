package tagmap

import (
	"sync"

	"firestige.xyz/conntag/internal/core"
)

// Entry is the tag buffer of one connection. Entries live in the map's
// arena for the lifetime of the map, so a pointer obtained from GetOrCreate
// stays valid and always refers to the same buffer.
type Entry struct {
	key core.ConnTuple

	mu   sync.Mutex
	tags core.Tags
}

// Key returns the connection the entry belongs to.
func (e *Entry) Key() core.ConnTuple {
	return e.key
}

// Tags returns a copy of the tag buffer.
func (e *Entry) Tags() core.Tags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tags
}

// Update runs fn on the tag buffer while holding the entry lock and returns
// its result. fn must not retain the pointer.
func (e *Entry) Update(fn func(tags *core.Tags) int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.tags)
}
