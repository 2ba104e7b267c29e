package tags

import (
	"go.uber.org/atomic"

	"firestige.xyz/conntag/internal/core"
)

// History is a packed log of static tag codes: the most recent code sits in
// the low byte and older codes shift towards the high bytes, the oldest
// falling off once eight codes are stored.
//
// Updates are atomic loads and stores rather than a locked read-modify-write;
// concurrent appends may lose one another.
type History struct {
	v atomic.Uint64
}

// Add records tag. With once set, the tag is only recorded into an empty
// history (first writer wins) and a non-empty history is left untouched;
// otherwise it is appended. This differs from the eBPF add_tags helper in
// tags.h, which appends in the once-and-non-empty case; callers that want an
// append must pass once=false.
func (h *History) Add(once bool, tag core.StaticTag) {
	if once {
		h.v.CompareAndSwap(0, uint64(tag))
		return
	}
	h.v.Store(h.v.Load()<<8 | uint64(tag))
}

// Load returns the packed value.
func (h *History) Load() uint64 {
	return h.v.Load()
}

// Latest returns the most recently recorded code.
func (h *History) Latest() core.StaticTag {
	return core.StaticTag(h.v.Load() & 0xff)
}

// Tags returns the recorded codes, most recent first.
func (h *History) Tags() []core.StaticTag {
	return DecodeHistory(h.v.Load())
}

// DecodeHistory unpacks a history value into its non-zero codes, most recent first.
func DecodeHistory(v uint64) []core.StaticTag {
	var r []core.StaticTag
	for i := 0; i < core.StaticTagHistoryWidth; i++ {
		if tag := core.StaticTag(v >> (i * 8)); tag != core.NoTags {
			r = append(r, tag)
		}
	}
	return r
}
