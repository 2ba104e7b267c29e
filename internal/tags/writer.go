// Package tags implements the connection tag write protocols: offset-bounded
// writes into a connection's dynamic tag buffer, and the packed history of
// static tag codes kept on its statistics record.
package tags

import (
	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/metrics"
	"firestige.xyz/conntag/internal/tagmap"
)

// Buffer regions used by the classifiers. Independent detectors write
// disjoint regions without coordinating.
const (
	NameOffset   = 0
	DetailOffset = 8
)

// StatsRecord is a connection statistics record carrying a static tag history.
type StatsRecord interface {
	StaticTags() *History
}

// StatsLookup resolves the statistics record of a connection.
type StatsLookup interface {
	LookupStats(key core.ConnTuple) (StatsRecord, bool)
}

// Writer records tags for connections. It holds no state of its own; the
// tag map and the statistics lookup are supplied by the caller.
type Writer struct {
	tags  *tagmap.Map
	stats StatsLookup
}

// NewWriter creates a Writer. stats may be nil when only dynamic tags are written.
func NewWriter(tags *tagmap.Map, stats StatsLookup) *Writer {
	return &Writer{tags: tags, stats: stats}
}

// WriteTag writes payload into key's tag buffer at offset, creating the
// entry on first reference, and returns the offset following the last byte
// written so callers can chain writes.
//
// When the entry cannot be created (tag map full) nothing is written and
// offset is returned unchanged. An offset outside the buffer returns 0. Note
// that 0 is also the unchanged offset of a skipped write at offset 0; callers
// writing at offset 0 cannot tell the two apart from the return value.
func (w *Writer) WriteTag(key core.ConnTuple, once bool, offset int, payload []byte) int {
	e, err := w.tags.GetOrCreate(key)
	if err != nil {
		metrics.TagWritesTotal.WithLabelValues(metrics.WriteResultDropped).Inc()
		return offset
	}
	return writeEntry(e, once, offset, payload)
}

// UpdateTag is WriteTag for connections that must already be tracked: a
// missing entry is left missing and offset is returned unchanged.
func (w *Writer) UpdateTag(key core.ConnTuple, once bool, offset int, payload []byte) int {
	e, ok := w.tags.Lookup(key)
	if !ok {
		metrics.TagWritesTotal.WithLabelValues(metrics.WriteResultDropped).Inc()
		return offset
	}
	return writeEntry(e, once, offset, payload)
}

func writeEntry(e *tagmap.Entry, once bool, offset int, payload []byte) int {
	return e.Update(func(t *core.Tags) int {
		next := WriteTags(t, once, offset, payload)
		switch {
		case offset < 0 || offset >= core.TagsMaxLength:
			metrics.TagWritesTotal.WithLabelValues(metrics.WriteResultRejected).Inc()
		case next == offset:
			metrics.TagWritesTotal.WithLabelValues(metrics.WriteResultSkipped).Inc()
		default:
			metrics.TagWritesTotal.WithLabelValues(metrics.WriteResultWritten).Inc()
		}
		return next
	})
}

// WriteTags applies the dynamic tag write protocol to a buffer:
//   - offset outside the buffer: nothing written, returns 0;
//   - once and the byte at offset already set: nothing written, returns offset;
//   - otherwise copies payload from offset up to the end of the buffer and
//     returns the index one past the last byte written.
func WriteTags(t *core.Tags, once bool, offset int, payload []byte) int {
	if offset < 0 || offset >= core.TagsMaxLength {
		return 0
	}
	if once && t[offset] != 0 {
		return offset
	}
	return offset + copy(t[offset:], payload)
}

// AddStaticTag records tag in the static tag history of rec.
func (w *Writer) AddStaticTag(rec StatsRecord, once bool, tag core.StaticTag) {
	rec.StaticTags().Add(once, tag)
	metrics.StaticTagsTotal.WithLabelValues(tag.String()).Inc()
}

// AddStaticTagForKey records tag on the statistics record of key. A
// connection without a record is ignored.
func (w *Writer) AddStaticTagForKey(key core.ConnTuple, once bool, tag core.StaticTag) {
	if w.stats == nil {
		return
	}
	rec, ok := w.stats.LookupStats(key)
	if !ok {
		return
	}
	w.AddStaticTag(rec, once, tag)
}
