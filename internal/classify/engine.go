package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/twmb/murmur3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/conntag/internal/connstats"
	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/metrics"
	"firestige.xyz/conntag/internal/tagmap"
	"firestige.xyz/conntag/internal/tags"
	"firestige.xyz/conntag/internal/telemetry"
)

// PacketSource is a stream of frames. An empty read with a nil error is a
// timeout; io.EOF ends the stream.
type PacketSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Options configures an Engine.
type Options struct {
	Workers   int
	QueueSize int
	// Normalize keys both directions of a connection by its canonical tuple.
	Normalize bool
	Netns     uint32
	// Filter drops frames before decoding. Nil accepts everything.
	Filter *Filter
	// Overflow is the tag map's overflow counter, reported in the summary.
	Overflow *telemetry.Counter
}

// Engine classifies packets and records the results in the tag store.
// Handle is safe for concurrent use.
type Engine struct {
	opts      Options
	tagMap    *tagmap.Map
	stats     *connstats.Table
	writer    *tags.Writer
	detectors []Detector

	packets     atomic.Uint64
	filtered    atomic.Uint64
	undecodable atomic.Uint64
	classified  atomic.Uint64
}

// NewEngine creates an engine over a tag map and a statistics table.
func NewEngine(tagMap *tagmap.Map, stats *connstats.Table, detectors []Detector, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	return &Engine{
		opts:      opts,
		tagMap:    tagMap,
		stats:     stats,
		writer:    tags.NewWriter(tagMap, stats),
		detectors: detectors,
	}
}

// Process filters, decodes and handles one frame. Frames rejected by the
// filter are counted and dropped without error.
func (e *Engine) Process(dec *Decoder, data []byte, ci gopacket.CaptureInfo) error {
	p, ok, err := e.decode(dec, data, ci)
	if !ok {
		return err
	}
	e.Handle(p)
	return nil
}

func (e *Engine) decode(dec *Decoder, data []byte, ci gopacket.CaptureInfo) (*Packet, bool, error) {
	if e.opts.Filter != nil && !e.opts.Filter.Match(data) {
		e.filtered.Inc()
		metrics.PacketsTotal.WithLabelValues(metrics.PacketResultFiltered).Inc()
		return nil, false, nil
	}
	p, err := dec.Decode(data, ci)
	if err != nil {
		e.undecodable.Inc()
		metrics.PacketsTotal.WithLabelValues(metrics.PacketResultUndecodable).Inc()
		return nil, false, err
	}
	return p, true, nil
}

// Handle accounts a decoded packet and tags its connection when a detector
// recognises the payload. The first matching detector wins.
func (e *Engine) Handle(p *Packet) {
	key, sent := e.key(p.Tuple)
	rec := e.stats.Track(key, p.Timestamp, p.Length, sent)
	e.packets.Inc()
	metrics.PacketsTotal.WithLabelValues(metrics.PacketResultProcessed).Inc()

	if len(p.Payload) == 0 {
		return
	}
	for _, d := range e.detectors {
		res, ok := d.Detect(p)
		if !ok {
			continue
		}
		e.classified.Inc()
		metrics.ClassificationsTotal.WithLabelValues(d.Name()).Inc()
		e.record(key, rec, res)
		return
	}
}

func (e *Engine) record(key core.ConnTuple, rec *connstats.ConnStats, res Result) {
	if res.Name != "" {
		e.writer.WriteTag(key, true, tags.NameOffset, []byte(res.Name))
	}
	if res.Detail != "" {
		e.writer.WriteTag(key, true, tags.DetailOffset, []byte(res.Detail))
	}
	metrics.TagMapEntries.Set(float64(e.tagMap.Len()))

	if res.Static == core.NoTags {
		return
	}
	// The first protocol seen sets the history; later ones are appended
	// only when the protocol changes.
	h := rec.StaticTags()
	switch {
	case h.Load() == 0:
		e.writer.AddStaticTag(rec, true, res.Static)
	case h.Latest() != res.Static:
		e.writer.AddStaticTag(rec, false, res.Static)
	}
}

func (e *Engine) key(t core.ConnTuple) (core.ConnTuple, bool) {
	if !e.opts.Normalize {
		return t, true
	}
	return t.Normalize()
}

// Run reads src until it is exhausted or ctx is cancelled. One goroutine
// reads and decodes; packets are sharded by connection over the workers so
// each connection is handled in capture order.
func (e *Engine) Run(ctx context.Context, src PacketSource) error {
	dec, err := NewDecoder(src.LinkType(), e.opts.Netns)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	queues := make([]chan *Packet, e.opts.Workers)
	for i := range queues {
		q := make(chan *Packet, e.opts.QueueSize)
		queues[i] = q
		g.Go(func() error {
			for p := range q {
				e.Handle(p)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return e.read(ctx, src, dec, queues)
	})

	// Cancellation and an elapsed deadline both end a capture normally.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	slog.Debug("classification finished", "packets", e.packets.Load(), "classified", e.classified.Load())
	return nil
}

func (e *Engine) read(ctx context.Context, src PacketSource, dec *Decoder, queues []chan *Packet) error {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		p, ok, err := e.decode(dec, data, ci)
		if !ok {
			if err != nil {
				slog.Debug("skipping packet", "error", err)
			}
			continue
		}

		key, _ := e.key(p.Tuple)
		buf = key.AppendBinary(buf[:0])
		q := queues[murmur3.Sum64(buf)%uint64(len(queues))]
		select {
		case q <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Summary is a snapshot of engine counters.
type Summary struct {
	Packets       uint64 `json:"packets" yaml:"packets"`
	Filtered      uint64 `json:"filtered" yaml:"filtered"`
	Undecodable   uint64 `json:"undecodable" yaml:"undecodable"`
	Classified    uint64 `json:"classified" yaml:"classified"`
	Connections   int    `json:"connections" yaml:"connections"`
	Tagged        int    `json:"tagged" yaml:"tagged"`
	MaxEntriesHit int64  `json:"max_entries_hit" yaml:"max_entries_hit"`
}

func (e *Engine) Summary() Summary {
	s := Summary{
		Packets:     e.packets.Load(),
		Filtered:    e.filtered.Load(),
		Undecodable: e.undecodable.Load(),
		Classified:  e.classified.Load(),
		Connections: e.stats.Len(),
		Tagged:      e.tagMap.Len(),
	}
	if e.opts.Overflow != nil {
		s.MaxEntriesHit = e.opts.Overflow.Get()
	}
	return s
}
