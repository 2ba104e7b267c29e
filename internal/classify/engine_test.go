package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/conntag/internal/config"
	"firestige.xyz/conntag/internal/connstats"
	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/tagmap"
	"firestige.xyz/conntag/internal/tags"
	"firestige.xyz/conntag/internal/telemetry"
)

type testEngine struct {
	*Engine
	tagMap   *tagmap.Map
	stats    *connstats.Table
	overflow *telemetry.Counter
}

func newTestEngine(t *testing.T, maxEntries int, opts Options) *testEngine {
	t.Helper()
	overflow := telemetry.NewCounter("conn_tags_max_entries_hit", nil)
	m, err := tagmap.New(maxEntries, overflow)
	require.NoError(t, err)
	st, err := connstats.NewTable(1024)
	require.NoError(t, err)
	dets, err := NewDetectors([]config.DetectorConfig{
		{Name: "http2"},
		{Name: "http"},
		{Name: "tls"},
		{Name: "sip", Options: map[string]any{"parse": false}},
	})
	require.NoError(t, err)

	opts.Overflow = overflow
	return &testEngine{
		Engine:   NewEngine(m, st, dets, opts),
		tagMap:   m,
		stats:    st,
		overflow: overflow,
	}
}

func (e *testEngine) process(t *testing.T, dec *Decoder, frames ...[]byte) {
	t.Helper()
	for i, f := range frames {
		require.NoError(t, e.Process(dec, f, captureInfo(f, time.Unix(1700000000, int64(i)))))
	}
}

func (e *testEngine) tags(t *testing.T, key core.ConnTuple) []string {
	t.Helper()
	ent, ok := e.tagMap.Lookup(key)
	require.True(t, ok, "connection %s not tagged", key)
	return tags.SplitTags(ent.Tags())
}

func clientKey(t *testing.T, dec *Decoder, frame []byte) core.ConnTuple {
	t.Helper()
	p, err := dec.Decode(frame, captureInfo(frame, time.Now()))
	require.NoError(t, err)
	key, _ := p.Tuple.Normalize()
	return key
}

func TestEngineTagsBothDirections(t *testing.T) {
	e := newTestEngine(t, 16, Options{Normalize: true})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	req := tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 80, "GET / HTTP/1.1\r\n\r\n")
	resp := tcpFrame(t, "10.0.0.2", 80, "10.0.0.1", 40000, "HTTP/1.1 200 OK\r\n\r\n")
	e.process(t, dec, req, resp)

	key := clientKey(t, dec, req)
	// The detail region is written once; the response status does not replace the method.
	assert.Equal(t, []string{"http", "GET"}, e.tags(t, key))

	rec, ok := e.stats.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.SentPackets.Load())
	assert.Equal(t, uint64(1), rec.RecvPackets.Load())
	assert.Equal(t, uint64(len(req)), rec.SentBytes.Load())
	assert.Equal(t, uint64(core.HTTP), rec.StaticTags().Load())

	s := e.Summary()
	assert.Equal(t, uint64(2), s.Packets)
	assert.Equal(t, uint64(2), s.Classified)
	assert.Equal(t, 1, s.Connections)
	assert.Equal(t, 1, s.Tagged)
}

func TestEngineWithoutNormalize(t *testing.T) {
	e := newTestEngine(t, 16, Options{})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	e.process(t, dec,
		tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 80, "GET / HTTP/1.1\r\n\r\n"),
		tcpFrame(t, "10.0.0.2", 80, "10.0.0.1", 40000, "HTTP/1.1 200 OK\r\n\r\n"),
	)
	assert.Equal(t, 2, e.Summary().Tagged)
	assert.Equal(t, 2, e.Summary().Connections)
}

func TestEngineStaticHistoryFollowsProtocolChanges(t *testing.T) {
	e := newTestEngine(t, 16, Options{Normalize: true})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	frame := func(payload []byte) []byte {
		return tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 443, string(payload))
	}
	e.process(t, dec,
		frame([]byte("CONNECT example.com:443 HTTP/1.1\r\n\r\n")),
		frame([]byte("GET / HTTP/1.1\r\n\r\n")),
		frame(tlsHello(0x01, 0x0303)),
		frame(tlsHello(0x01, 0x0303)),
	)

	key := clientKey(t, dec, frame(nil))
	rec, ok := e.stats.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint64(core.HTTP)<<8|uint64(core.TLS), rec.StaticTags().Load())
	assert.Equal(t, []core.StaticTag{core.TLS, core.HTTP}, rec.StaticTags().Tags())
	// Dynamic tags keep the first classification.
	assert.Equal(t, []string{"http", "CONNECT"}, e.tags(t, key))
}

func TestEngineTagMapFull(t *testing.T) {
	e := newTestEngine(t, 1, Options{Normalize: true})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	first := tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 80, "GET / HTTP/1.1\r\n\r\n")
	second := tcpFrame(t, "10.0.0.3", 40000, "10.0.0.2", 80, "GET / HTTP/1.1\r\n\r\n")
	e.process(t, dec, first, second)

	assert.Equal(t, 1, e.tagMap.Len())
	_, ok := e.tagMap.Lookup(clientKey(t, dec, second))
	assert.False(t, ok)
	// Name and detail writes each attempted one creation.
	assert.Equal(t, int64(2), e.overflow.Get())
	assert.Equal(t, int64(2), e.Summary().MaxEntriesHit)

	// Statistics and static tags do not depend on the tag map.
	rec, ok := e.stats.Get(clientKey(t, dec, second))
	require.True(t, ok)
	assert.Equal(t, core.HTTP, rec.StaticTags().Latest())
}

func TestEngineIgnoresUnclassifiedAndEmptyPayloads(t *testing.T) {
	e := newTestEngine(t, 16, Options{Normalize: true})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	e.process(t, dec,
		tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 22, ""),
		tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 22, "SSH-2.0-OpenSSH_9.6\r\n"),
	)
	s := e.Summary()
	assert.Equal(t, uint64(2), s.Packets)
	assert.Zero(t, s.Classified)
	assert.Equal(t, 1, s.Connections)
	assert.Zero(t, s.Tagged)
}

func TestEngineProcessErrors(t *testing.T) {
	prog := ipv4Only(t)
	f, err := NewFilter(prog)
	require.NoError(t, err)
	e := newTestEngine(t, 16, Options{Filter: f})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	frame := tcpFrame(t, "10.0.0.1", 1, "10.0.0.2", 2, "x")
	err = e.Process(dec, frame[:20], captureInfo(frame[:20], time.Now()))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	v6 := make([]byte, 60)
	v6[12], v6[13] = 0x86, 0xdd
	assert.NoError(t, e.Process(dec, v6, captureInfo(v6, time.Now())))

	s := e.Summary()
	assert.Equal(t, uint64(1), s.Undecodable)
	assert.Equal(t, uint64(1), s.Filtered)
	assert.Zero(t, s.Packets)
}

func TestEngineRunConcurrentWorkers(t *testing.T) {
	e := newTestEngine(t, 256, Options{Workers: 4, QueueSize: 8, Normalize: true})

	const conns = 100
	src := &sliceSource{linkType: layers.LinkTypeEthernet}
	for i := 0; i < conns; i++ {
		client := fmt.Sprintf("10.0.%d.%d", i/250, i%250+1)
		src.frames = append(src.frames,
			tcpFrame(t, client, 40000, "10.1.0.1", 80, "POST /x HTTP/1.1\r\n\r\n"),
			nil, // read timeout
			tcpFrame(t, "10.1.0.1", 80, client, 40000, "HTTP/1.1 201 Created\r\n\r\n"),
			tcpFrame(t, client, 40000, "10.1.0.1", 80, "garbage"),
		)
	}
	src.frames = append(src.frames, []byte{0x01, 0x02}) // undecodable

	require.NoError(t, e.Run(context.Background(), src))

	s := e.Summary()
	assert.Equal(t, uint64(3*conns), s.Packets)
	assert.Equal(t, uint64(2*conns), s.Classified)
	assert.Equal(t, uint64(1), s.Undecodable)
	assert.Equal(t, conns, s.Connections)
	assert.Equal(t, conns, s.Tagged)

	e.tagMap.Range(func(ent *tagmap.Entry) bool {
		assert.Equal(t, []string{"http", "POST"}, tags.SplitTags(ent.Tags()))
		return true
	})
	for _, rec := range e.stats.Records() {
		assert.Equal(t, uint64(2), rec.SentPackets.Load())
		assert.Equal(t, uint64(1), rec.RecvPackets.Load())
		assert.Equal(t, uint64(core.HTTP), rec.StaticTags().Load())
	}
}

func TestEngineRunCancelled(t *testing.T) {
	e := newTestEngine(t, 16, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &sliceSource{linkType: layers.LinkTypeEthernet, frames: [][]byte{
		tcpFrame(t, "10.0.0.1", 1, "10.0.0.2", 2, "x"),
	}}
	assert.NoError(t, e.Run(ctx, src))
	assert.Zero(t, e.Summary().Packets)
}

// idleSource behaves like a live capture with no traffic: every read times out.
type idleSource struct{}

func (idleSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	time.Sleep(time.Millisecond)
	return nil, gopacket.CaptureInfo{}, nil
}

func (idleSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func TestEngineRunDeadline(t *testing.T) {
	e := newTestEngine(t, 16, Options{Workers: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, e.Run(ctx, idleSource{}))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	assert.Zero(t, e.Summary().Packets)
}

func TestEngineRunUnsupportedLinkType(t *testing.T) {
	e := newTestEngine(t, 16, Options{})
	err := e.Run(context.Background(), &sliceSource{linkType: layers.LinkTypeIEEE802_11})
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}
