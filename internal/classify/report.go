package classify

import (
	"fmt"
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"firestige.xyz/conntag/internal/connstats"
	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/tagmap"
	"firestige.xyz/conntag/internal/tags"
)

// Report formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ConnReport describes one connection.
type ConnReport struct {
	Conn        string    `json:"conn" yaml:"conn"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	TagIDs      []uint32  `json:"tag_ids,omitempty" yaml:"tag_ids,omitempty"`
	StaticTags  []string  `json:"static_tags,omitempty" yaml:"static_tags,omitempty"`
	History     string    `json:"history" yaml:"history"`
	SentBytes   uint64    `json:"sent_bytes" yaml:"sent_bytes"`
	RecvBytes   uint64    `json:"recv_bytes" yaml:"recv_bytes"`
	SentPackets uint64    `json:"sent_packets" yaml:"sent_packets"`
	RecvPackets uint64    `json:"recv_packets" yaml:"recv_packets"`
	FirstSeen   time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
}

// Report is the result of a classification run. TagIDs index Vocabulary.
type Report struct {
	Summary     Summary      `json:"summary" yaml:"summary"`
	Vocabulary  []string     `json:"vocabulary" yaml:"vocabulary"`
	Connections []ConnReport `json:"connections" yaml:"connections"`
}

// Report builds a report of every connection known to the statistics table
// or the tag map, sorted by connection.
func (e *Engine) Report() *Report {
	return BuildReport(e.Summary(), e.tagMap, e.stats)
}

// BuildReport joins tag map entries with statistics records by key.
// Records without tags and tag entries whose record was evicted are both
// included.
func BuildReport(summary Summary, tagMap *tagmap.Map, stats *connstats.Table) *Report {
	set := tags.NewSet()
	rows := make(map[core.ConnTuple]*ConnReport)

	row := func(key core.ConnTuple) *ConnReport {
		r, ok := rows[key]
		if !ok {
			r = &ConnReport{Conn: key.String(), History: formatHistory(0)}
			rows[key] = r
		}
		return r
	}

	for _, s := range stats.Records() {
		r := row(s.Tuple)
		h := s.StaticTags().Load()
		r.History = formatHistory(h)
		for _, t := range tags.DecodeHistory(h) {
			r.StaticTags = append(r.StaticTags, t.String())
		}
		r.SentBytes = s.SentBytes.Load()
		r.RecvBytes = s.RecvBytes.Load()
		r.SentPackets = s.SentPackets.Load()
		r.RecvPackets = s.RecvPackets.Load()
		if ns := s.FirstSeen.Load(); ns != 0 {
			r.FirstSeen = time.Unix(0, ns).UTC()
		}
		if ns := s.LastSeen.Load(); ns != 0 {
			r.LastSeen = time.Unix(0, ns).UTC()
		}
	}

	tagMap.Range(func(ent *tagmap.Entry) bool {
		buf := ent.Tags()
		r := row(ent.Key())
		r.Tags = tags.SplitTags(buf)
		r.TagIDs = set.Indexes(buf)
		return true
	})

	out := &Report{
		Summary:     summary,
		Vocabulary:  set.Strings(),
		Connections: make([]ConnReport, 0, len(rows)),
	}
	for _, r := range rows {
		out.Connections = append(out.Connections, *r)
	}
	sort.Slice(out.Connections, func(i, j int) bool {
		return out.Connections[i].Conn < out.Connections[j].Conn
	})
	return out
}

// Encode writes the report as JSON or YAML.
func (r *Report) Encode(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s (must be json or yaml)", format)
	}
}

func formatHistory(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}
