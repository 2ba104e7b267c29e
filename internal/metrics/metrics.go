// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets seen by the classifier by outcome
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conntag_packets_total",
			Help: "Total number of packets seen by the classifier",
		},
		[]string{"result"},
	)

	// ClassificationsTotal counts detector hits
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conntag_classifications_total",
			Help: "Total number of payloads classified, by detector",
		},
		[]string{"detector"},
	)

	// TagWritesTotal counts dynamic tag writes by outcome
	TagWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conntag_tag_writes_total",
			Help: "Total number of dynamic tag writes (written/skipped/rejected/dropped)",
		},
		[]string{"result"},
	)

	// StaticTagsTotal counts static tag updates by tag
	StaticTagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conntag_static_tags_total",
			Help: "Total number of static tag history updates",
		},
		[]string{"tag"},
	)

	// TagMapEntries tracks the number of connections in the tag map
	TagMapEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conntag_tagmap_entries",
			Help: "Current number of connections in the tag map",
		},
	)

	// TagMapMaxEntriesHitTotal counts creations rejected because the tag map was full
	TagMapMaxEntriesHitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conntag_tagmap_max_entries_hit_total",
			Help: "Total number of tag map entry creations rejected at capacity",
		},
	)

	// ConnStatsEvictionsTotal counts connection statistics records evicted from the table
	ConnStatsEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conntag_connstats_evictions_total",
			Help: "Total number of connection statistics records evicted",
		},
	)
)

// Tag write outcomes.
const (
	WriteResultWritten  = "written"
	WriteResultSkipped  = "skipped"
	WriteResultRejected = "rejected"
	WriteResultDropped  = "dropped"
)

// Packet outcomes.
const (
	PacketResultProcessed   = "processed"
	PacketResultFiltered    = "filtered"
	PacketResultUndecodable = "undecodable"
)
