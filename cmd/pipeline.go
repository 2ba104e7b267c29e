package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"firestige.xyz/conntag/internal/classify"
	"firestige.xyz/conntag/internal/config"
	"firestige.xyz/conntag/internal/connstats"
	"firestige.xyz/conntag/internal/metrics"
	"firestige.xyz/conntag/internal/tagmap"
	"firestige.xyz/conntag/internal/telemetry"
)

// buildEngine wires the tag store, the statistics table and the configured
// detectors into a classification engine.
func buildEngine(cfg *config.GlobalConfig, filter *classify.Filter) (*classify.Engine, error) {
	overflow := telemetry.NewCounter("conn_tags_max_entries_hit", metrics.TagMapMaxEntriesHitTotal)
	tagMap, err := tagmap.New(cfg.TagMap.MaxEntries, overflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag map: %w", err)
	}
	stats, err := connstats.NewTable(cfg.Stats.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats table: %w", err)
	}
	detectors, err := classify.NewDetectors(cfg.Classify.Detectors)
	if err != nil {
		return nil, err
	}

	return classify.NewEngine(tagMap, stats, detectors, classify.Options{
		Workers:   cfg.Classify.Workers,
		QueueSize: cfg.Classify.QueueSize,
		Normalize: cfg.Classify.Normalize,
		Netns:     cfg.Classify.Netns,
		Filter:    filter,
		Overflow:  overflow,
	}), nil
}

// runClassify classifies every packet of src and writes the report to out.
func runClassify(ctx context.Context, cfg *config.GlobalConfig, src classify.PacketSource, filter *classify.Filter, format string, out io.Writer) error {
	engine, err := buildEngine(cfg, filter)
	if err != nil {
		return err
	}

	slog.Info("classification started",
		"link_type", src.LinkType().String(),
		"workers", cfg.Classify.Workers,
		"max_entries", cfg.TagMap.MaxEntries)

	if err := engine.Run(ctx, src); err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	s := engine.Summary()
	slog.Info("classification finished",
		"packets", s.Packets,
		"classified", s.Classified,
		"connections", s.Connections,
		"tagged", s.Tagged,
		"max_entries_hit", s.MaxEntriesHit)

	return engine.Report().Encode(out, format)
}
