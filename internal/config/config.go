// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"firestige.xyz/conntag/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `conntag:` root key in YAML.
type GlobalConfig struct {
	TagMap   TagMapConfig   `mapstructure:"tagmap"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─── Tag Store ───

// TagMapConfig sizes the connection tag store.
type TagMapConfig struct {
	// MaxEntries is the hard limit of tracked connections. Creation of a new
	// entry beyond it is rejected and counted.
	MaxEntries int `mapstructure:"max_entries"`
}

// StatsConfig sizes the connection statistics table.
type StatsConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// ─── Classifier ───

// ClassifyConfig configures the classification pipeline.
type ClassifyConfig struct {
	Workers   int              `mapstructure:"workers"`    // Concurrent classifier workers
	QueueSize int              `mapstructure:"queue_size"` // Packets buffered between reader and workers
	Normalize bool             `mapstructure:"normalize"`  // Key both directions of a connection alike
	Netns     uint32           `mapstructure:"netns"`      // Namespace recorded in every key
	Filter    string           `mapstructure:"filter"`     // libpcap filter expression, e.g. "tcp port 80"
	SnapLen   int              `mapstructure:"snaplen"`
	Detectors []DetectorConfig `mapstructure:"detectors"`
}

// DetectorConfig enables one protocol detector.
type DetectorConfig struct {
	Name    string         `mapstructure:"name"`
	Options map[string]any `mapstructure:"options"`
}

// ─── Live Capture ───

// CaptureConfig configures live capture.
type CaptureConfig struct {
	Interface    string `mapstructure:"interface"`
	Mode         string `mapstructure:"mode"` // pcap / afpacket
	Promiscuous  bool   `mapstructure:"promiscuous"`
	Timeout      string `mapstructure:"timeout"`        // Read timeout, e.g. "500ms"
	BufferSizeMB int    `mapstructure:"buffer_size_mb"` // afpacket ring size
	FanoutID     uint16 `mapstructure:"fanout_id"`      // afpacket fanout group, 0 disables
}

// ReadTimeout returns the parsed read timeout.
func (c CaptureConfig) ReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `conntag: ...`.
type configRoot struct {
	Conntag GlobalConfig `mapstructure:"conntag"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides (e.g. CONNTAG_TAGMAP_MAX_ENTRIES).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `conntag.` key prefix maps to `CONNTAG_` in env vars via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Conntag

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the default configuration.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use "conntag." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Tag store defaults, mirroring the tracer's max_tracked_connections
	v.SetDefault("conntag.tagmap.max_entries", 65536)
	v.SetDefault("conntag.stats.max_entries", 65536)

	// Classifier defaults
	v.SetDefault("conntag.classify.workers", 1)
	v.SetDefault("conntag.classify.queue_size", 4096)
	v.SetDefault("conntag.classify.normalize", true)
	v.SetDefault("conntag.classify.netns", 0)
	v.SetDefault("conntag.classify.filter", "")
	v.SetDefault("conntag.classify.snaplen", 65535)
	v.SetDefault("conntag.classify.detectors", []map[string]any{
		{"name": "http2"},
		{"name": "http"},
		{"name": "tls"},
		{"name": "sip"},
	})

	// Capture defaults
	v.SetDefault("conntag.capture.mode", "pcap")
	v.SetDefault("conntag.capture.promiscuous", true)
	v.SetDefault("conntag.capture.buffer_size_mb", 8)
	v.SetDefault("conntag.capture.fanout_id", 0)
	v.SetDefault("conntag.capture.timeout", "500ms")

	// Metrics defaults
	v.SetDefault("conntag.metrics.enabled", false)
	v.SetDefault("conntag.metrics.listen", ":9092")
	v.SetDefault("conntag.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("conntag.log.level", "info")
	v.SetDefault("conntag.log.format", "text")
	v.SetDefault("conntag.log.outputs.file.enabled", false)
	v.SetDefault("conntag.log.outputs.file.path", "/var/log/conntag/conntag.log")
	v.SetDefault("conntag.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("conntag.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("conntag.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("conntag.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults. Every problem found is reported, not only the first.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	var errs error

	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		errs = multierr.Append(errs, fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level))
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		errs = multierr.Append(errs, fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format))
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		errs = multierr.Append(errs, fmt.Errorf("log.outputs.file.path is required when file output is enabled"))
	}

	// ── Capacities ──
	if cfg.TagMap.MaxEntries <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("tagmap.max_entries must be positive, got %d", cfg.TagMap.MaxEntries))
	}
	if cfg.Stats.MaxEntries <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("stats.max_entries must be positive, got %d", cfg.Stats.MaxEntries))
	}

	// ── Classifier ──
	if cfg.Classify.Workers < 1 {
		cfg.Classify.Workers = 1
	}
	if cfg.Classify.QueueSize < 1 {
		cfg.Classify.QueueSize = 1
	}
	if cfg.Classify.SnapLen <= 0 {
		cfg.Classify.SnapLen = 65535
	}
	seen := make(map[string]bool, len(cfg.Classify.Detectors))
	for i, d := range cfg.Classify.Detectors {
		if d.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("classify.detectors[%d]: name is required", i))
			continue
		}
		if seen[d.Name] {
			errs = multierr.Append(errs, fmt.Errorf("classify.detectors[%d]: duplicate detector %q", i, d.Name))
		}
		seen[d.Name] = true
	}

	// ── Capture ──
	if cfg.Capture.Mode != "pcap" && cfg.Capture.Mode != "afpacket" {
		errs = multierr.Append(errs, fmt.Errorf("invalid capture.mode: %s (must be pcap/afpacket)", cfg.Capture.Mode))
	}
	if cfg.Capture.Mode == "afpacket" && cfg.Capture.BufferSizeMB <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("capture.buffer_size_mb must be positive for afpacket, got %d", cfg.Capture.BufferSizeMB))
	}
	if _, err := time.ParseDuration(cfg.Capture.Timeout); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("invalid capture.timeout %q: %w", cfg.Capture.Timeout, err))
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = multierr.Append(errs, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, errs)
	}
	return nil
}
