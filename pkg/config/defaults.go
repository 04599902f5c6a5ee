package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/lustrebulk/pkg/bench"
	"github.com/marmos91/lustrebulk/pkg/engine"
	"github.com/marmos91/lustrebulk/pkg/metrics"
	"github.com/marmos91/lustrebulk/pkg/scan/static"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Type-specific sections get the defaults of every type, so that a
//     generated config file documents all of them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyGroupDefaults(&cfg.Group)
	applyScanDefaults(&cfg.Scan)
	applyCacheDefaults(&cfg.Cache)
	applyIODefaults(&cfg.IO)
	applyJobDefaults(&cfg.Job)
	applyMetricsDefaults(&cfg.Metrics)
	applyReportDefaults(&cfg.Report)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyGroupDefaults(cfg *GroupConfig) {
	if cfg.Transport == "" {
		cfg.Transport = "loopback"
	}
	if cfg.Size == 0 {
		cfg.Size = 1
	}
	if cfg.Nodes == 0 {
		cfg.Nodes = 1
	}
	if cfg.Coordinator == "" {
		cfg.Coordinator = "localhost:7420"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 2 * time.Minute
	}
}

func applyScanDefaults(cfg *ScanConfig) {
	if cfg.Collector == "" {
		cfg.Collector = "lustre"
	}

	if cfg.Static == nil {
		cfg.Static = make(map[string]any)
	}
	if _, ok := cfg.Static["stripe_count"]; !ok {
		cfg.Static["stripe_count"] = static.DefaultStripeCount
	}
	if _, ok := cfg.Static["stripe_size"]; !ok {
		cfg.Static["stripe_size"] = uint64(static.DefaultStripeSize)
	}
	if _, ok := cfg.Static["target_count"]; !ok {
		cfg.Static["target_count"] = static.DefaultTargetCount
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = defaultCachePath()
	}
}

// defaultCachePath places the layout cache under the user cache directory.
func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "lustrebulk", "layouts")
}

func applyIODefaults(cfg *IOConfig) {
	if cfg.Direction == "" {
		cfg.Direction = engine.Read.String()
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = engine.DefaultBufferSize
	}
}

func applyJobDefaults(cfg *JobConfig) {
	if cfg.TestCount == 0 {
		cfg.TestCount = bench.DefaultTestCount
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

func applyReportDefaults(cfg *ReportConfig) {
	if cfg.Type == "" {
		cfg.Type = "log"
	}

	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if _, ok := cfg.File["path"]; !ok {
		cfg.File["path"] = "lustrebulk-report.yaml"
	}

	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.S3["key_prefix"]; !ok {
		cfg.S3["key_prefix"] = "lustrebulk/"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
