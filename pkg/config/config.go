package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/drone/envsubst"
	"github.com/spf13/viper"
)

// Config represents the complete lustrebulk configuration.
//
// This structure captures all configurable aspects of a job:
//   - Logging configuration
//   - Process group membership (rank, size, coordinator)
//   - Residency collector selection and its layout cache
//   - I/O direction, buffer size and throttling
//   - Benchmark iterations and optional baselines
//   - Metrics and report output
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (LUSTREBULK_*, plus the rank/size variables
//     exported by common launchers)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Type-specific sections (scan.static, cache.badger, report.file,
// report.s3) are kept as maps and decoded by the factory of the selected
// type, so only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Group describes how this process joins the job
	Group GroupConfig `mapstructure:"group" yaml:"group"`

	// Scan selects the residency collector
	Scan ScanConfig `mapstructure:"scan" yaml:"scan"`

	// Cache optionally persists file layouts between runs
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// IO configures the transfer engine
	IO IOConfig `mapstructure:"io" yaml:"io"`

	// Job configures the benchmark iterations
	Job JobConfig `mapstructure:"job" yaml:"job"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Report selects where the final report goes
	Report ReportConfig `mapstructure:"report" yaml:"report"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// GroupConfig describes the process group.
type GroupConfig struct {
	// Transport selects how processes talk to each other
	// Valid values: tcp (one OS process per rank), loopback (every rank in
	// this process, for single-host runs and simulations)
	Transport string `mapstructure:"transport" validate:"required,oneof=tcp loopback" yaml:"transport"`

	// Rank of this process (tcp only)
	Rank int `mapstructure:"rank" validate:"gte=0" yaml:"rank"`

	// Size is the number of processes in the job
	Size int `mapstructure:"size" validate:"gte=1" yaml:"size"`

	// Nodes is the number of simulated nodes (loopback only)
	Nodes int `mapstructure:"nodes" validate:"gte=1" yaml:"nodes"`

	// Coordinator is the host:port rank 0 listens on (tcp only)
	Coordinator string `mapstructure:"coordinator" validate:"omitempty,hostname_port" yaml:"coordinator"`

	// ListenAddr is where ranks other than 0 accept peer connections
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// AdvertiseHost is the host name peers use to reach this process
	AdvertiseHost string `mapstructure:"advertise_host" yaml:"advertise_host"`

	// NodeName overrides the locality key (default: host name)
	NodeName string `mapstructure:"node_name" yaml:"node_name"`

	// JobID pins the job identifier
	JobID string `mapstructure:"job_id" validate:"omitempty,uuid" yaml:"job_id"`

	// DialTimeout bounds the rendezvous with the coordinator
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0" yaml:"dial_timeout"`
}

// ScanConfig selects the residency collector.
type ScanConfig struct {
	// Collector specifies which collector to use
	// Valid values: lustre, static
	Collector string `mapstructure:"collector" validate:"required,oneof=lustre static" yaml:"collector"`

	// Static contains the emulated layout
	// Only used when Collector = "static"
	Static map[string]any `mapstructure:"static" yaml:"static"`

	// List prints every record of the scan
	List bool `mapstructure:"list" yaml:"list"`
}

// CacheConfig specifies the layout cache.
type CacheConfig struct {
	// Type specifies the cache implementation
	// Valid values: none, badger
	Type string `mapstructure:"type" validate:"required,oneof=none badger" yaml:"type"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// IOConfig configures the transfer engine.
type IOConfig struct {
	// Direction selects reads or writes
	// Valid values: read, write
	Direction string `mapstructure:"direction" validate:"required,oneof=read write" yaml:"direction"`

	// BufferSize is the transfer size of the whole-file strategies in bytes
	BufferSize int `mapstructure:"buffer_size" validate:"gt=0" yaml:"buffer_size"`

	// MaxBytesPerSecond throttles each process (0 = unlimited)
	MaxBytesPerSecond uint64 `mapstructure:"max_bytes_per_second" yaml:"max_bytes_per_second"`

	// Burst is the throttle bucket size in bytes (0 = one second of traffic)
	Burst uint64 `mapstructure:"burst" yaml:"burst"`
}

// JobConfig configures the benchmark iterations.
type JobConfig struct {
	// TestCount is the number of iterations
	TestCount int `mapstructure:"test_count" validate:"gte=1" yaml:"test_count"`

	// Single adds the single-process baseline to every iteration
	Single bool `mapstructure:"single" yaml:"single"`

	// BlobLimit caps the filename bytes of one distribution chunk
	// (0 = protocol maximum)
	BlobLimit int `mapstructure:"blob_limit" validate:"gte=0" yaml:"blob_limit"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Enabled starts a Prometheus endpoint on every process
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port of local rank 0; other processes on a node add their local rank
	Port int `mapstructure:"port" validate:"omitempty,gt=0,lte=65535" yaml:"port"`
}

// ReportConfig selects the report sink.
type ReportConfig struct {
	// Type specifies where the report goes besides the log
	// Valid values: log, file, s3
	Type string `mapstructure:"type" validate:"required,oneof=log file s3" yaml:"type"`

	// File contains file sink configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file" yaml:"file"`

	// S3 contains S3 sink configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// launcherEnv lists, per key, the variables process launchers use to pass
// the rank layout. The LUSTREBULK_ name always wins.
var launcherEnv = map[string][]string{
	"group.rank":        {"LUSTREBULK_GROUP_RANK", "PMI_RANK", "OMPI_COMM_WORLD_RANK", "PMIX_RANK", "SLURM_PROCID"},
	"group.size":        {"LUSTREBULK_GROUP_SIZE", "PMI_SIZE", "OMPI_COMM_WORLD_SIZE", "SLURM_NTASKS"},
	"group.coordinator": {"LUSTREBULK_GROUP_COORDINATOR"},
	"group.node_name":   {"LUSTREBULK_GROUP_NODE_NAME", "SLURMD_NODENAME"},
	"group.job_id":      {"LUSTREBULK_GROUP_JOB_ID"},
	"group.transport":   {"LUSTREBULK_GROUP_TRANSPORT"},
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LUSTREBULK_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use LUSTREBULK_ prefix and underscores
	// Example: LUSTREBULK_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("LUSTREBULK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about; bind every
	// field so that env overrides work without a config file.
	bindEnvKeys(v, "", reflect.TypeOf(Config{}))
	for key, envs := range launcherEnv {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/lustrebulk/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys binds the mapstructure key of every scalar field of t.
// Map sections are left to the config file.
func bindEnvKeys(v *viper.Viper, prefix string, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		key := prefix + name

		switch {
		case field.Type.Kind() == reflect.Struct:
			bindEnvKeys(v, key+".", field.Type)
		case field.Type.Kind() == reflect.Map:
		default:
			_ = v.BindEnv(key)
		}
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is not an error either:
		// launchers pass the same -config to every process.
		if configPath != "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return expandConfigFile(v)
}

// expandConfigFile rereads the config file with ${VAR} references replaced
// by environment values, so one file can serve every rank of a job.
func expandConfigFile(v *viper.Viper) error {
	path := v.ConfigFileUsed()
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return fmt.Errorf("failed to expand %s: %w", path, err)
	}
	if expanded == string(raw) {
		return nil
	}

	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lustrebulk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "lustrebulk")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
