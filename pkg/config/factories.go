package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/internal/ratelimiter"
	"github.com/marmos91/lustrebulk/pkg/cache"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/group/loopback"
	"github.com/marmos91/lustrebulk/pkg/group/tcp"
	"github.com/marmos91/lustrebulk/pkg/report"
	"github.com/marmos91/lustrebulk/pkg/scan"
	"github.com/marmos91/lustrebulk/pkg/scan/lustre"
	"github.com/marmos91/lustrebulk/pkg/scan/static"
	"github.com/marmos91/lustrebulk/pkg/topology"
)

// decode converts a type-specific section into its config struct.
// Durations may be given as strings ("24h").
func decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// CreateCollector creates the residency collector selected by
// cfg.Scan.Collector, wrapped in the layout cache when cfg.Cache.Type is
// "badger".
//
// The returned close function releases the cache and is never nil.
func CreateCollector(ctx context.Context, cfg *Config) (scan.Collector, func() error, error) {
	noop := func() error { return nil }

	var collector scan.Collector
	switch cfg.Scan.Collector {
	case "lustre":
		collector = lustre.New()
	case "static":
		var staticCfg static.Config
		if err := decode(cfg.Scan.Static, &staticCfg); err != nil {
			return nil, noop, fmt.Errorf("invalid static collector config: %w", err)
		}
		if err := validate.Struct(&staticCfg); err != nil {
			return nil, noop, fmt.Errorf("static collector: %w", formatValidationError(err))
		}
		staticCfg.ApplyDefaults()
		collector = static.New(staticCfg)
		logger.Debug("Static collector: %d x %d bytes over %d targets",
			staticCfg.StripeCount, staticCfg.StripeSize, staticCfg.TargetCount)
	default:
		return nil, noop, fmt.Errorf("unknown collector type: %q", cfg.Scan.Collector)
	}

	switch cfg.Cache.Type {
	case "none", "":
		return collector, noop, nil
	case "badger":
		var cacheCfg cache.Config
		if err := decode(cfg.Cache.Badger, &cacheCfg); err != nil {
			return nil, noop, fmt.Errorf("invalid badger cache config: %w", err)
		}
		if err := validate.Struct(&cacheCfg); err != nil {
			return nil, noop, fmt.Errorf("badger cache: %w", formatValidationError(err))
		}
		cached, err := cache.Open(ctx, cacheCfg, collector)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Layout cache opened at %s", cacheCfg.Path)
		return cached, cached.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache type: %q", cfg.Cache.Type)
	}
}

// Process is one rank hosted by this OS process.
type Process struct {
	Transport group.Transport

	// LocalityKey groups processes into nodes.
	LocalityKey string
}

// CreateProcesses joins the job described by cfg.Group.
//
// The tcp transport returns exactly one process. The loopback transport
// returns all cfg.Group.Size ranks, laid out over cfg.Group.Nodes
// simulated nodes.
func CreateProcesses(ctx context.Context, cfg *Config) ([]Process, error) {
	g := cfg.Group

	switch g.Transport {
	case "loopback":
		hosts := loopback.Nodes(g.Size, g.Nodes)
		network := loopback.NewWithHosts(hosts)
		procs := make([]Process, g.Size)
		for rank := range procs {
			procs[rank] = Process{Transport: network.Endpoint(rank), LocalityKey: hosts[rank]}
		}
		logger.Debug("Loopback job: %d processes on %d simulated nodes", g.Size, g.Nodes)
		return procs, nil

	case "tcp":
		key, err := topology.LocalityKey(g.NodeName)
		if err != nil {
			return nil, err
		}
		t, err := tcp.Dial(ctx, tcp.Options{
			Rank:          g.Rank,
			Size:          g.Size,
			Coordinator:   g.Coordinator,
			ListenAddr:    g.ListenAddr,
			AdvertiseHost: g.AdvertiseHost,
			JobID:         g.JobID,
			DialTimeout:   g.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("join job via %s: %w", g.Coordinator, err)
		}
		return []Process{{Transport: t, LocalityKey: key}}, nil
	}

	return nil, fmt.Errorf("unknown transport type: %q", g.Transport)
}

// NewLimiter returns the per-process throttle, or nil when unlimited.
func NewLimiter(cfg *Config) *ratelimiter.RateLimiter {
	return ratelimiter.New(cfg.IO.MaxBytesPerSecond, cfg.IO.Burst)
}

// fileSinkConfig is the report.file section.
type fileSinkConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// s3SinkConfig is the report.s3 section.
type s3SinkConfig struct {
	Region          string `mapstructure:"region" validate:"required"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Format          string `mapstructure:"format" validate:"omitempty,oneof=yaml json"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"gte=0"`
}

// CreateReportSink creates the report sink selected by cfg.Report.Type.
// The report always goes to the log; file and s3 add a second sink.
func CreateReportSink(ctx context.Context, cfg *Config) (report.Sink, error) {
	switch cfg.Report.Type {
	case "log", "":
		return report.LogSink{}, nil

	case "file":
		var fileCfg fileSinkConfig
		if err := decode(cfg.Report.File, &fileCfg); err != nil {
			return nil, fmt.Errorf("invalid file report config: %w", err)
		}
		if err := validate.Struct(&fileCfg); err != nil {
			return nil, fmt.Errorf("file report: %w", formatValidationError(err))
		}
		return report.Multi{report.LogSink{}, report.FileSink{Path: fileCfg.Path}}, nil

	case "s3":
		sink, err := createS3Sink(ctx, cfg.Report.S3)
		if err != nil {
			return nil, err
		}
		return report.Multi{report.LogSink{}, sink}, nil
	}

	return nil, fmt.Errorf("unknown report type: %q", cfg.Report.Type)
}

// createS3Sink creates an S3 report sink.
func createS3Sink(ctx context.Context, options map[string]any) (report.S3Sink, error) {
	var sinkCfg s3SinkConfig
	if err := decode(options, &sinkCfg); err != nil {
		return report.S3Sink{}, fmt.Errorf("failed to decode S3 report config: %w", err)
	}
	if err := validate.Struct(&sinkCfg); err != nil {
		return report.S3Sink{}, fmt.Errorf("S3 report: %w", formatValidationError(err))
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(sinkCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if sinkCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               sinkCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default credential chain
	if sinkCfg.AccessKeyID != "" && sinkCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			sinkCfg.AccessKeyID,
			sinkCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := sinkCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
			o.MaxBackoff = 10 * time.Second
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return report.S3Sink{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO/Localstack
		if sinkCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	logger.Debug("S3 report sink: bucket=%s, region=%s, prefix=%s",
		sinkCfg.Bucket, sinkCfg.Region, sinkCfg.KeyPrefix)

	return report.S3Sink{
		Client:    client,
		Bucket:    sinkCfg.Bucket,
		KeyPrefix: sinkCfg.KeyPrefix,
		Format:    report.Format(sinkCfg.Format),
	}, nil
}
