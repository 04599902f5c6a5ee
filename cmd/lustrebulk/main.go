package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/lustrebulk/internal/logger"
	"github.com/marmos91/lustrebulk/pkg/bench"
	"github.com/marmos91/lustrebulk/pkg/config"
	"github.com/marmos91/lustrebulk/pkg/engine"
	"github.com/marmos91/lustrebulk/pkg/group"
	"github.com/marmos91/lustrebulk/pkg/group/tcp"
	"github.com/marmos91/lustrebulk/pkg/report"
	"github.com/marmos91/lustrebulk/pkg/scan"
	"github.com/marmos91/lustrebulk/pkg/topology"
)

const usage = `lustrebulk - storage-target aware bulk read/write benchmark

Usage:
  lustrebulk [flags] read|write <files/directories...>
  lustrebulk [flags] scan <files/directories...>
  lustrebulk [flags] create <name_prefix> <count> <size>
  lustrebulk [flags] init

Flags:
`

type options struct {
	configPath string
	logLevel   string
	testCount  int
	single     bool
	np         int
	nodes      int
	force      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/lustrebulk/config.yaml)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.IntVar(&opts.testCount, "test-count", 0, "Number of test iterations")
	flag.BoolVar(&opts.single, "single", false, "Also run the single-process baseline")
	flag.IntVar(&opts.np, "np", 0, "Run this many processes in this OS process (loopback transport)")
	flag.IntVar(&opts.nodes, "nodes", 0, "Number of simulated nodes for -np")
	flag.BoolVar(&opts.force, "force", false, "Overwrite an existing config file (init)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if args[0] == "init" {
		runInit(opts)
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}
	if err := configureLogger(cfg); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd := args[0]; cmd {
	case "read", "write":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(1)
		}
		cfg.IO.Direction = cmd
		err = runBench(ctx, cfg, args[1:])
	case "scan":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(1)
		}
		err = runScan(ctx, cfg, args[1:])
	case "create":
		if len(args) != 4 {
			flag.Usage()
			os.Exit(1)
		}
		err = runCreate(ctx, cfg, args[1], args[2], args[3])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func runInit(opts options) {
	if opts.configPath != "" {
		if err := config.InitConfigToPath(opts.configPath, opts.force); err != nil {
			log.Fatalf("Failed to initialize config: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", opts.configPath)
		return
	}

	path, err := config.InitConfig(opts.force)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	fmt.Printf("Configuration written to %s\n", path)
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(cfg *config.Config, opts options) error {
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.testCount > 0 {
		cfg.Job.TestCount = opts.testCount
	}
	if opts.single {
		cfg.Job.Single = true
	}
	if opts.np > 0 {
		cfg.Group.Transport = "loopback"
		cfg.Group.Rank = 0
		cfg.Group.Size = opts.np
		cfg.Group.Nodes = 1
	}
	if opts.nodes > 0 {
		cfg.Group.Nodes = opts.nodes
	}

	config.ApplyDefaults(cfg)
	return config.Validate(cfg)
}

func configureLogger(cfg *config.Config) error {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	return logger.SetOutput(cfg.Logging.Output)
}

// member is one rank of the job hosted by this OS process.
type member struct {
	transport group.Transport
	topo      *topology.Topology
}

func runBench(ctx context.Context, cfg *config.Config, roots []string) error {
	direction, err := engine.ParseDirection(cfg.IO.Direction)
	if err != nil {
		return err
	}

	procs, err := config.CreateProcesses(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range procs {
			_ = p.Transport.Close()
		}
	}()

	if len(procs) == 1 && cfg.Group.Transport == "tcp" {
		logger.SetPrefix("[" + strconv.Itoa(procs[0].Transport.Rank()) + "]")
	}

	// Topology discovery is collective: every hosted rank runs it at once.
	members := make([]member, len(procs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range procs {
		i, p := i, p
		g.Go(func() error {
			topo, err := topology.Discover(gctx, p.Transport, p.LocalityKey)
			if err != nil {
				return fmt.Errorf("rank %d: %w", p.Transport.Rank(), err)
			}
			members[i] = member{transport: p.Transport, topo: topo}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m := config.InitializeMetrics(cfg, members[0].topo.LocalRank)
	if m.Server != nil {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Server.Start(metricsCtx); err != nil {
				logger.Warn("%v", err)
			}
		}()
	}

	var sink report.Sink
	var collector scan.Collector
	closeCollector := func() error { return nil }
	for _, mb := range members {
		if mb.transport.Rank() != 0 {
			continue
		}
		if collector, closeCollector, err = config.CreateCollector(ctx, cfg); err != nil {
			return err
		}
		if sink, err = config.CreateReportSink(ctx, cfg); err != nil {
			_ = closeCollector()
			return err
		}
	}
	defer func() { _ = closeCollector() }()

	jobID := cfg.Group.JobID
	if t, ok := members[0].transport.(*tcp.Transport); ok {
		jobID = t.JobID().String()
	}

	var rep *report.Report

	g, gctx = errgroup.WithContext(ctx)
	for _, mb := range members {
		mb := mb
		g.Go(func() error {
			rank := mb.transport.Rank()
			r := &bench.Runner{
				Transport: group.WithMetrics(mb.transport, m.Transport),
				Topology:  mb.topo,
				Engine: &engine.Engine{
					Direction:  direction,
					BufferSize: cfg.IO.BufferSize,
					Limiter:    config.NewLimiter(cfg),
					Metrics:    m.Engine,
					Prefix:     fmt.Sprintf("[%d]", rank),
				},
				TestCount: cfg.Job.TestCount,
				Single:    cfg.Job.Single,
				BlobLimit: cfg.Job.BlobLimit,
				JobID:     jobID,
				Metrics:   m.Runs,
			}
			if rank == 0 {
				r.Scanner = scan.New(collector)
				if cfg.Scan.List {
					r.Listing = scan.PrintSink(os.Stdout)
				}
			}

			got, err := r.Run(gctx, roots)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			if rank == 0 {
				rep = got
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// An empty scan is reported by the coordinator and is not a setup failure.
		if errors.Is(err, bench.ErrNoFiles) {
			return nil
		}
		return err
	}

	if rep == nil {
		return nil
	}
	return sink.Write(ctx, rep)
}

func runScan(ctx context.Context, cfg *config.Config, roots []string) error {
	collector, closeCollector, err := config.CreateCollector(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeCollector() }()

	files, stats, err := scan.New(collector).Scan(ctx, roots, scan.PrintSink(os.Stdout))
	if err != nil {
		return err
	}

	logger.Info("%d files scanned in %.6fs: %d records, %s, %d errors",
		files.Len(), stats.Duration.Seconds(), stats.Records, humanize.IBytes(stats.Bytes), stats.Errors)
	return nil
}

func runCreate(ctx context.Context, cfg *config.Config, prefix, countArg, sizeArg string) error {
	count, err := strconv.Atoi(countArg)
	if err != nil || count <= 0 {
		return fmt.Errorf("invalid count: %s", countArg)
	}
	size, err := bench.ParseSize(sizeArg)
	if err != nil {
		return err
	}

	_, err = bench.Create(ctx, bench.CreateOptions{
		Prefix:  prefix,
		Count:   count,
		Size:    size,
		Limiter: config.NewLimiter(cfg),
	})
	return err
}
