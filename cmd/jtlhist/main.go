package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/linux-wizard/jtl-log-parser/internal/analyzer"
	"github.com/linux-wizard/jtl-log-parser/internal/export"
	httpexport "github.com/linux-wizard/jtl-log-parser/internal/export/http"
	"github.com/linux-wizard/jtl-log-parser/internal/input"
	"github.com/linux-wizard/jtl-log-parser/internal/report"
	"github.com/linux-wizard/jtl-log-parser/internal/version"
)

type options struct {
	cfgFile     string
	logLevel    string
	threads     int
	field       int
	step        uint64
	relative    bool
	all         bool
	match       string
	dataIdx     int
	delimiter   string
	metricsFile string
	metricsAddr string
	mmap        bool
	compression string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	defaults := analyzer.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "jtlhist [file]",
		Short: "Histogram and percentiles of one numeric field of a delimited log",
		Long: `jtlhist reads a delimited log such as a JMeter JTL file, counts every
value of one numeric field exactly, and prints a rate per fixed-width
bucket to stdout and the 25th to 99th percentiles to stderr.

Regular files are split across --thread workers. Pipes, standard input
and compressed files are read by a single worker.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.cfgFile, "config", "", "path to a YAML config file")
	f.StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	f.IntVarP(&opts.threads, "thread", "t", defaults.Threads, "number of workers, 1..1024")
	f.IntVarP(&opts.field, "field", "f", defaults.Field, "0-based index of the numeric field")
	f.Uint64VarP(&opts.step, "step", "s", defaults.Step, "bucket width in key units")
	f.BoolVar(&opts.relative, "relative", false, "print keys relative to the smallest key")
	f.BoolVarP(&opts.all, "all", "a", false, "print absolute keys (default)")
	f.StringVarP(&opts.match, "match", "m", "", "legacy label filter, at most 10 characters (not applied)")
	f.IntVarP(&opts.dataIdx, "dataidx", "d", 0, "legacy label field index (not applied)")
	f.StringVar(&opts.delimiter, "delimiter", defaults.Delimiter, "single-byte field delimiter")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	f.BoolVar(&opts.mmap, "mmap", false, "memory-map regular files")
	f.StringVar(&opts.compression, "compression", defaults.Input.Compression,
		"input compression: auto, none, gzip, zstd, snappy")

	cmd.MarkFlagsMutuallyExclusive("all", "relative")

	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.FullWithPlatform())
		},
	}
}

// loadConfig reads the config file, when given, and lays explicitly set
// flags over it.
func loadConfig(flags *pflag.FlagSet, opts *options) (*analyzer.Config, error) {
	cfg := analyzer.DefaultConfig()

	if opts.cfgFile != "" {
		loaded, err := analyzer.LoadConfig(opts.cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	overrides := map[string]func(){
		"thread":       func() { cfg.Threads = opts.threads },
		"field":        func() { cfg.Field = opts.field },
		"step":         func() { cfg.Step = opts.step },
		"relative":     func() { cfg.Mode = modeFor(opts.relative) },
		"match":        func() { cfg.Match = opts.match },
		"dataidx":      func() { cfg.DataField = opts.dataIdx },
		"delimiter":    func() { cfg.Delimiter = opts.delimiter },
		"metrics-file": func() { cfg.Metrics.File = opts.metricsFile },
		"metrics-addr": func() { cfg.Metrics.Addr = opts.metricsAddr },
		"mmap":         func() { cfg.Input.Mmap = opts.mmap },
		"compression":  func() { cfg.Input.Compression = opts.compression },
	}

	flags.Visit(func(fl *pflag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})

	// --all only ever selects the absolute axis.
	if flags.Changed("all") && opts.all {
		cfg.Mode = report.ModeAbsolute
	}

	return cfg, nil
}

func modeFor(relative bool) report.Mode {
	if relative {
		return report.ModeRelative
	}

	return report.ModeAbsolute
}

func run(cmd *cobra.Command, args []string, opts *options) (err error) {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := loadConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	metrics := export.NewMetrics(log, cfg.Metrics)

	if err := metrics.Start(ctx); err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}

	defer func() {
		if stopErr := metrics.Stop(); stopErr != nil {
			log.WithError(stopErr).Warn("Error stopping metrics server")
		}

		if cfg.Metrics.File == "" {
			return
		}

		if writeErr := metrics.WriteTextfile(cfg.Metrics.File); writeErr != nil {
			err = errors.Join(err, writeErr)
		}
	}()

	a, err := analyzer.New(log, cfg, metrics)
	if err != nil {
		return fmt.Errorf("creating analyzer: %w", err)
	}

	path := input.Stdin
	if len(args) == 1 {
		path = args[0]
	}

	in, err := input.Open(log, path, cfg.Input)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(analyzer.ErrorKind(err)).Inc()

		return err
	}

	defer func() {
		if closeErr := in.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing input")
		}
	}()

	res, err := a.Run(ctx, in)
	if err != nil {
		return err
	}

	text := report.NewTextEmitter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	var (
		emit      report.Emitter = text
		collected *report.Collector
	)

	if cfg.Export.HTTP.Enabled {
		collected = &report.Collector{}
		emit = report.Tee(text, collected)
	}

	if _, err := a.Report(res, emit); err != nil {
		return err
	}

	if err := text.Flush(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if collected == nil {
		return nil
	}

	n, err := httpexport.Publish(ctx, log, cfg.Export.HTTP, httpexport.RunInfo{
		Input: in.Name(),
		Field: cfg.Field,
		Step:  cfg.Step,
		Mode:  cfg.Mode,
		Total: res.Samples,
	}, collected)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(export.ErrorKindOther).Inc()

		return fmt.Errorf("exporting report: %w", err)
	}

	if n > 0 {
		metrics.ExportedRecords.WithLabelValues(httpexport.RecordBucket).Add(float64(len(collected.Buckets)))
		metrics.ExportedRecords.WithLabelValues(httpexport.RecordMark).Add(float64(len(collected.Marks)))
	}

	return nil
}
