// Package analyzer coordinates a run: it plans the input, fans ranges out
// to workers, joins them and hands the finished histogram to the report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/linux-wizard/jtl-log-parser/internal/chunk"
	"github.com/linux-wizard/jtl-log-parser/internal/export"
	"github.com/linux-wizard/jtl-log-parser/internal/field"
	"github.com/linux-wizard/jtl-log-parser/internal/histogram"
	"github.com/linux-wizard/jtl-log-parser/internal/input"
	"github.com/linux-wizard/jtl-log-parser/internal/lines"
	"github.com/linux-wizard/jtl-log-parser/internal/report"
	"github.com/linux-wizard/jtl-log-parser/internal/worker"
)

// Execution paths.
const (
	ModeChunked = "chunked"
	ModeStream  = "stream"
)

// Result is a finished, joined run.
type Result struct {
	Histogram histogram.Reader
	Samples   uint64
	Bytes     int64
	Ranges    int
	Mode      string
	Duration  time.Duration
}

// Analyzer runs one configuration against any number of inputs.
type Analyzer struct {
	log       logrus.FieldLogger
	cfg       *Config
	metrics   *export.Metrics
	extractor field.Extractor
	generator *report.Generator
}

// New validates cfg and creates an Analyzer.
func New(log logrus.FieldLogger, cfg *Config, metrics *export.Metrics) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	extractor, err := field.NewExtractor(cfg.Delimiter[0], cfg.Field)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	generator, err := report.NewGenerator(cfg.Step, cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	a := &Analyzer{
		log:       log.WithField("component", "analyzer"),
		cfg:       cfg,
		metrics:   metrics,
		extractor: extractor,
		generator: generator,
	}

	if cfg.Match != "" || cfg.DataField != 0 {
		a.log.WithFields(logrus.Fields{
			"match":      cfg.Match,
			"data_field": cfg.DataField,
		}).Debug("Legacy label options are accepted but not applied")
	}

	return a, nil
}

// Run builds the histogram for in. Seekable input is split across
// workers; anything else is consumed once on the calling goroutine. On
// error no partial result is returned.
func (a *Analyzer) Run(ctx context.Context, in *input.Input) (*Result, error) {
	start := time.Now()

	var (
		res *Result
		err error
	)

	if in.Seekable() {
		res, err = a.runChunked(ctx, in)
	} else {
		res, err = a.runStream(ctx, in)
	}

	if err != nil {
		a.metrics.ErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()

		return nil, err
	}

	res.Duration = time.Since(start)

	a.metrics.Mode.WithLabelValues(res.Mode).Set(1)
	a.metrics.SamplesTotal.Add(float64(res.Samples))
	a.metrics.BytesReadTotal.Add(float64(res.Bytes))
	a.metrics.HistogramKeys.Set(float64(res.Histogram.Len()))
	a.metrics.RunDuration.Set(res.Duration.Seconds())

	a.log.WithFields(logrus.Fields{
		"input":    in.Name(),
		"mode":     res.Mode,
		"ranges":   res.Ranges,
		"samples":  res.Samples,
		"keys":     res.Histogram.Len(),
		"duration": res.Duration,
	}).Info("Histogram complete")

	return res, nil
}

func (a *Analyzer) runChunked(ctx context.Context, in *input.Input) (*Result, error) {
	src := in.ReaderAt()

	ranges, err := chunk.Plan(src, in.Size(), a.cfg.Threads)
	if err != nil {
		return nil, fmt.Errorf("planning %s: %w", in.Name(), err)
	}

	a.metrics.ChunksPlanned.Set(float64(len(ranges)))

	var (
		h       = histogram.NewSync()
		samples atomic.Uint64
		read    atomic.Int64
		shared  = worker.Shared{
			Histogram: h,
			Samples:   &samples,
			Extractor: a.extractor,
		}
	)

	g, gctx := errgroup.WithContext(ctx)

	for i, rng := range ranges {
		a.log.WithFields(logrus.Fields{
			"worker": i,
			"start":  rng.Start,
			"length": rng.Length,
		}).Debug("Planned range")

		w := worker.New(a.log, i, rng, src, shared)

		g.Go(func() error {
			stats, err := w.Run(gctx)

			a.metrics.ObserveWorker(stats.Duration)
			read.Add(stats.Bytes)

			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", in.Name(), err)
	}

	return &Result{
		Histogram: h,
		Samples:   samples.Load(),
		Bytes:     read.Load(),
		Ranges:    len(ranges),
		Mode:      ModeChunked,
	}, nil
}

func (a *Analyzer) runStream(ctx context.Context, in *input.Input) (*Result, error) {
	var (
		h       = histogram.New()
		samples atomic.Uint64
	)

	a.log.WithField("input", in.Name()).Debug("Input is not seekable, using a single reader")

	stats, err := worker.Consume(ctx, in.Stream(), worker.Shared{
		Histogram: h,
		Samples:   &samples,
		Extractor: a.extractor,
	})

	a.metrics.ObserveWorker(stats.Duration)

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", in.Name(), err)
	}

	return &Result{
		Histogram: h,
		Samples:   samples.Load(),
		Bytes:     stats.Bytes,
		Ranges:    1,
		Mode:      ModeStream,
	}, nil
}

// Report runs the report pass over a finished result.
func (a *Analyzer) Report(res *Result, emit report.Emitter) (report.Summary, error) {
	sum, err := a.generator.Generate(res.Histogram, res.Samples, emit)
	if err != nil {
		a.metrics.ErrorsTotal.WithLabelValues(export.ErrorKindOther).Inc()

		return sum, fmt.Errorf("writing report: %w", err)
	}

	return sum, nil
}

// ErrorKind classifies a run error for the errors_total metric.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return export.ErrorKindCanceled
	case errors.Is(err, ErrInvalidConfig):
		return export.ErrorKindConfig
	case errors.Is(err, lines.ErrLineTooLong):
		return export.ErrorKindLineTooLong
	case errors.Is(err, field.ErrFieldMissing):
		return export.ErrorKindFieldMissing
	case errors.Is(err, field.ErrFieldNotNumeric):
		return export.ErrorKindFieldNotNumeric
	case errors.Is(err, input.ErrInput):
		return export.ErrorKindInput
	default:
		return export.ErrorKindOther
	}
}
