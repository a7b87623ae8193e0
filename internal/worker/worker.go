// Package worker turns a run of lines into histogram observations.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-wizard/jtl-log-parser/internal/chunk"
	"github.com/linux-wizard/jtl-log-parser/internal/field"
	"github.com/linux-wizard/jtl-log-parser/internal/histogram"
	"github.com/linux-wizard/jtl-log-parser/internal/input"
	"github.com/linux-wizard/jtl-log-parser/internal/lines"
)

// cancelCheckInterval is how many lines are consumed between context
// checks.
const cancelCheckInterval = 4096

// LineError reports the failing line's absolute byte offset.
type LineError struct {
	Offset int64
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("at byte offset %d: %v", e.Offset, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Stats summarizes one consumer's work.
type Stats struct {
	Lines    uint64
	Bytes    int64
	Duration time.Duration
}

// Shared is the state every consumer of a run writes into.
type Shared struct {
	Histogram histogram.Recorder
	Samples   *atomic.Uint64
	Extractor field.Extractor
}

// Worker consumes exactly one chunk.Range of a seekable input.
type Worker struct {
	log    logrus.FieldLogger
	id     int
	rng    chunk.Range
	src    io.ReaderAt
	shared Shared
}

// New creates a Worker. src is shared between workers; each Worker
// reads it through its own io.SectionReader, so no read cursor is
// shared.
func New(
	log logrus.FieldLogger,
	id int,
	rng chunk.Range,
	src io.ReaderAt,
	shared Shared,
) *Worker {
	return &Worker{
		log: log.WithFields(logrus.Fields{
			"component": "worker",
			"worker":    id,
		}),
		id:     id,
		rng:    rng,
		src:    src,
		shared: shared,
	}
}

// Run reads the range line by line and stops when exactly Length bytes
// have been consumed.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	view := io.NewSectionReader(w.src, w.rng.Start, w.rng.Length)

	stats, err := consume(ctx, view, w.rng.Start, w.rng.Length, w.shared)
	stats.Duration = time.Since(start)

	if err != nil {
		return stats, err
	}

	if stats.Bytes != w.rng.Length {
		return stats, fmt.Errorf("%w: range [%d, %d) ended after %d bytes",
			input.ErrInput, w.rng.Start, w.rng.End(), stats.Bytes)
	}

	w.log.WithFields(logrus.Fields{
		"start":    w.rng.Start,
		"length":   w.rng.Length,
		"lines":    stats.Lines,
		"duration": stats.Duration,
	}).Debug("Worker finished")

	return stats, nil
}

// Consume reads r once, in order, to its end. It is the single-threaded
// path for inputs that cannot be split.
func Consume(ctx context.Context, r io.Reader, shared Shared) (Stats, error) {
	start := time.Now()

	stats, err := consume(ctx, r, 0, -1, shared)
	stats.Duration = time.Since(start)

	return stats, err
}

// consume feeds lines into shared until limit bytes were read, or until
// EOF when limit is negative. base is the absolute offset of r's first
// byte and is only used for error reporting.
func consume(
	ctx context.Context,
	r io.Reader,
	base int64,
	limit int64,
	shared Shared,
) (Stats, error) {
	var stats Stats

	lr := lines.NewReader(r)

	for limit < 0 || stats.Bytes < limit {
		if stats.Lines%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		line, n, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		offset := base + stats.Bytes

		if err != nil {
			if !errors.Is(err, lines.ErrLineTooLong) {
				err = fmt.Errorf("%w: %w", input.ErrInput, err)
			}

			return stats, &LineError{Offset: offset, Err: err}
		}

		key, err := shared.Extractor.Extract(line)
		if err != nil {
			return stats, &LineError{Offset: offset, Err: err}
		}

		shared.Histogram.Add(key, 1)
		shared.Samples.Add(1)

		stats.Lines++
		stats.Bytes += int64(n)
	}

	return stats, nil
}
