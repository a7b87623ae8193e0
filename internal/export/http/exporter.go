// Package http ships finished reports as NDJSON to Vector or any other
// HTTP collector.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"
)

// ErrUnexpectedStatus is returned when the collector answers with a non-2xx
// status.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// recordSize is a rough NDJSON line length used to presize request bodies.
const recordSize = 256

// Exporter posts batches of report records to the collector. It
// implements processor.ItemExporter and counts every record the
// collector accepted.
type Exporter struct {
	cfg        Config
	client     *http.Client
	compressor *Compressor
	log        logrus.FieldLogger

	delivered atomic.Int64
}

var _ processor.ItemExporter[Record] = (*Exporter)(nil)

// NewExporter validates cfg, with defaults applied, and builds the HTTP
// client for it.
func NewExporter(log logrus.FieldLogger, cfg Config) (*Exporter, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compressor, err := NewCompressor(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &Exporter{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.Workers,
				IdleConnTimeout:     30 * time.Second,
				DisableKeepAlives:   !cfg.IsKeepAlive(),
			},
			Timeout: cfg.ExportTimeout,
		},
		compressor: compressor,
		log:        log.WithField("component", "http_exporter"),
	}, nil
}

// ExportItems posts one batch as a single NDJSON request.
func (e *Exporter) ExportItems(ctx context.Context, records []*Record) error {
	var buf bytes.Buffer
	buf.Grow(len(records) * recordSize)

	encoder := json.NewEncoder(&buf)
	n := 0

	for _, r := range records {
		if r == nil {
			continue
		}

		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}

		n++
	}

	if n == 0 {
		return nil
	}

	body, err := e.compressor.Compress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")

	if encoding := e.compressor.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	e.delivered.Add(int64(n))

	e.log.WithFields(logrus.Fields{
		"records":    n,
		"bytes":      buf.Len(),
		"compressed": len(body),
	}).Debug("Exported report batch")

	return nil
}

// Delivered returns the number of records the collector has accepted.
func (e *Exporter) Delivered() int {
	return int(e.delivered.Load())
}

// Shutdown releases the compressor.
func (e *Exporter) Shutdown(_ context.Context) error {
	if e.compressor != nil {
		return e.compressor.Close()
	}

	return nil
}

// newProcessor wraps e in a synchronous batch processor for a report of
// n records. Write returns only once the collector has answered every
// batch, and it returns the first export error.
//
// A batch smaller than batch_size is only sent when batch_timeout
// fires, so the batch size is capped at n to ship short reports at once.
func newProcessor(
	log logrus.FieldLogger,
	cfg Config,
	e *Exporter,
	n int,
) (*processor.BatchItemProcessor[Record], error) {
	batch := cfg.BatchSize
	if n > 0 && n < batch {
		batch = n
	}

	proc, err := processor.NewBatchItemProcessor[Record](
		e,
		"report",
		log,
		processor.WithShippingMethod(processor.ShippingMethodSync),
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithMaxExportBatchSize(batch),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return proc, nil
}
