package http

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linux-wizard/jtl-log-parser/internal/report"
)

// Record types.
const (
	RecordBucket = "bucket"
	RecordMark   = "mark"
)

// RunInfo describes the run a report came from.
type RunInfo struct {
	Input string
	Field int
	Step  uint64
	Mode  report.Mode
	Total uint64
}

// Record is one NDJSON document. Exactly one of Bucket and Mark is set.
type Record struct {
	Type        string            `json:"type"`
	GeneratedAt string            `json:"generated_at"`
	Source      string            `json:"source,omitempty"`
	Input       string            `json:"input"`
	Field       int               `json:"field"`
	Step        uint64            `json:"step"`
	Mode        report.Mode       `json:"mode"`
	Total       uint64            `json:"total"`
	Bucket      *report.Bucket    `json:"bucket,omitempty"`
	Mark        *report.Mark      `json:"mark,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Records flattens a collected report into export records, buckets
// first.
func Records(cfg Config, run RunInfo, c *report.Collector, now time.Time) []*Record {
	source := cfg.Source
	if source == "" {
		source, _ = os.Hostname()
	}

	base := Record{
		GeneratedAt: now.UTC().Format(time.RFC3339Nano),
		Source:      source,
		Input:       run.Input,
		Field:       run.Field,
		Step:        run.Step,
		Mode:        run.Mode,
		Total:       run.Total,
		Labels:      cfg.Labels,
	}

	out := make([]*Record, 0, len(c.Buckets)+len(c.Marks))

	for i := range c.Buckets {
		r := base
		r.Type = RecordBucket
		r.Bucket = &c.Buckets[i]
		out = append(out, &r)
	}

	for i := range c.Marks {
		r := base
		r.Type = RecordMark
		r.Mark = &c.Marks[i]
		out = append(out, &r)
	}

	return out
}

// Publish ships every record of c to the collector and returns once
// each batch has been answered. It returns the number of records the
// collector accepted; anything short of all of them is an error.
func Publish(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg Config,
	run RunInfo,
	c *report.Collector,
) (int, error) {
	records := Records(cfg, run, c, time.Now())
	if len(records) == 0 {
		return 0, nil
	}

	cfg.ApplyDefaults()

	exporter, err := NewExporter(log, cfg)
	if err != nil {
		return 0, fmt.Errorf("creating exporter: %w", err)
	}

	proc, err := newProcessor(log, cfg, exporter, len(records))
	if err != nil {
		return 0, err
	}

	proc.Start(ctx)

	writeErr := proc.Write(ctx, records)
	shutdownErr := proc.Shutdown(ctx)
	delivered := exporter.Delivered()

	switch {
	case writeErr != nil:
		return delivered, fmt.Errorf("exporting report records: %w", writeErr)
	case shutdownErr != nil:
		return delivered, fmt.Errorf("flushing report export: %w", shutdownErr)
	case delivered != len(records):
		return delivered, fmt.Errorf("collector accepted %d of %d report records", delivered, len(records))
	}

	log.WithFields(logrus.Fields{
		"records": delivered,
		"address": cfg.Address,
	}).Info("Exported report")

	return delivered, nil
}
