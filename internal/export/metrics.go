// Package export exposes run metrics and ships finished reports to
// external systems.
package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "jtlhist"

// MetricsConfig configures where run metrics go.
type MetricsConfig struct {
	// File is a node-exporter textfile written after every run.
	// Empty disables it.
	File string `yaml:"file"`

	// Addr serves /metrics and /debug/pprof while the run is in
	// progress. Empty disables the server.
	Addr string `yaml:"addr"`
}

// Error kinds used as the "kind" label of ErrorsTotal.
const (
	ErrorKindInput           = "input"
	ErrorKindLineTooLong     = "line_too_long"
	ErrorKindFieldMissing    = "field_missing"
	ErrorKindFieldNotNumeric = "field_not_numeric"
	ErrorKindConfig          = "config"
	ErrorKindCanceled        = "canceled"
	ErrorKindOther           = "other"
)

// Metrics holds the Prometheus collectors for one run.
type Metrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	SamplesTotal    prometheus.Counter
	BytesReadTotal  prometheus.Counter
	ChunksPlanned   prometheus.Gauge
	HistogramKeys   prometheus.Gauge
	RunDuration     prometheus.Gauge
	WorkerDuration  prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec // kind
	Mode            *prometheus.GaugeVec   // mode (chunked/stream)
	ExportedRecords *prometheus.CounterVec // type
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(log logrus.FieldLogger, cfg MetricsConfig) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      log.WithField("component", "metrics"),
		addr:     cfg.Addr,
		registry: reg,

		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total lines parsed into the histogram.",
		}),
		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total input bytes consumed by workers.",
		}),
		ChunksPlanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_planned",
			Help:      "Number of byte ranges the input was split into.",
		}),
		HistogramKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "histogram_keys",
			Help:      "Number of distinct keys in the finished histogram.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time from opening the input to the histogram join.",
		}),
		WorkerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Time each worker spent on its range.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120}, // 1ms-2m
		}),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Fatal run errors by kind.",
			},
			[]string{"kind"},
		),
		Mode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mode",
				Help:      "Execution path taken by the run (1=active).",
			},
			[]string{"mode"},
		),
		ExportedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exported_records_total",
				Help:      "Report records handed to the HTTP exporter by type.",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.SamplesTotal,
		m.BytesReadTotal,
		m.ChunksPlanned,
		m.HistogramKeys,
		m.RunDuration,
		m.WorkerDuration,
		m.ErrorsTotal,
		m.Mode,
		m.ExportedRecords,
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveWorker records one finished worker.
func (m *Metrics) ObserveWorker(d time.Duration) {
	m.WorkerDuration.Observe(d.Seconds())
}

// WriteTextfile writes every collector to path in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}

	m.log.WithField("path", path).Debug("Wrote metrics textfile")

	return nil
}

// Start begins serving /metrics when an address is configured.
func (m *Metrics) Start(_ context.Context) error {
	if m.addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling of long runs.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}

	m.listener = ln
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		m.log.WithField("addr", ln.Addr().String()).
			Info("Metrics server started")

		if err := m.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			m.log.WithError(err).Error("Metrics server error")
		}
	}()

	return nil
}

// Addr returns the actual listener address, or the configured one
// before Start.
func (m *Metrics) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}

	return m.addr
}

// Stop shuts the metrics server down.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}
