package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func startMetrics(t *testing.T) *Metrics {
	t.Helper()

	m := NewMetrics(testLog(), MetricsConfig{
		Addr: "127.0.0.1:0",
	})

	require.NoError(t, m.Start(context.Background()))

	t.Cleanup(func() {
		m.Stop()
	})

	// Give server a moment to start serving.
	time.Sleep(50 * time.Millisecond)

	return m
}

func TestMetrics_StartStop(t *testing.T) {
	m := startMetrics(t)
	require.NotEmpty(t, m.Addr())

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", m.Addr()))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, m.Stop())

	client := &http.Client{Timeout: time.Second}
	_, err = client.Get(fmt.Sprintf("http://%s/healthz", m.Addr()))
	assert.Error(t, err)
}

func TestMetrics_StartWithoutAddr(t *testing.T) {
	m := NewMetrics(testLog(), MetricsConfig{})

	require.NoError(t, m.Start(context.Background()))
	assert.Nil(t, m.server)
	assert.Empty(t, m.Addr())
	assert.NoError(t, m.Stop())
}

func TestMetrics_Scrape(t *testing.T) {
	m := startMetrics(t)

	m.SamplesTotal.Add(3)
	m.ChunksPlanned.Set(4)
	m.Mode.WithLabelValues("chunked").Set(1)
	m.ErrorsTotal.WithLabelValues(ErrorKindFieldMissing).Inc()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", m.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bodyStr := string(body)
	assert.Contains(t, bodyStr, "jtlhist_samples_total 3")
	assert.Contains(t, bodyStr, "jtlhist_chunks_planned 4")
	assert.Contains(t, bodyStr, `jtlhist_mode{mode="chunked"} 1`)
	assert.Contains(t, bodyStr, `jtlhist_errors_total{kind="field_missing"} 1`)
}

func TestMetrics_Healthz(t *testing.T) {
	m := startMetrics(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", m.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "ok", string(body))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics(testLog(), MetricsConfig{})

	m.SamplesTotal.Add(42)
	m.BytesReadTotal.Add(1024)
	m.HistogramKeys.Set(7)
	m.ObserveWorker(250 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "jtlhist.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "jtlhist_samples_total 42")
	assert.Contains(t, text, "jtlhist_bytes_read_total 1024")
	assert.Contains(t, text, "jtlhist_histogram_keys 7")
	assert.Contains(t, text, "jtlhist_worker_duration_seconds_count 1")
}

func TestMetrics_WriteTextfileBadDir(t *testing.T) {
	m := NewMetrics(testLog(), MetricsConfig{})

	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing metrics textfile")
}

func TestMetrics_StopIdempotent(t *testing.T) {
	m := NewMetrics(testLog(), MetricsConfig{})

	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}

func TestMetrics_AddrBeforeStart(t *testing.T) {
	m := NewMetrics(testLog(), MetricsConfig{Addr: ":9999"})

	assert.Equal(t, ":9999", m.Addr())
}
