// Package report turns a finished histogram into fixed-width rate buckets
// and exact percentile thresholds in one ascending pass.
package report

import (
	"errors"
	"fmt"
	"math"

	"github.com/linux-wizard/jtl-log-parser/internal/histogram"
)

// Fractions are the percentile marks reported, ascending.
var Fractions = []float64{0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 0.99}

// DefaultStep is the default bucket width in key units.
const DefaultStep = 5000

// Mode selects the x-axis origin.
type Mode string

// X-axis modes.
const (
	// ModeAbsolute prints keys as observed.
	ModeAbsolute Mode = "absolute"
	// ModeRelative prints keys minus the smallest observed key.
	ModeRelative Mode = "relative"
)

// ParseMode validates a configured mode. Empty means absolute.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAbsolute, nil
	case ModeAbsolute, ModeRelative:
		return m, nil
	default:
		return "", fmt.Errorf("unknown x-axis mode: %s", s)
	}
}

// Bucket is the half-open window [Start, Start+Step).
type Bucket struct {
	X       uint64  `json:"x"`
	Start   uint64  `json:"start"`
	Samples uint64  `json:"samples"`
	Rate    float64 `json:"rate"`
}

// Mark is the smallest key at which the cumulative count reaches
// Fraction of all samples.
type Mark struct {
	Fraction float64 `json:"fraction"`
	Key      uint64  `json:"key"`
	X        uint64  `json:"x"`
}

// Emitter receives report lines as the pass produces them.
type Emitter interface {
	Bucket(b Bucket) error
	Mark(m Mark) error
}

// Summary totals a finished pass.
type Summary struct {
	Buckets uint64
	Samples uint64
	Marks   []Mark
}

// Generator walks a histogram once in ascending key order.
type Generator struct {
	step uint64
	mode Mode
}

// NewGenerator creates a Generator with bucket width step.
func NewGenerator(step uint64, mode Mode) (*Generator, error) {
	if step == 0 {
		return nil, errors.New("histogram step must be > 0")
	}

	if mode == "" {
		mode = ModeAbsolute
	}

	return &Generator{step: step, mode: mode}, nil
}

// Generate emits one Bucket per step-wide window from the smallest key
// up to the window holding the largest key, empty windows included, and
// one Mark per fraction at the exact key where the cumulative count
// first reaches fraction*total. An empty histogram emits nothing.
func (g *Generator) Generate(h histogram.Reader, total uint64, emit Emitter) (Summary, error) {
	var sum Summary

	first, ok := h.Min()
	if !ok {
		return sum, nil
	}

	var (
		origin     = first.Key
		start      = first.Key
		cumulative uint64
		pending    = 0
		emitErr    error
	)

	for {
		var samples uint64

		visit := func(e histogram.Entry) bool {
			samples += e.Count
			cumulative += e.Count

			for pending < len(Fractions) &&
				float64(cumulative) >= Fractions[pending]*float64(total) {
				m := Mark{
					Fraction: Fractions[pending],
					Key:      e.Key,
					X:        g.x(e.Key, origin),
				}

				if emitErr = emit.Mark(m); emitErr != nil {
					return false
				}

				sum.Marks = append(sum.Marks, m)
				pending++
			}

			return true
		}

		// A window whose end would overflow the key space is the last
		// one and is open above.
		bounded := start <= math.MaxUint64-g.step
		end := start + g.step

		if bounded {
			h.AscendRange(start, end, visit)
		} else {
			h.AscendFrom(start, visit)
		}

		if emitErr != nil {
			return sum, fmt.Errorf("emitting percentile: %w", emitErr)
		}

		b := Bucket{
			X:       g.x(start, origin),
			Start:   start,
			Samples: samples,
			Rate:    float64(samples) / float64(g.step),
		}

		if err := emit.Bucket(b); err != nil {
			return sum, fmt.Errorf("emitting bucket: %w", err)
		}

		sum.Buckets++
		sum.Samples += samples

		if !bounded {
			return sum, nil
		}

		if _, more := h.LowerBound(end); !more {
			return sum, nil
		}

		start = end
	}
}

func (g *Generator) x(v, origin uint64) uint64 {
	if g.mode == ModeRelative {
		return v - origin
	}

	return v
}
