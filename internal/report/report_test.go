package report

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-wizard/jtl-log-parser/internal/histogram"
)

func build(keys ...uint64) *histogram.Histogram {
	h := histogram.New()
	for _, k := range keys {
		h.Add(k, 1)
	}

	return h
}

func generate(t *testing.T, h histogram.Reader, step uint64, mode Mode) (*Collector, Summary) {
	t.Helper()

	g, err := NewGenerator(step, mode)
	require.NoError(t, err)

	c := &Collector{}
	sum, err := g.Generate(h, h.Total(), c)
	require.NoError(t, err)

	return c, sum
}

func markKeys(marks []Mark) map[float64]uint64 {
	out := make(map[float64]uint64, len(marks))
	for _, m := range marks {
		out[m.Fraction] = m.Key
	}

	return out
}

func TestGenerate_ThreeSamples(t *testing.T) {
	c, sum := generate(t, build(100, 200, 150), 100, ModeAbsolute)

	assert.Equal(t, []Bucket{
		{X: 100, Start: 100, Samples: 2, Rate: 0.02},
		{X: 200, Start: 200, Samples: 1, Rate: 0.01},
	}, c.Buckets)

	keys := markKeys(c.Marks)
	require.Len(t, keys, len(Fractions))
	assert.Equal(t, uint64(100), keys[0.25])
	assert.Equal(t, uint64(150), keys[0.5])
	assert.Equal(t, uint64(200), keys[0.75])
	assert.Equal(t, uint64(200), keys[0.99])

	assert.Equal(t, uint64(2), sum.Buckets)
	assert.Equal(t, uint64(3), sum.Samples)
	assert.Equal(t, c.Marks, sum.Marks)
}

func TestGenerate_RelativeMode(t *testing.T) {
	c, _ := generate(t, build(100, 200, 150), 100, ModeRelative)

	require.Len(t, c.Buckets, 2)
	assert.Equal(t, uint64(0), c.Buckets[0].X)
	assert.Equal(t, uint64(100), c.Buckets[1].X)
	assert.Equal(t, uint64(100), c.Buckets[0].Start)

	for _, m := range c.Marks {
		assert.Equal(t, m.Key-100, m.X)
	}
}

func TestGenerate_EmptyHistogram(t *testing.T) {
	c, sum := generate(t, histogram.New(), 5000, ModeAbsolute)

	assert.Empty(t, c.Buckets)
	assert.Empty(t, c.Marks)
	assert.Equal(t, Summary{}, sum)
}

func TestGenerate_GapsEmitZeroRateBuckets(t *testing.T) {
	c, _ := generate(t, build(0, 350), 100, ModeAbsolute)

	require.Len(t, c.Buckets, 4)

	var samples []uint64
	for _, b := range c.Buckets {
		samples = append(samples, b.Samples)
	}

	assert.Equal(t, []uint64{1, 0, 0, 1}, samples)
	assert.Equal(t, uint64(300), c.Buckets[3].Start)
	assert.Zero(t, c.Buckets[1].Rate)
}

func TestGenerate_WindowStartsAtMinimum(t *testing.T) {
	c, _ := generate(t, build(1234, 1300, 6233, 6234), 5000, ModeAbsolute)

	require.Len(t, c.Buckets, 2)
	assert.Equal(t, uint64(1234), c.Buckets[0].Start)
	assert.Equal(t, uint64(3), c.Buckets[0].Samples)
	assert.Equal(t, uint64(6234), c.Buckets[1].Start)
	assert.Equal(t, uint64(1), c.Buckets[1].Samples)
}

func TestGenerate_KeySpaceEnd(t *testing.T) {
	c, sum := generate(t, build(math.MaxUint64-15, math.MaxUint64), 10, ModeAbsolute)

	require.Len(t, c.Buckets, 2)
	assert.Equal(t, uint64(1), c.Buckets[0].Samples)
	assert.Equal(t, uint64(math.MaxUint64-5), c.Buckets[1].Start)
	assert.Equal(t, uint64(1), c.Buckets[1].Samples)
	assert.Equal(t, uint64(2), sum.Samples)

	c, _ = generate(t, build(math.MaxUint64-5, math.MaxUint64), 10, ModeAbsolute)
	require.Len(t, c.Buckets, 1)
	assert.Equal(t, uint64(2), c.Buckets[0].Samples)
}

func TestGenerate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 30; run++ {
		h := histogram.New()

		n := 1 + rng.Intn(2000)
		for i := 0; i < n; i++ {
			h.Add(uint64(rng.ExpFloat64()*300), uint64(1+rng.Intn(3)))
		}

		step := uint64(1 + rng.Intn(250))
		c, sum := generate(t, h, step, ModeAbsolute)

		var total uint64
		for _, b := range c.Buckets {
			total += b.Samples
		}

		require.Equal(t, h.Total(), total, "bucket samples must add up")
		require.Equal(t, h.Total(), sum.Samples)
		require.Len(t, c.Marks, len(Fractions))

		for i := 1; i < len(c.Marks); i++ {
			require.Greater(t, c.Marks[i].Fraction, c.Marks[i-1].Fraction)
			require.GreaterOrEqual(t, c.Marks[i].Key, c.Marks[i-1].Key)
		}

		for i := 1; i < len(c.Buckets); i++ {
			require.Equal(t, c.Buckets[i-1].Start+step, c.Buckets[i].Start)
		}
	}
}

func TestGenerate_MarkIsSmallestReachingKey(t *testing.T) {
	h := histogram.New()
	h.Add(10, 49)
	h.Add(20, 1)
	h.Add(30, 50)

	c, _ := generate(t, h, 1000, ModeAbsolute)
	keys := markKeys(c.Marks)

	assert.Equal(t, uint64(10), keys[0.25])
	assert.Equal(t, uint64(20), keys[0.5])
	assert.Equal(t, uint64(30), keys[0.75])
}

func TestNewGenerator_ZeroStep(t *testing.T) {
	_, err := NewGenerator(0, ModeAbsolute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step must be > 0")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAbsolute, m)

	m, err = ParseMode("relative")
	require.NoError(t, err)
	assert.Equal(t, ModeRelative, m)

	_, err = ParseMode("log")
	assert.Error(t, err)
}

func TestTextEmitter_Format(t *testing.T) {
	var out, diag bytes.Buffer

	g, err := NewGenerator(100, ModeAbsolute)
	require.NoError(t, err)

	h := build(100, 200, 150)
	e := NewTextEmitter(&out, &diag)

	_, err = g.Generate(h, h.Total(), e)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	assert.Equal(t, "100\t0.02\n200\t0.01\n", out.String())
	assert.Equal(t,
		"0.25\t:\t100\n0.5\t:\t150\n0.75\t:\t200\n0.8\t:\t200\n"+
			"0.9\t:\t200\n0.95\t:\t200\n0.99\t:\t200\n",
		diag.String())
}

func TestAppendRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 0, want: "0"},
		{rate: 1, want: "1"},
		{rate: 0.0002, want: "0.0002"},
		{rate: 1.0 / 3, want: "0.333333"},
		{rate: 1234567, want: "1.23457e+06"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, string(AppendRate(nil, tt.rate)))
	}
}

type failingEmitter struct{ Collector }

func (f *failingEmitter) Bucket(Bucket) error { return errors.New("stdout closed") }

func TestGenerate_EmitterError(t *testing.T) {
	g, err := NewGenerator(100, ModeAbsolute)
	require.NoError(t, err)

	h := build(1, 2)

	_, err = g.Generate(h, h.Total(), &failingEmitter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdout closed")
}

func TestTee(t *testing.T) {
	a, b := &Collector{}, &Collector{}

	g, err := NewGenerator(10, ModeAbsolute)
	require.NoError(t, err)

	h := build(1, 15, 27)
	_, err = g.Generate(h, h.Total(), Tee(a, b))
	require.NoError(t, err)

	assert.Len(t, a.Buckets, 3)
	assert.Equal(t, a, b)
}
