package report

import (
	"bufio"
	"io"
	"strconv"
)

// TextEmitter writes buckets as "<x>\t<rate>" to the primary writer and
// marks as "<fraction>\t:\t<x>" to the diagnostic writer.
type TextEmitter struct {
	out  *bufio.Writer
	diag io.Writer
	buf  []byte
}

var _ Emitter = (*TextEmitter)(nil)

// NewTextEmitter creates a TextEmitter. The primary stream is buffered
// and must be flushed with Flush; marks are written through so they
// interleave with log output in order.
func NewTextEmitter(out, diag io.Writer) *TextEmitter {
	return &TextEmitter{
		out:  bufio.NewWriterSize(out, 64*1024),
		diag: diag,
		buf:  make([]byte, 0, 64),
	}
}

// Bucket writes one rate line.
func (e *TextEmitter) Bucket(b Bucket) error {
	e.buf = strconv.AppendUint(e.buf[:0], b.X, 10)
	e.buf = append(e.buf, '\t')
	e.buf = AppendRate(e.buf, b.Rate)
	e.buf = append(e.buf, '\n')

	_, err := e.out.Write(e.buf)

	return err
}

// Mark writes one percentile line.
func (e *TextEmitter) Mark(m Mark) error {
	line := make([]byte, 0, 32)
	line = strconv.AppendFloat(line, m.Fraction, 'g', -1, 64)
	line = append(line, "\t:\t"...)
	line = strconv.AppendUint(line, m.X, 10)
	line = append(line, '\n')

	_, err := e.diag.Write(line)

	return err
}

// Flush writes any buffered bucket lines.
func (e *TextEmitter) Flush() error {
	return e.out.Flush()
}

// AppendRate formats a rate with six significant digits, the way
// printf's %g does.
func AppendRate(dst []byte, rate float64) []byte {
	return strconv.AppendFloat(dst, rate, 'g', 6, 64)
}

// Collector keeps the report in memory.
type Collector struct {
	Buckets []Bucket
	Marks   []Mark
}

var _ Emitter = (*Collector)(nil)

// Bucket records b.
func (c *Collector) Bucket(b Bucket) error {
	c.Buckets = append(c.Buckets, b)

	return nil
}

// Mark records m.
func (c *Collector) Mark(m Mark) error {
	c.Marks = append(c.Marks, m)

	return nil
}

// tee fans every line out to several emitters.
type tee []Emitter

// Tee returns an Emitter that forwards to every emitter in order and
// stops at the first error.
func Tee(emitters ...Emitter) Emitter {
	return tee(emitters)
}

func (t tee) Bucket(b Bucket) error {
	for _, e := range t {
		if err := e.Bucket(b); err != nil {
			return err
		}
	}

	return nil
}

func (t tee) Mark(m Mark) error {
	for _, e := range t {
		if err := e.Mark(m); err != nil {
			return err
		}
	}

	return nil
}
