// Package chunk splits a seekable input into line-aligned byte ranges,
// one per worker.
package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/linux-wizard/jtl-log-parser/internal/input"
	"github.com/linux-wizard/jtl-log-parser/internal/lines"
)

// MaxWorkers bounds the number of ranges a plan may request.
const MaxWorkers = 1024

// Range is a contiguous byte span [Start, Start+Length).
type Range struct {
	Start  int64
	Length int64
}

// End returns the first offset past the range.
func (r Range) End() int64 {
	return r.Start + r.Length
}

// Plan computes at most workers disjoint ranges covering [0, size).
// Every range begins on the first byte of a line. The split points are
// found by seeking to i*(size/workers) and moving past the next line
// terminator; a scan that reaches the end of input without one ends the
// plan early with fewer ranges. Empty ranges are dropped, so size 0
// yields no ranges.
func Plan(src io.ReaderAt, size int64, workers int) ([]Range, error) {
	if workers < 1 || workers > MaxWorkers {
		return nil, fmt.Errorf("workers must be in [1, %d], got %d", MaxWorkers, workers)
	}

	if size < 0 {
		return nil, fmt.Errorf("negative input size %d", size)
	}

	if size == 0 {
		return nil, nil
	}

	step := size / int64(workers)
	buf := make([]byte, lines.MaxLength)

	bounds := make([]int64, 1, workers+1)

	for i := 1; i < workers; i++ {
		next, ok, err := nextLineStart(src, size, int64(i)*step, buf)
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		bounds = append(bounds, next)
	}

	bounds = append(bounds, size)

	ranges := make([]Range, 0, len(bounds)-1)

	for i := 1; i < len(bounds); i++ {
		if bounds[i] == bounds[i-1] {
			continue
		}

		ranges = append(ranges, Range{
			Start:  bounds[i-1],
			Length: bounds[i] - bounds[i-1],
		})
	}

	return ranges, nil
}

// nextLineStart returns the offset just past the first terminator at or
// after off. ok is false when the input ends first. Offsets that already
// sit on a line start still skip that line; it belongs to the previous
// range.
func nextLineStart(src io.ReaderAt, size, off int64, buf []byte) (int64, bool, error) {
	if off >= size {
		return 0, false, nil
	}

	want := int64(len(buf))
	if remaining := size - off; remaining < want {
		want = remaining
	}

	n, err := src.ReadAt(buf[:want], off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == want) {
		return 0, false, fmt.Errorf("%w: reading split point at offset %d: %w", input.ErrInput, off, err)
	}

	if i := bytes.IndexByte(buf[:n], lines.Terminator); i >= 0 {
		return off + int64(i) + 1, true, nil
	}

	if int64(n) == int64(len(buf)) && off+int64(n) < size {
		return 0, false, fmt.Errorf("%w: no terminator within %d bytes of offset %d",
			lines.ErrLineTooLong, lines.MaxLength, off)
	}

	return 0, false, nil
}
