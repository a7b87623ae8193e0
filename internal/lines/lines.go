// Package lines reads newline-terminated records with a fixed upper bound
// on record length.
package lines

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxLength is the largest accepted line in bytes, terminator included.
const MaxLength = 64*1024 - 1

// Terminator ends every line.
const Terminator = '\n'

// ErrLineTooLong is returned for a line that does not fit in MaxLength.
var ErrLineTooLong = errors.New("line too long")

// Reader yields one line at a time from an underlying stream. The
// returned slice is only valid until the next call to Next.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxLength)}
}

// Next returns the next line without its terminator and the number of
// bytes consumed from the stream, terminator included. A final line
// without a terminator is returned as a regular line. io.EOF is returned
// once the stream is exhausted.
func (r *Reader) Next() ([]byte, int, error) {
	line, err := r.br.ReadSlice(Terminator)

	switch {
	case err == nil:
		return line[:len(line)-1], len(line), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, 0, fmt.Errorf("%w: exceeds %d bytes", ErrLineTooLong, MaxLength)
	case errors.Is(err, io.EOF):
		if len(line) == 0 {
			return nil, 0, io.EOF
		}

		return line, len(line), nil
	default:
		return nil, 0, err
	}
}
