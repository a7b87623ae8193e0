// Package input opens the byte source a run reads from and decides whether
// it can be split across workers.
package input

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// ErrInput marks open, seek and read failures on the underlying stream.
var ErrInput = errors.New("input error")

// Options configures how a source is opened.
type Options struct {
	// Mmap maps named regular files into memory instead of using pread.
	Mmap bool `yaml:"mmap"`

	// Compression is one of auto, none, gzip, zstd, snappy.
	// Defaults to auto, which sniffs the leading magic bytes.
	Compression string `yaml:"compression"`
}

// Input is an opened source. A seekable input exposes an io.ReaderAt so
// every worker can read its own range through a private cursor; any
// other input is a stream that must be consumed once in order.
type Input struct {
	name    string
	at      io.ReaderAt
	size    int64
	stream  io.Reader
	closers []io.Closer
}

// Open opens path, or standard input when path is empty or "-".
func Open(log logrus.FieldLogger, path string, opts Options) (*Input, error) {
	comp, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}

	log = log.WithField("component", "input")

	if path == "" || path == Stdin {
		return fromFile(log, os.Stdin, "stdin", comp, false)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrInput, path, err)
	}

	in, err := fromFile(log, f, path, comp, opts.Mmap)
	if err != nil {
		f.Close()

		return nil, err
	}

	return in, nil
}

func fromFile(
	log logrus.FieldLogger,
	f *os.File,
	name string,
	comp Compression,
	useMmap bool,
) (*Input, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrInput, name, err)
	}

	owned := f != os.Stdin

	if !st.Mode().IsRegular() {
		log.WithField("name", name).Debug("Input is not a regular file, reading as a stream")

		in, err := FromReader(name, f, comp)
		if err != nil {
			return nil, err
		}

		if owned {
			in.closers = append(in.closers, f)
		}

		return in, nil
	}

	if comp == CompressionAuto {
		comp = sniffAt(f, st.Size())
	}

	if comp != CompressionNone {
		in, err := FromReader(name, f, comp)
		if err != nil {
			return nil, err
		}

		if owned {
			in.closers = append(in.closers, f)
		}

		return in, nil
	}

	if useMmap && owned {
		m, err := mmap.Open(f.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: mapping %s: %w", ErrInput, name, err)
		}

		// The mapping stays valid after the descriptor is closed.
		f.Close()

		return &Input{
			name:    name,
			at:      m,
			size:    int64(m.Len()),
			closers: []io.Closer{m},
		}, nil
	}

	if err := adviseSequential(f); err != nil {
		log.WithError(err).WithField("name", name).Debug("fadvise failed")
	}

	in := FromReaderAt(name, f, st.Size())
	if owned {
		in.closers = append(in.closers, f)
	}

	return in, nil
}

// FromReaderAt wraps an already open random-access source.
func FromReaderAt(name string, r io.ReaderAt, size int64) *Input {
	return &Input{name: name, at: r, size: size}
}

// FromReader wraps a stream, decompressing it when comp asks for it.
func FromReader(name string, r io.Reader, comp Compression) (*Input, error) {
	dec, closer, err := decompress(r, comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInput, name, err)
	}

	in := &Input{name: name, stream: dec}
	if closer != nil {
		in.closers = append(in.closers, closer)
	}

	return in, nil
}

// Name returns a display name for logs and errors.
func (in *Input) Name() string { return in.name }

// Seekable reports whether the input can be split into ranges.
func (in *Input) Seekable() bool { return in.at != nil }

// ReaderAt returns the random-access view. Nil for streams.
func (in *Input) ReaderAt() io.ReaderAt { return in.at }

// Size returns the byte size of a seekable input.
func (in *Input) Size() int64 { return in.size }

// Stream returns the sequential view. Nil for seekable inputs.
func (in *Input) Stream() io.Reader { return in.stream }

// Close releases everything Open acquired. Standard input is left open.
func (in *Input) Close() error {
	var errs []error

	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	in.closers = nil

	return errors.Join(errs...)
}

func sniffAt(r io.ReaderAt, size int64) Compression {
	head := make([]byte, min(int64(magicLen), size))

	n, _ := r.ReadAt(head, 0)

	return sniff(head[:n])
}

// sniffReader peeks into a stream without losing the bytes it read.
func sniffReader(r io.Reader) (Compression, io.Reader) {
	head := make([]byte, magicLen)

	n, _ := io.ReadFull(r, head)
	head = head[:n]

	return sniff(head), io.MultiReader(bytes.NewReader(head), r)
}
