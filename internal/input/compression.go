package input

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names a stream encoding.
type Compression string

// Supported encodings.
const (
	CompressionAuto   Compression = "auto"
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
	CompressionSnappy Compression = "snappy"
)

var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicSnappy = []byte("\xff\x06\x00\x00sNaPpY")
)

// magicLen is the longest magic prefix.
const magicLen = 10

// ParseCompression validates a configured encoding. Empty means auto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionAuto, nil
	case CompressionAuto, CompressionNone, CompressionGzip, CompressionZstd, CompressionSnappy:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported compression: %s", s)
	}
}

func sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicSnappy):
		return CompressionSnappy
	default:
		return CompressionNone
	}
}

// decompress wraps r with the decoder for comp. The returned closer, if
// any, releases decoder resources and does not close r.
func decompress(r io.Reader, comp Compression) (io.Reader, io.Closer, error) {
	if comp == CompressionAuto {
		comp, r = sniffReader(r)
	}

	switch comp {
	case CompressionNone:
		return r, nil, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}

		return zr, zr, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
		}

		rc := zr.IOReadCloser()

		return rc, rc, nil
	case CompressionSnappy:
		return snappy.NewReader(r), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression: %s", comp)
	}
}
