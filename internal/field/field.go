// Package field extracts the numeric key from a delimited record.
package field

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// DefaultDelimiter separates fields in JTL CSV output.
const DefaultDelimiter = ','

var (
	// ErrFieldMissing is returned when a line has fewer fields than the
	// configured index requires.
	ErrFieldMissing = errors.New("line does not contain the required field")
	// ErrFieldNotNumeric is returned when the field is not a base-10
	// non-negative integer.
	ErrFieldNotNumeric = errors.New("field is not a non-negative integer")
)

// Extractor pulls field Index out of a line split on Delimiter.
type Extractor struct {
	Delimiter byte
	Index     int
}

// NewExtractor creates an Extractor. A negative index is rejected.
func NewExtractor(delimiter byte, index int) (Extractor, error) {
	if index < 0 {
		return Extractor{}, fmt.Errorf("field index must be >= 0, got %d", index)
	}

	return Extractor{Delimiter: delimiter, Index: index}, nil
}

// Extract returns the key held by the configured field of line. The line
// must not include its terminator.
func (e Extractor) Extract(line []byte) (uint64, error) {
	rest := line

	for i := 0; i < e.Index; i++ {
		cut := bytes.IndexByte(rest, e.Delimiter)
		if cut < 0 {
			return 0, fmt.Errorf("%w: want field %d, line has %d",
				ErrFieldMissing, e.Index, i+1)
		}

		rest = rest[cut+1:]
	}

	if cut := bytes.IndexByte(rest, e.Delimiter); cut >= 0 {
		rest = rest[:cut]
	}

	key, err := parseKey(rest)
	if err != nil {
		return 0, err
	}

	return key, nil
}

// parseKey accepts only ASCII digits. strconv.ParseUint already refuses
// signs and whitespace; the fast path avoids the string conversion for
// the common short field.
func parseKey(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty field", ErrFieldNotNumeric)
	}

	if len(b) < 20 {
		var v uint64

		for _, c := range b {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: %q", ErrFieldNotNumeric, b)
			}

			v = v*10 + uint64(c-'0')
		}

		return v, nil
	}

	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrFieldNotNumeric, b)
	}

	return v, nil
}
