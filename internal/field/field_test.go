package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		index int
		line  string
		want  uint64
		err   error
	}{
		{name: "first field", index: 0, line: "1500,200,label", want: 1500},
		{name: "middle field", index: 1, line: "1500,200,label", want: 200},
		{name: "last field", index: 2, line: "a,b,77", want: 77},
		{name: "single field", index: 0, line: "42", want: 42},
		{name: "zero", index: 0, line: "0", want: 0},
		{name: "leading zeros", index: 0, line: "007", want: 7},
		{name: "max uint64", index: 0, line: "18446744073709551615", want: 18446744073709551615},
		{name: "too few fields", index: 1, line: "1", err: ErrFieldMissing},
		{name: "far index", index: 5, line: "1,2,3", err: ErrFieldMissing},
		{name: "empty field", index: 1, line: "1,,3", err: ErrFieldNotNumeric},
		{name: "empty line", index: 0, line: "", err: ErrFieldNotNumeric},
		{name: "negative", index: 0, line: "-5", err: ErrFieldNotNumeric},
		{name: "plus sign", index: 0, line: "+5", err: ErrFieldNotNumeric},
		{name: "leading space", index: 0, line: " 5", err: ErrFieldNotNumeric},
		{name: "trailing text", index: 0, line: "5ms,x", err: ErrFieldNotNumeric},
		{name: "carriage return", index: 1, line: "1,100\r", err: ErrFieldNotNumeric},
		{name: "decimal", index: 0, line: "1.5", err: ErrFieldNotNumeric},
		{name: "overflow", index: 0, line: "18446744073709551616", err: ErrFieldNotNumeric},
		{name: "long digits overflow", index: 0, line: "99999999999999999999999", err: ErrFieldNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := NewExtractor(DefaultDelimiter, tt.index)
			require.NoError(t, err)

			got, err := ex.Extract([]byte(tt.line))
			if tt.err != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_CustomDelimiter(t *testing.T) {
	ex, err := NewExtractor('\t', 1)
	require.NoError(t, err)

	got, err := ex.Extract([]byte("x\t321\ty"))
	require.NoError(t, err)
	assert.Equal(t, uint64(321), got)

	_, err = ex.Extract([]byte("x,321,y"))
	assert.ErrorIs(t, err, ErrFieldMissing)
}

func TestNewExtractor_NegativeIndex(t *testing.T) {
	_, err := NewExtractor(DefaultDelimiter, -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field index must be >= 0")
}
