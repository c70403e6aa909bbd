package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeNumber_Vectors(t *testing.T) {
	tests := []struct {
		value int64
		width int
		want  string
	}{
		{0, 1, "0"},
		{9, 1, "9"},
		{10, 1, ":"},
		{78, 1, "~"},
		{5, 3, "005"},
		{99, 2, "99"},
		{100, 2, ":0"},
		{200, 2, "D0"},
		{1000, 3, ":00"},
		{7899, 3, "~99"},
		{123456, 6, "123456"},
	}

	for _, tt := range tests {
		got, err := EncodeNumber(tt.value, tt.width)
		require.NoError(t, err, "value=%d width=%d", tt.value, tt.width)
		assert.Equal(t, tt.want, got, "value=%d width=%d", tt.value, tt.width)
		assert.Len(t, got, tt.width)
	}
}

func TestEncodeNumber_Errors(t *testing.T) {
	_, err := EncodeNumber(1, 0)
	require.ErrorIs(t, err, ErrInvalidWidth)

	_, err = EncodeNumber(1, MaxNumberWidth+1)
	require.ErrorIs(t, err, ErrInvalidWidth)

	_, err = EncodeNumber(-1, 2)
	require.ErrorIs(t, err, ErrNegativeNumber)

	// '~' is the last usable leading character
	_, err = EncodeNumber(79, 1)
	require.ErrorIs(t, err, ErrNumberOverflow)

	_, err = EncodeNumber(7900, 3)
	require.ErrorIs(t, err, ErrNumberOverflow)

	assert.Panics(t, func() { MustEncodeNumber(-5, 1) })
}

func TestDecodeNumber_Vectors(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"0", 0},
		{":", 10},
		{"~", 78},
		{"007", 7},
		{":0", 100},
		{"D0", 200},
		{":00", 1000},
		{"~99", 7899},
	}

	for _, tt := range tests {
		got, err := DecodeNumber(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestDecodeNumber_Errors(t *testing.T) {
	for _, text := range []string{"", "+1", "-1", " 1", "A:", "::", "1a"} {
		_, err := DecodeNumber(text)
		assert.ErrorIs(t, err, ErrInvalidNumber, "text=%q", text)
	}
}

func TestNumber_RoundTrip(t *testing.T) {
	for width := 1; width <= 3; width++ {
		limit := int64(79)
		for i := 1; i < width; i++ {
			limit *= 10
		}

		for v := int64(0); v < limit; v++ {
			enc, err := EncodeNumber(v, width)
			require.NoError(t, err)

			dec, err := DecodeNumber(enc)
			require.NoError(t, err)
			require.Equal(t, v, dec, "width=%d encoded=%q", width, enc)
		}

		_, err := EncodeNumber(limit, width)
		require.ErrorIs(t, err, ErrNumberOverflow, "width=%d", width)
	}
}
