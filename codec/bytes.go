package codec

import (
	"errors"
	"fmt"
)

const (
	highNibbleBase = 0x60
	lowNibbleBase  = 0x30
)

var (
	// ErrOddLength indicates nibble-encoded input with an odd number of characters.
	ErrOddLength = errors.New("codec: odd length nibble data")

	// ErrInvalidNibble indicates a character outside the nibble ranges.
	ErrInvalidNibble = errors.New("codec: invalid nibble character")
)

// EncodeBytes nibble-encodes src. A nil src yields nil, an empty src yields an
// empty, non-nil slice.
func EncodeBytes(src []byte) []byte {
	if src == nil {
		return nil
	}

	dst := make([]byte, len(src)*2)
	for i, b := range src {
		dst[i*2] = highNibbleBase + b>>4
		dst[i*2+1] = lowNibbleBase + b&0x0F
	}

	return dst
}

// EncodeBytesToString is EncodeBytes for callers building frame text.
func EncodeBytesToString(src []byte) string {
	return string(EncodeBytes(src))
}

// DecodeBytes reverses EncodeBytes. A nil src yields nil, an empty src yields
// an empty, non-nil slice.
func DecodeBytes(src []byte) ([]byte, error) {
	if src == nil {
		return nil, nil
	}
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("%w: %d characters", ErrOddLength, len(src))
	}

	dst := make([]byte, len(src)/2)
	for i := range dst {
		hi, lo := src[i*2], src[i*2+1]
		if hi < highNibbleBase || hi > highNibbleBase+0x0F {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrInvalidNibble, hi, i*2)
		}
		if lo < lowNibbleBase || lo > lowNibbleBase+0x0F {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrInvalidNibble, lo, i*2+1)
		}
		dst[i] = (hi-highNibbleBase)<<4 | (lo - lowNibbleBase)
	}

	return dst, nil
}

// DecodeBytesString is DecodeBytes for frame text.
func DecodeBytesString(src string) ([]byte, error) {
	return DecodeBytes([]byte(src))
}
