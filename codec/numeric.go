package codec

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxNumberWidth is the widest numeric field the codec accepts.
const MaxNumberWidth = 18

// highestLeadChar is the last printable ASCII character usable as an overflow digit.
const highestLeadChar = 0x7E

var (
	// ErrInvalidWidth indicates a field width outside [1, MaxNumberWidth].
	ErrInvalidWidth = errors.New("codec: invalid numeric width")

	// ErrNegativeNumber indicates an attempt to encode a negative value.
	ErrNegativeNumber = errors.New("codec: negative number")

	// ErrNumberOverflow indicates that the value does not fit in the field,
	// even with an overflowed leading character.
	ErrNumberOverflow = errors.New("codec: number does not fit in field")

	// ErrInvalidNumber indicates text that is not a valid numeric field.
	ErrInvalidNumber = errors.New("codec: invalid numeric field")
)

var pow10 = func() [MaxNumberWidth]int64 {
	var p [MaxNumberWidth]int64
	p[0] = 1
	for i := 1; i < MaxNumberWidth; i++ {
		p[i] = p[i-1] * 10
	}

	return p
}()

// EncodeNumber renders value as exactly width characters.
func EncodeNumber(value int64, width int) (string, error) {
	if width < 1 || width > MaxNumberWidth {
		return "", fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	if value < 0 {
		return "", fmt.Errorf("%w: %d", ErrNegativeNumber, value)
	}

	scale := pow10[width-1]
	lead := value / scale
	if lead > highestLeadChar-'0' {
		return "", fmt.Errorf("%w: %d in %d characters", ErrNumberOverflow, value, width)
	}

	buf := make([]byte, width)
	buf[0] = byte('0' + lead)

	rest := value % scale
	for i := width - 1; i >= 1; i-- {
		buf[i] = byte('0' + rest%10)
		rest /= 10
	}

	return string(buf), nil
}

// MustEncodeNumber is like EncodeNumber but panics on error. It is meant for
// values whose range is fixed by the caller.
func MustEncodeNumber(value int64, width int) string {
	s, err := EncodeNumber(value, width)
	if err != nil {
		panic(err)
	}

	return s
}

// DecodeNumber parses a numeric field produced by EncodeNumber.
func DecodeNumber(text string) (int64, error) {
	if len(text) == 0 || len(text) > MaxNumberWidth {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}

	if isDigits(text) {
		return strconv.ParseInt(text, 10, 64)
	}

	lead := int64(text[0]) - '0'
	if lead < 0 || text[0] > highestLeadChar {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}

	var rest int64
	if len(text) > 1 {
		if !isDigits(text[1:]) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
		}

		var err error
		rest, err = strconv.ParseInt(text[1:], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidNumber, text, err)
		}
	}

	return lead*pow10[len(text)-1] + rest, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return len(s) > 0
}
