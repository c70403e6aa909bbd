package synel

import (
	"fmt"
	"strings"
)

// DisplayWidth is the number of characters on a terminal display line.
const DisplayWidth = 16

// Alignment positions text on a terminal display line.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

func (a Alignment) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return fmt.Sprintf("Alignment(%d)", int(a))
	}
}

// ParseAlignment parses "left", "center" or "right". An empty string is left.
func ParseAlignment(s string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return AlignLeft, nil
	case "center", "centre":
		return AlignCenter, nil
	case "right":
		return AlignRight, nil
	default:
		return AlignLeft, fmt.Errorf("synel: unknown alignment %q", s)
	}
}

// AlignText truncates text to width characters and pads it with spaces
// according to a. Centered text puts the odd padding space on the right.
func AlignText(text string, width int, a Alignment) string {
	if len(text) >= width {
		return text[:width]
	}

	pad := width - len(text)

	switch a {
	case AlignRight:
		return strings.Repeat(" ", pad) + text
	case AlignCenter:
		left := pad / 2
		return strings.Repeat(" ", left) + text + strings.Repeat(" ", pad-left)
	default:
		return text + strings.Repeat(" ", pad)
	}
}
