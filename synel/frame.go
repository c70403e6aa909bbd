package synel

import (
	"fmt"
	"io"

	"github.com/arloliu/go-synel/crc"
)

// AnyTerminal disables the terminal id check of ParseFrame.
const AnyTerminal = -1

// EncodeTerminalID maps a terminal id 0..31 to its wire character.
// Ids 0..15 map to '0'..'?' and ids 16..31 to 'A'..'P'; '@' is never used.
func EncodeTerminalID(id int) (byte, error) {
	switch {
	case id >= 0 && id < 16:
		return byte('0' + id), nil
	case id >= 16 && id <= MaxTerminalID:
		return byte('A' + id - 16), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidTerminalID, id)
	}
}

// DecodeTerminalID is the inverse of EncodeTerminalID. It rejects characters
// below '0', above 'P', and '@'.
func DecodeTerminalID(c byte) (int, error) {
	switch {
	case c < '0' || c > 'P' || c == '@':
		return 0, fmt.Errorf("%w: character 0x%02x", ErrInvalidTerminalID, c)
	case c < '@':
		return int(c - '0'), nil
	default:
		return int(c-'0') - 1, nil
	}
}

// BuildFrame returns the wire text of a request frame.
//
// data must be ASCII and at most MaxDataSize bytes long. Fingerprint frames
// are exempt from the size limit because their blocks are sized by the caller.
func BuildFrame(cmd Command, terminalID int, data string) (string, error) {
	if len(data) > MaxDataSize && cmd != CmdFingerprint {
		return "", fmt.Errorf("%w: %d bytes for %s, max %d", ErrDataTooLong, len(data), cmd, MaxDataSize)
	}

	b, err := appendFrame(nil, byte(cmd), terminalID, data)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// BuildResponseFrame returns the wire text of a terminal-side frame. It is
// what a terminal sends, and is used to emulate terminals.
func BuildResponseFrame(cmd ResponseCommand, terminalID int, data string) (string, error) {
	if len(data) > MaxDataSize {
		return "", fmt.Errorf("%w: %d bytes for %s, max %d", ErrDataTooLong, len(data), cmd, MaxDataSize)
	}

	b, err := appendFrame(nil, byte(cmd), terminalID, data)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func appendFrame(dst []byte, cmd byte, terminalID int, data string) ([]byte, error) {
	tid, err := EncodeTerminalID(terminalID)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(data); i++ {
		if data[i] > 0x7f {
			return nil, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrNonASCII, data[i], i)
		}
	}

	start := len(dst)
	dst = append(dst, cmd, tid)
	dst = append(dst, data...)
	dst = crc.Append(dst, dst[start:])
	dst = append(dst, EOT)

	return dst, nil
}

// writeFrame writes one frame in a single call.
func writeFrame(w io.Writer, cmd Command, terminalID int, data string) error {
	frame, err := BuildFrame(cmd, terminalID, data)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, frame)

	return err
}

// Response is a decoded terminal frame.
type Response struct {
	// Raw is the complete frame text including the checksum and EOT.
	Raw string
	// Command is the response command.
	Command ResponseCommand
	// TerminalID is the id of the sending terminal.
	TerminalID int
	// Data is the payload between the header and the checksum; empty when the frame carries none.
	Data string
}

// HasData reports whether the frame carried a payload.
func (r *Response) HasData() bool { return r.Data != "" }

// Equal reports whether r and other were decoded from the same frame text.
func (r *Response) Equal(other *Response) bool {
	if r == nil || other == nil {
		return r == other
	}

	return r.Raw == other.Raw
}

func (r *Response) String() string {
	return fmt.Sprintf("%s(terminal=%d, data=%q)", r.Command, r.TerminalID, r.Data)
}

// ParseFrame decodes raw, one complete frame ending with EOT.
//
// It fails with ErrInvalidCRC when the length is outside
// [MinPacketSize, MaxPacketSize] or the checksum does not match, with
// ErrUnknownCommand for an unknown response command, and with
// ErrTerminalMismatch when expectedTerminalID is not AnyTerminal and differs
// from the frame's terminal id.
func ParseFrame(raw string, expectedTerminalID int) (*Response, error) {
	n := len(raw)
	if n < MinPacketSize || n > MaxPacketSize {
		return nil, fmt.Errorf("%w: frame length %d out of range [%d, %d]", ErrInvalidCRC, n, MinPacketSize, MaxPacketSize)
	}

	if raw[n-1] != EOT {
		return nil, fmt.Errorf("%w: missing terminator", ErrMalformed)
	}

	body, sum := raw[:n-trailerSize], raw[n-trailerSize:n-1]
	if !crc.VerifyString(body, sum) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrInvalidCRC, sum, crc.String(body))
	}

	cmd := ResponseCommand(raw[0])
	if !cmd.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownCommand, raw[0])
	}

	tid, err := DecodeTerminalID(raw[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if expectedTerminalID != AnyTerminal && tid != expectedTerminalID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrTerminalMismatch, tid, expectedTerminalID)
	}

	return &Response{
		Raw:        raw,
		Command:    cmd,
		TerminalID: tid,
		Data:       body[headerSize:],
	}, nil
}
