package synel

import (
	"context"
	"errors"

	"github.com/arloliu/go-synel/codec"
	"github.com/arloliu/go-synel/gatekeeper"
)

// Frame and transport errors.
var (
	// ErrInvalidCRC indicates a frame whose checksum or length is wrong.
	ErrInvalidCRC = errors.New("synel: invalid crc")

	// ErrTimeout indicates that no matching frame arrived within the deadline.
	ErrTimeout = errors.New("synel: timeout waiting for response")

	// ErrDisconnected indicates that the transport was closed by the peer or failed.
	ErrDisconnected = errors.New("synel: disconnected")

	// ErrNotConnected indicates an operation on a client that is not connected.
	ErrNotConnected = errors.New("synel: not connected")

	// ErrTerminalMismatch indicates a frame addressed from another terminal.
	ErrTerminalMismatch = errors.New("synel: terminal id mismatch")

	// ErrUnknownCommand indicates a frame whose command is not a known response.
	ErrUnknownCommand = errors.New("synel: unknown command")

	// ErrMalformed indicates a frame or field that could not be decoded.
	ErrMalformed = errors.New("synel: malformed frame")

	// ErrInvalidTerminalID indicates a terminal id outside [0, 31] or an unmapped id character.
	ErrInvalidTerminalID = errors.New("synel: invalid terminal id")

	// ErrDataTooLong indicates frame data longer than MaxDataSize.
	ErrDataTooLong = errors.New("synel: frame data too long")

	// ErrNonASCII indicates frame data containing bytes above 0x7f.
	ErrNonASCII = errors.New("synel: frame data is not ascii")
)

// Operation errors.
var (
	ErrConnConfigNil      = errors.New("synel: connection config is nil")
	ErrNotAcknowledged    = errors.New("synel: command not acknowledged")
	ErrTerminalBusy       = errors.New("synel: terminal busy")
	ErrUnexpectedResponse = errors.New("synel: unexpected response")
	ErrNotificationType   = errors.New("synel: operation not valid for this notification type")
	ErrListenerRunning    = errors.New("synel: listener already running")
)

// ErrorKind classifies an error for retry decisions.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidCRC
	KindTimeout
	KindDisconnected
	KindNotConnected
	KindTerminalMismatch
	KindUnknownCommand
	KindMalformed
	KindFingerprint
	KindCanceled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidCRC:
		return "invalid_crc"
	case KindTimeout:
		return "timeout"
	case KindDisconnected:
		return "disconnected"
	case KindNotConnected:
		return "not_connected"
	case KindTerminalMismatch:
		return "terminal_mismatch"
	case KindUnknownCommand:
		return "unknown_command"
	case KindMalformed:
		return "malformed"
	case KindFingerprint:
		return "fingerprint"
	case KindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// Transient reports whether errors of this kind are line faults that a retry may clear.
func (k ErrorKind) Transient() bool {
	return k == KindInvalidCRC || k == KindTimeout
}

// KindOf returns the kind of err. The first matching kind wins, so a timeout
// wrapped inside a disconnect is reported as a disconnect.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var fpErr *FingerprintError

	switch {
	case errors.Is(err, ErrDisconnected):
		return KindDisconnected
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrInvalidCRC):
		return KindInvalidCRC
	case errors.Is(err, ErrTimeout), errors.Is(err, gatekeeper.ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTerminalMismatch):
		return KindTerminalMismatch
	case errors.Is(err, ErrUnknownCommand):
		return KindUnknownCommand
	case errors.As(err, &fpErr):
		return KindFingerprint
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrInvalidTerminalID),
		errors.Is(err, codec.ErrInvalidNumber),
		errors.Is(err, codec.ErrOddLength),
		errors.Is(err, codec.ErrInvalidNibble):
		return KindMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOther
	}
}
