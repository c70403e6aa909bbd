package synel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/arloliu/go-synel/logger"
)

const (
	// pollTimeout bounds a single blocking read so cancellation is noticed promptly.
	pollTimeout = 50 * time.Millisecond

	// readChunkSize is the size of one read from the transport.
	readChunkSize = 512

	// maxPendingBytes is how much unterminated input is kept before it is discarded.
	maxPendingBytes = 4 * MaxPacketSize
)

// ReceivedMessage is the result of decoding one frame from the stream.
type ReceivedMessage struct {
	// Response is the decoded frame, nil when Err is set.
	Response *Response
	// Err is the decode error of the frame.
	Err error
	// Raw is the frame text as received.
	Raw string
	// IsLast is false when more complete frames were already buffered behind this one.
	IsLast bool
}

// receiver reassembles frames from a byte stream.
//
// receiver is NOT goroutine-safe. A connection has exactly one reader.
type receiver struct {
	conn   net.Conn
	logger logger.Logger

	pending []byte
	chunk   []byte

	// reportInvalidCRC makes checksum failures visible to the caller instead
	// of dropping the frame. The exchange engine needs them to re-request.
	reportInvalidCRC bool

	onFrame func()
}

func newReceiver(conn net.Conn, l logger.Logger, reportInvalidCRC bool) *receiver {
	return &receiver{
		conn:             conn,
		logger:           l,
		pending:          make([]byte, 0, MaxPacketSize),
		chunk:            make([]byte, readChunkSize),
		reportInvalidCRC: reportInvalidCRC,
	}
}

// Next returns the next frame from the stream.
//
// Frames already buffered are returned without reading. Otherwise Next reads
// until a terminator arrives, ctx ends, or the transport fails. A read chunk
// starting with a NUL byte is the bridge signalling a disconnect.
//
// The returned error is ctx.Err() on cancellation and wraps ErrDisconnected on
// transport failure. Decode failures are carried in ReceivedMessage.Err.
func (r *receiver) Next(ctx context.Context) (*ReceivedMessage, error) {
	for {
		if msg, ok := r.scan(); ok {
			return msg, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.read(ctx)
		if n > 0 {
			if r.chunk[0] == 0 {
				return nil, fmt.Errorf("%w: peer sent disconnect marker", ErrDisconnected)
			}

			r.pending = append(r.pending, r.chunk[:n]...)
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}

			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: connection closed by peer", ErrDisconnected)
			}

			return nil, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
	}
}

func (r *receiver) read(ctx context.Context) (int, error) {
	deadline := time.Now().Add(pollTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := r.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	return r.conn.Read(r.chunk)
}

// scan slices complete frames off the pending buffer until one should be
// returned to the caller.
func (r *receiver) scan() (*ReceivedMessage, bool) {
	for {
		idx := bytes.IndexByte(r.pending, EOT)
		if idx < 0 {
			if len(r.pending) > maxPendingBytes {
				raw := string(r.pending)
				r.pending = r.pending[:0]

				return &ReceivedMessage{
					Err:    fmt.Errorf("%w: %d bytes without terminator", ErrMalformed, len(raw)),
					Raw:    raw,
					IsLast: true,
				}, true
			}

			return nil, false
		}

		raw := string(r.pending[:idx+1])
		rest := copy(r.pending, r.pending[idx+1:])
		r.pending = r.pending[:rest]

		if r.onFrame != nil {
			r.onFrame()
		}

		msg := &ReceivedMessage{
			Raw:    raw,
			IsLast: bytes.IndexByte(r.pending, EOT) < 0,
		}

		msg.Response, msg.Err = ParseFrame(raw, AnyTerminal)
		if errors.Is(msg.Err, ErrInvalidCRC) && !r.reportInvalidCRC {
			r.logger.Debug("drop frame with invalid crc", "raw", raw, "error", msg.Err)
			continue
		}

		return msg, true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
