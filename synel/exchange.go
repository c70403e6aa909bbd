package synel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Request describes one request/response exchange.
type Request struct {
	// Command is the request command.
	Command Command
	// TerminalID addresses the terminal, 0..31.
	TerminalID int
	// Data is the request payload.
	Data string
	// ValidResponses lists the accepted response prefixes without the terminal
	// id, for example "s" or string(ACK). The terminal id character is
	// inserted after the first character before matching. Empty accepts any
	// response from the terminal.
	ValidResponses []string
	// ExpectQuery accepts host query frames ('q') as a response.
	ExpectQuery bool
	// Attempts is the number of sends when no response arrives. Zero uses the client default.
	Attempts int
	// Timeout is the wait per attempt. Zero uses the client default.
	Timeout time.Duration
}

// Exchange sends req and waits for the first response that passes its filter.
//
// A send without a matching response within the timeout is repeated until
// the attempts are used up, then ErrTimeout is returned. A response with a
// bad checksum causes an immediate resend, at most MaxCRCRetries times.
// Write failures return ErrDisconnected and decode errors other than bad
// checksums are returned as they are, without retrying.
func (c *Client) Exchange(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.exchange(ctx, req)
	if err != nil {
		c.metrics.incExchangeErrCount()
	}

	return resp, err
}

func (c *Client) exchange(ctx context.Context, req Request) (*Response, error) {
	attempts := req.Attempts
	if attempts <= 0 {
		attempts = c.cfg.attempts
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.timeout
	}

	tid, err := EncodeTerminalID(req.TerminalID)
	if err != nil {
		return nil, err
	}

	frame, err := BuildFrame(req.Command, req.TerminalID, req.Data)
	if err != nil {
		return nil, err
	}

	prefixes := responsePrefixes(req.ValidResponses, tid)

	c.exchMu.Lock()
	defer c.exchMu.Unlock()

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	l := c.logger.With("terminal", req.TerminalID, "command", req.Command.String())

	attempt, crcFailures := 1, 0
	for {
		if err := c.write(ctx, frame, timeout); err != nil {
			return nil, err
		}

		resp, err := c.await(ctx, &req, prefixes, timeout)

		switch KindOf(err) {
		case KindNone:
			return resp, nil

		case KindTimeout:
			if attempt >= attempts {
				return nil, fmt.Errorf("%w: %s after %d attempt(s) of %v", ErrTimeout, req.Command, attempt, timeout)
			}
			attempt++
			c.metrics.incTimeoutRetryCount()
			l.Warn("no response, resending", "attempt", attempt, "attempts", attempts)

		case KindInvalidCRC:
			crcFailures++
			if crcFailures >= MaxCRCRetries {
				return nil, fmt.Errorf("%s: %d invalid responses: %w", req.Command, crcFailures, err)
			}
			c.metrics.incCRCRetryCount()
			l.Debug("invalid crc, resending", "crc_failures", crcFailures, "error", err)

		default:
			return nil, err
		}
	}
}

// await reads frames until one matches req, the timeout elapses or the transport fails.
func (c *Client) await(ctx context.Context, req *Request, prefixes []string, timeout time.Duration) (*Response, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		msg, err := c.recv.Next(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			if errors.Is(err, ErrDisconnected) {
				c.state.ToLost()
			}

			return nil, err
		}

		if msg.Err != nil {
			if errors.Is(msg.Err, ErrTerminalMismatch) {
				c.metrics.incFrameSkipCount()
				continue
			}

			return nil, msg.Err
		}

		if !acceptResponse(msg.Response, req, prefixes) {
			c.metrics.incFrameSkipCount()
			c.logger.Debug("skip frame", "terminal", req.TerminalID, "raw", msg.Raw)

			continue
		}

		return msg.Response, nil
	}
}

func acceptResponse(resp *Response, req *Request, prefixes []string) bool {
	if resp.Command == RspQueryForHost && !req.ExpectQuery {
		return false
	}

	if resp.TerminalID != req.TerminalID {
		return false
	}

	if len(prefixes) == 0 {
		return true
	}

	for _, p := range prefixes {
		if strings.HasPrefix(resp.Raw, p) {
			return true
		}
	}

	return false
}

func responsePrefixes(valid []string, tid byte) []string {
	if len(valid) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(valid))
	for _, v := range valid {
		if v == "" {
			continue
		}
		prefixes = append(prefixes, v[:1]+string(tid)+v[1:])
	}

	return prefixes
}

// SendOnly writes one frame without waiting for a response.
func (c *Client) SendOnly(ctx context.Context, cmd Command, terminalID int, data string) error {
	frame, err := BuildFrame(cmd, terminalID, data)
	if err != nil {
		return err
	}

	c.exchMu.Lock()
	defer c.exchMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return c.write(ctx, frame, c.cfg.timeout)
}

func (c *Client) write(ctx context.Context, frame string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.state.ToLost()
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	if _, err := io.WriteString(c.conn, frame); err != nil {
		c.state.ToLost()
		return fmt.Errorf("%w: write frame: %w", ErrDisconnected, err)
	}

	c.metrics.incFrameSendCount()

	return nil
}
