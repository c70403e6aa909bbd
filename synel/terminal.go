package synel

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-synel/codec"
)

// Terminal addresses one terminal behind a client's bridge.
type Terminal struct {
	client   *Client
	id       int
	attempts int
	timeout  time.Duration
	loc      *time.Location
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithRequestAttempts overrides the client's attempts for requests to this terminal.
func WithRequestAttempts(n int) TerminalOption {
	return func(t *Terminal) {
		if n > 0 {
			t.attempts = n
		}
	}
}

// WithRequestTimeout overrides the client's timeout for requests to this terminal.
func WithRequestTimeout(d time.Duration) TerminalOption {
	return func(t *Terminal) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClockLocation sets the time zone of the terminal clock. The default is time.Local.
func WithClockLocation(loc *time.Location) TerminalOption {
	return func(t *Terminal) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// Terminal returns the terminal with the given id on the client's bridge.
func (c *Client) Terminal(id int, opts ...TerminalOption) (*Terminal, error) {
	if id < 0 || id > MaxTerminalID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTerminalID, id)
	}

	t := &Terminal{client: c, id: id, loc: time.Local}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// ID returns the terminal id.
func (t *Terminal) ID() int { return t.id }

// exchange runs one request against the terminal. A busy answer is accepted
// whenever valid responses are given and is returned as ErrTerminalBusy.
func (t *Terminal) exchange(ctx context.Context, cmd Command, data string, valid ...string) (*Response, error) {
	if len(valid) > 0 {
		valid = append(valid, string(RspBusy))
	}

	resp, err := t.client.Exchange(ctx, Request{
		Command:        cmd,
		TerminalID:     t.id,
		Data:           data,
		ValidResponses: valid,
		Attempts:       t.attempts,
		Timeout:        t.timeout,
	})
	if err != nil {
		return nil, err
	}

	if resp.Command == RspBusy {
		return nil, fmt.Errorf("%w: terminal %d, %s", ErrTerminalBusy, t.id, cmd)
	}

	return resp, nil
}

// command runs a request whose answer is ACK or NACK.
func (t *Terminal) command(ctx context.Context, cmd Command, data string) error {
	resp, err := t.exchange(ctx, cmd, data, string(ACK), string(NACK))
	if err != nil {
		return err
	}

	if resp.Command == RspNotAcknowledged {
		return fmt.Errorf("%w: terminal %d, %s", ErrNotAcknowledged, t.id, cmd)
	}

	return nil
}

// GetStatus reads the terminal status.
func (t *Terminal) GetStatus(ctx context.Context) (*TerminalStatus, error) {
	resp, err := t.exchange(ctx, CmdGetStatus, "", string(RspTerminalStatus))
	if err != nil {
		return nil, err
	}

	return ParseTerminalStatus(resp.Data, t.loc)
}

// GetData returns the oldest undelivered record, or nil when the buffer is empty.
func (t *Terminal) GetData(ctx context.Context) (*DataRecord, error) {
	rec, ok, err := FetchRecord(ctx, t, ParseDataRecord)
	if err != nil || !ok {
		return nil, err
	}

	return &rec, nil
}

// GetFullDataBlock returns the next block of records, or nil when the buffer is empty.
func (t *Terminal) GetFullDataBlock(ctx context.Context) (*DataRecord, error) {
	resp, err := t.exchange(ctx, CmdGetFullDataBlock, "", string(RspDataRecord), string(RspNoData))
	if err != nil {
		return nil, err
	}

	if resp.Command == RspNoData {
		return nil, nil
	}

	return &DataRecord{TerminalID: resp.TerminalID, Data: resp.Data}, nil
}

// AcknowledgeLastRecord removes the last delivered record from the terminal buffer.
func (t *Terminal) AcknowledgeLastRecord(ctx context.Context) error {
	return t.command(ctx, CmdAcknowledgeLastRecord, "")
}

// ClearBuffer discards all records in the terminal buffer.
func (t *Terminal) ClearBuffer(ctx context.Context) error {
	return t.command(ctx, CmdClearBuffer, "")
}

// ResetBuffer marks all records in the terminal buffer as undelivered.
func (t *Terminal) ResetBuffer(ctx context.Context) error {
	return t.command(ctx, CmdResetBuffer, "")
}

// Halt stops the terminal application.
func (t *Terminal) Halt(ctx context.Context) error {
	return t.command(ctx, CmdHalt, "")
}

// Run starts the terminal application.
func (t *Terminal) Run(ctx context.Context) error {
	return t.command(ctx, CmdRun, "")
}

// ResetLine clears the terminal's communication state after a backlog.
func (t *Terminal) ResetLine(ctx context.Context) error {
	return t.command(ctx, CmdResetLine, "")
}

// DisplayMessage shows text on the terminal display for the given number of seconds.
// text is cut to DisplayWidth characters.
func (t *Terminal) DisplayMessage(ctx context.Context, seconds int, text string, align Alignment) error {
	secs, err := codec.EncodeNumber(int64(seconds), 2)
	if err != nil {
		return fmt.Errorf("synel: display seconds: %w", err)
	}

	return t.command(ctx, CmdDisplayMessage, secs+AlignText(text, DisplayWidth, align))
}

// SendSystemCommand sends a system command without waiting for an answer.
func (t *Terminal) SendSystemCommand(ctx context.Context, data string) error {
	return t.client.SendOnly(ctx, CmdSystemCommands, t.id, data)
}
