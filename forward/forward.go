// Package forward publishes terminal push notifications to NATS.
//
// Data records are published on "<prefix>.data.<terminal>" and acknowledged
// to the terminal once the publish succeeded, so a record that could not be
// handed to NATS stays in the terminal buffer and is pushed again. Host
// queries are sent as NATS requests on "<prefix>.query.<terminal>"; the
// responder's QueryAnswer is relayed to the terminal display.
package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arloliu/go-synel/logger"
	"github.com/arloliu/go-synel/synel"
	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "synel.push"
	DefaultQueryTimeout  = 2 * time.Second

	// DefaultDeniedMessage is shown when no responder answered a query.
	DefaultDeniedMessage = "HOST UNAVAILABLE"
)

// Publisher is the subset of *nats.Conn used by the forwarder.
type Publisher interface {
	Publish(subj string, data []byte) error
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

var _ Publisher = (*nats.Conn)(nil)

// Event is the JSON body published for every notification.
type Event struct {
	Type       string    `json:"type"`
	TerminalID int       `json:"terminal_id"`
	Data       string    `json:"data"`
	RemoteAddr string    `json:"remote_addr"`
	ReceivedAt time.Time `json:"received_at"`
}

// QueryAnswer is the JSON body a responder returns for a query.
type QueryAnswer struct {
	Allowed bool   `json:"allowed"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Align   string `json:"align,omitempty"`
}

// Forwarder relays push notifications to NATS. Its Handle method is a synel.Handler.
type Forwarder struct {
	pub           Publisher
	prefix        string
	queryTimeout  time.Duration
	deniedMessage string
	autoAck       bool
	logger        logger.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithSubjectPrefix sets the subject prefix. The default is DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(f *Forwarder) {
		if prefix != "" {
			f.prefix = prefix
		}
	}
}

// WithQueryTimeout bounds the wait for a query responder.
func WithQueryTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.queryTimeout = d
		}
	}
}

// WithDeniedMessage sets the display text used when a query gets no answer.
func WithDeniedMessage(msg string) Option {
	return func(f *Forwarder) { f.deniedMessage = msg }
}

// WithAutoAck controls whether data records are acknowledged after publishing. It is on by default.
func WithAutoAck(on bool) Option {
	return func(f *Forwarder) { f.autoAck = on }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Forwarder) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Forwarder publishing through pub.
func New(pub Publisher, opts ...Option) *Forwarder {
	f := &Forwarder{
		pub:           pub,
		prefix:        DefaultSubjectPrefix,
		queryTimeout:  DefaultQueryTimeout,
		deniedMessage: DefaultDeniedMessage,
		autoAck:       true,
		logger:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Subject returns the subject of notifications of type typ from terminalID.
func (f *Forwarder) Subject(typ synel.NotificationType, terminalID int) string {
	return fmt.Sprintf("%s.%s.%d", f.prefix, typ, terminalID)
}

// Handle forwards n. It is meant to be passed to synel.NewListener.
func (f *Forwarder) Handle(ctx context.Context, n *synel.PushNotification) {
	l := f.logger.With("terminal", n.TerminalID, "address", n.RemoteAddr, "type", n.Type.String())

	body, err := json.Marshal(Event{
		Type:       n.Type.String(),
		TerminalID: n.TerminalID,
		Data:       n.Data,
		RemoteAddr: n.RemoteAddr,
		ReceivedAt: n.ReceivedAt,
	})
	if err != nil {
		l.Error("encode push event", "error", err)
		return
	}

	switch n.Type {
	case synel.NotificationData:
		f.forwardData(ctx, l, n, body)
	case synel.NotificationQuery:
		f.forwardQuery(ctx, l, n, body)
	}
}

func (f *Forwarder) forwardData(ctx context.Context, l logger.Logger, n *synel.PushNotification, body []byte) {
	subject := f.Subject(n.Type, n.TerminalID)
	if err := f.pub.Publish(subject, body); err != nil {
		l.Error("publish data record, leaving it unacknowledged", "subject", subject, "error", err)
		return
	}

	l.Debug("data record published", "subject", subject)

	if !f.autoAck {
		return
	}

	if err := n.Acknowledge(ctx); err != nil {
		l.Warn("acknowledge data record", "error", err)
	}
}

func (f *Forwarder) forwardQuery(ctx context.Context, l logger.Logger, n *synel.PushNotification, body []byte) {
	subject := f.Subject(n.Type, n.TerminalID)
	answer := QueryAnswer{Allowed: false, Message: f.deniedMessage}

	reqCtx, cancel := context.WithTimeout(ctx, f.queryTimeout)
	defer cancel()

	msg, err := f.pub.RequestWithContext(reqCtx, subject, body)
	switch {
	case err != nil:
		l.Warn("query request failed, denying", "subject", subject, "error", err)
	default:
		var a QueryAnswer
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			l.Warn("invalid query answer, denying", "subject", subject, "error", err)
			break
		}
		answer = a
	}

	align, err := synel.ParseAlignment(answer.Align)
	if err != nil {
		l.Warn("invalid query answer alignment", "align", answer.Align)
	}

	if err := n.Reply(ctx, answer.Allowed, answer.Code, answer.Message, align); err != nil {
		l.Warn("reply to query", "error", err)
	}
}
