package synel

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-synel/codec"
)

// NotificationType is the kind of a terminal-initiated frame.
type NotificationType int

const (
	// NotificationData is a data record pushed by the terminal. It is answered with Acknowledge.
	NotificationData NotificationType = iota + 1
	// NotificationQuery is a question to the host, for example an access check. It is answered with Reply.
	NotificationQuery
)

func (t NotificationType) String() string {
	switch t {
	case NotificationData:
		return "data"
	case NotificationQuery:
		return "query"
	default:
		return fmt.Sprintf("NotificationType(%d)", int(t))
	}
}

func notificationTypeOf(cmd ResponseCommand) (NotificationType, bool) {
	switch cmd {
	case RspDataRecord:
		return NotificationData, true
	case RspQueryForHost:
		return NotificationQuery, true
	default:
		return 0, false
	}
}

// Query reply layout, data part of a 'Q' frame:
//
//	<'A' allowed | 'N' denied><code:2><message:16>
const (
	replyAllowed   = 'A'
	replyDenied    = 'N'
	replyCodeWidth = 2
)

// PushNotification is a data record or host query received by a Listener.
type PushNotification struct {
	Type       NotificationType
	TerminalID int
	Data       string
	Response   *Response
	RemoteAddr string
	ReceivedAt time.Time

	sess *session
}

// Acknowledge confirms a data notification so the terminal drops the record.
func (n *PushNotification) Acknowledge(ctx context.Context) error {
	if n.Type != NotificationData {
		return fmt.Errorf("%w: acknowledge on %s", ErrNotificationType, n.Type)
	}

	return n.sess.send(ctx, CmdAcknowledgeLastRecord, n.TerminalID, "")
}

// Reply answers a query notification. message is fitted to the display width
// with the given alignment.
func (n *PushNotification) Reply(ctx context.Context, allowed bool, code int, message string, align Alignment) error {
	if n.Type != NotificationQuery {
		return fmt.Errorf("%w: reply on %s", ErrNotificationType, n.Type)
	}

	codeField, err := codec.EncodeNumber(int64(code), replyCodeWidth)
	if err != nil {
		return fmt.Errorf("synel: reply code: %w", err)
	}

	flag := byte(replyDenied)
	if allowed {
		flag = replyAllowed
	}

	return n.sess.send(ctx, CmdQueryReply, n.TerminalID, string(flag)+codeField+AlignText(message, DisplayWidth, align))
}
