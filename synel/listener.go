package synel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arloliu/go-synel/internal/task"
	"github.com/arloliu/go-synel/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// replyWriteTimeout bounds a reply write when the caller's context has no deadline.
const replyWriteTimeout = 5 * time.Second

// Handler receives push notifications. It runs on the connection's goroutine,
// so frames of the same connection are handled one at a time and in order.
type Handler func(ctx context.Context, n *PushNotification)

// SessionInfo describes an open push connection.
type SessionInfo struct {
	ID            uint64    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastFrameAt   time.Time `json:"last_frame_at"`
	Notifications uint64    `json:"notifications"`
}

// Listener accepts terminal-initiated connections and dispatches their
// data records and host queries to a Handler.
type Listener struct {
	cfg     *ListenerConfig
	handler Handler
	logger  logger.Logger

	listen func(ctx context.Context, addr string) (net.Listener, error)

	mu        sync.Mutex // protects ln, taskMgr, done and acceptErr
	ln        net.Listener
	taskMgr   *task.Manager
	done      chan struct{}
	acceptErr error
	running   atomic.Bool

	sessions *xsync.MapOf[uint64, *session]
	nextID   atomic.Uint64

	metrics ListenerMetrics
}

// NewListener creates a listener that hands notifications to handler.
func NewListener(cfg *ListenerConfig, handler Handler) (*Listener, error) {
	if cfg == nil {
		return nil, errors.New("synel: listener config is nil")
	}
	if handler == nil {
		return nil, errors.New("synel: push handler is nil")
	}

	return &Listener{
		cfg:      cfg,
		handler:  handler,
		logger:   cfg.logger,
		listen:   listenTCP,
		sessions: xsync.NewMapOf[uint64, *session](),
	}, nil
}

// Start binds the listening socket and starts accepting in the background.
// The listener stops when ctx ends or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrListenerRunning
	}

	ln, err := l.listen(ctx, l.cfg.Addr())
	if err != nil {
		l.running.Store(false)
		return fmt.Errorf("synel: listen on %s: %w", l.cfg.Addr(), err)
	}

	mgr := task.NewManager(ctx, l.logger)

	done := make(chan struct{})

	l.mu.Lock()
	l.ln = ln
	l.taskMgr = mgr
	l.done = done
	l.acceptErr = nil
	l.mu.Unlock()

	if err := mgr.Start("accept", l.acceptOnce(ln), func() { close(done) }); err != nil {
		_ = ln.Close()
		l.running.Store(false)

		return err
	}

	// unblocks Accept when the context ends
	_ = mgr.Start("accept-closer", func(ctx context.Context) bool {
		<-ctx.Done()
		_ = ln.Close()

		return false
	}, nil)

	l.logger.Info("push listener started", "address", ln.Addr().String(), "idle_timeout", l.cfg.idleTimeout)

	return nil
}

// ListenAndServe runs the listener until ctx ends or accepting fails.
// It returns nil after cancellation and the accept error otherwise.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-l.Done():
		return l.Err()
	}
}

// Done returns a channel that is closed when the listener stops accepting,
// whether by Stop, cancellation or a fatal accept error. It is nil before the
// first Start.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.done
}

// Err returns the accept error that stopped the listener, or nil when it was
// stopped or canceled.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acceptErr
}

// Stop closes the listening socket and all open connections, and waits for
// their goroutines to end.
func (l *Listener) Stop() {
	l.mu.Lock()
	ln, mgr := l.ln, l.taskMgr
	l.mu.Unlock()

	if !l.running.Load() || mgr == nil {
		return
	}

	mgr.Stop()
	_ = ln.Close()
	mgr.Wait()

	l.running.Store(false)
	l.logger.Info("push listener stopped", "address", ln.Addr().String())
}

// Addr returns the bound address, or nil when the listener is not running.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln == nil || !l.running.Load() {
		return nil
	}

	return l.ln.Addr()
}

// Sessions returns the open connections ordered by id.
func (l *Listener) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, l.sessions.Size())
	l.sessions.Range(func(_ uint64, s *session) bool {
		infos = append(infos, s.info())
		return true
	})

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos
}

// Metrics returns the listener metrics.
func (l *Listener) Metrics() *ListenerMetrics {
	return &l.metrics
}

func (l *Listener) acceptOnce(ln net.Listener) task.Func {
	return func(ctx context.Context) bool {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return false
			}

			if isConnReset(err) {
				l.logger.Debug("connection reset during accept", "error", err)
				return true
			}

			l.logger.Error("accept failed, stopping listener", "error", err)
			l.fail(err)

			return false
		}

		l.serve(conn)

		return true
	}
}

func (l *Listener) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.acceptErr = fmt.Errorf("synel: accept: %w", err)
}

func listenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig

	return lc.Listen(ctx, "tcp", addr)
}

func (l *Listener) serve(conn net.Conn) {
	id := l.nextID.Add(1)
	sess := newSession(id, conn, l.logger, &l.metrics)

	l.sessions.Store(id, sess)
	l.metrics.ConnAcceptCount.Add(1)
	l.metrics.ConnActiveGauge.Add(1)
	sess.logger.Debug("push connection accepted")

	l.mu.Lock()
	mgr := l.taskMgr
	l.mu.Unlock()

	err := mgr.Start(fmt.Sprintf("session-%d", id), func(ctx context.Context) bool {
		return l.serveOnce(ctx, sess)
	}, func() {
		_ = sess.conn.Close()
		l.metrics.ConnActiveGauge.Add(-1)
		l.sessions.Delete(id)
		sess.logger.Debug("push connection closed")
	})
	if err != nil {
		_ = conn.Close()
		l.sessions.Delete(id)
		l.metrics.ConnActiveGauge.Add(-1)
	}
}

// serveOnce handles one frame of sess. It returns false to close the connection.
func (l *Listener) serveOnce(ctx context.Context, sess *session) bool {
	idleCtx, cancel := context.WithTimeout(ctx, l.cfg.idleTimeout)
	msg, err := sess.recv.Next(idleCtx)
	cancel()

	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, context.DeadlineExceeded):
			l.metrics.IdleCloseCount.Add(1)
			sess.logger.Debug("push connection idle, closing", "idle_timeout", l.cfg.idleTimeout)
		default:
			sess.logger.Debug("push connection ended", "error", err)
		}

		return false
	}

	sess.touch()

	if !msg.IsLast {
		sess.markBacklog()
	}

	if msg.Err != nil {
		l.metrics.FrameDropCount.Add(1)
		sess.logger.Warn("drop undecodable push frame", "raw", msg.Raw, "error", msg.Err)

		return true
	}

	typ, ok := notificationTypeOf(msg.Response.Command)
	if !ok {
		l.metrics.FrameDropCount.Add(1)
		sess.logger.Debug("drop push frame", "command", msg.Response.Command.String(), "terminal", msg.Response.TerminalID)

		return true
	}

	n := &PushNotification{
		Type:       typ,
		TerminalID: msg.Response.TerminalID,
		Data:       msg.Response.Data,
		Response:   msg.Response,
		RemoteAddr: sess.remoteAddr,
		ReceivedAt: time.Now(),
		sess:       sess,
	}

	l.metrics.NotificationCount.Add(1)
	sess.notifications.Add(1)

	l.mu.Lock()
	mgr := l.taskMgr
	l.mu.Unlock()

	if !mgr.CallWithRecover("push handler", func() { l.handler(ctx, n) }) {
		l.metrics.HandlerPanicCount.Add(1)
		return false
	}

	return true
}

// session is the per-connection state of a push connection.
type session struct {
	id         uint64
	conn       net.Conn
	recv       *receiver
	logger     logger.Logger
	remoteAddr string
	metrics    *ListenerMetrics

	connectedAt   time.Time
	lastFrame     atomic.Int64 // unix nanoseconds, zero before the first frame
	notifications atomic.Uint64

	writeMu        sync.Mutex
	lineNeedsReset bool // guarded by writeMu
}

func newSession(id uint64, conn net.Conn, l logger.Logger, m *ListenerMetrics) *session {
	remote := conn.RemoteAddr().String()
	sl := l.With("session", id, "address", remote)

	return &session{
		id:          id,
		conn:        conn,
		recv:        newReceiver(conn, sl, false),
		logger:      sl,
		remoteAddr:  remote,
		metrics:     m,
		connectedAt: time.Now(),
	}
}

func (s *session) touch() {
	s.lastFrame.Store(time.Now().UnixNano())
}

// markBacklog records that frames queued up behind the current one, so the
// next reply is preceded by a line reset.
func (s *session) markBacklog() {
	s.writeMu.Lock()
	s.lineNeedsReset = true
	s.writeMu.Unlock()
}

func (s *session) send(ctx context.Context, cmd Command, terminalID int, data string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(replyWriteTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	if s.lineNeedsReset {
		if err := writeFrame(s.conn, CmdResetLine, terminalID, ""); err != nil {
			return fmt.Errorf("%w: write line reset: %w", ErrDisconnected, err)
		}
		s.lineNeedsReset = false
		s.metrics.LineResetCount.Add(1)
		s.logger.Debug("line reset sent", "terminal", terminalID)
	}

	if err := writeFrame(s.conn, cmd, terminalID, data); err != nil {
		if errors.Is(err, ErrDataTooLong) || errors.Is(err, ErrInvalidTerminalID) || errors.Is(err, ErrNonASCII) {
			return err
		}

		return fmt.Errorf("%w: write %s: %w", ErrDisconnected, cmd, err)
	}

	return nil
}

func (s *session) info() SessionInfo {
	info := SessionInfo{
		ID:            s.id,
		RemoteAddr:    s.remoteAddr,
		ConnectedAt:   s.connectedAt,
		Notifications: s.notifications.Load(),
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		info.LastFrameAt = time.Unix(0, ns)
	}

	return info
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED)
}
