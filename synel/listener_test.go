package synel

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestListener(t *testing.T, handler Handler, opts ...ListenerOption) *Listener {
	t.Helper()

	defaults := []ListenerOption{WithIdleTimeout(300 * time.Millisecond)}
	cfg, err := NewListenerConfig("127.0.0.1", 0, append(defaults, opts...)...)
	require.NoError(t, err)

	l, err := NewListener(cfg, handler)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)

	return l
}

// dialTerminal connects to l as a terminal would.
func dialTerminal(t *testing.T, l *Listener) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, bufio.NewReader(conn)
}

func readReply(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	return readFrame(t, r)
}

func mustRequestFrame(t *testing.T, cmd Command, tid int, data string) string {
	t.Helper()

	frame, err := BuildFrame(cmd, tid, data)
	require.NoError(t, err)

	return frame
}

func TestListener_DataNotification(t *testing.T) {
	got := make(chan *PushNotification, 1)
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		got <- n
		assert.NoError(t, n.Acknowledge(ctx))
	})

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspDataRecord, 7, "0001234"))

	select {
	case n := <-got:
		assert.Equal(t, NotificationData, n.Type)
		assert.Equal(t, 7, n.TerminalID)
		assert.Equal(t, "0001234", n.Data)
		assert.Equal(t, conn.LocalAddr().String(), n.RemoteAddr)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	assert.Equal(t, mustRequestFrame(t, CmdAcknowledgeLastRecord, 7, ""), readReply(t, conn, r))
	assert.Equal(t, uint64(1), l.Metrics().NotificationCount.Load())
}

func TestListener_QueryReply(t *testing.T) {
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		assert.ErrorIs(t, n.Acknowledge(ctx), ErrNotificationType)
		assert.NoError(t, n.Reply(ctx, true, 1, "Welcome", AlignCenter))
	})

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspQueryForHost, 2, "card=4711"))

	want := mustRequestFrame(t, CmdQueryReply, 2, "A01"+"    Welcome     ")
	assert.Equal(t, want, readReply(t, conn, r))
}

func TestListener_QueryDenied(t *testing.T) {
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		assert.NoError(t, n.Reply(ctx, false, 12, "Access denied to this door", AlignLeft))
	})

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspQueryForHost, 2, "card=1"))

	want := mustRequestFrame(t, CmdQueryReply, 2, "N12"+"Access denied to")
	assert.Equal(t, want, readReply(t, conn, r))
}

func TestListener_ReplyOnDataIsRejected(t *testing.T) {
	errs := make(chan error, 1)
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		errs <- n.Reply(ctx, true, 0, "x", AlignLeft)
	})

	conn, _ := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspDataRecord, 1, "rec"))

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrNotificationType)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestListener_BacklogSendsLineReset(t *testing.T) {
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		assert.NoError(t, n.Acknowledge(ctx))
	})

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspDataRecord, 1, "rec1")+mustFrame(t, RspDataRecord, 1, "rec2"))

	ack := mustRequestFrame(t, CmdAcknowledgeLastRecord, 1, "")
	assert.Equal(t, mustRequestFrame(t, CmdResetLine, 1, ""), readReply(t, conn, r))
	assert.Equal(t, ack, readReply(t, conn, r))
	assert.Equal(t, ack, readReply(t, conn, r))
	assert.Equal(t, uint64(1), l.Metrics().LineResetCount.Load())
}

func TestListener_DropsOtherFrames(t *testing.T) {
	called := make(chan struct{}, 2)
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		called <- struct{}{}
	})

	conn, _ := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspTerminalStatus, 1, statusData))

	unknown, err := appendFrame(nil, 'Z', 1, "")
	require.NoError(t, err)
	mustWrite(t, conn, string(unknown))

	mustWrite(t, conn, mustFrame(t, RspDataRecord, 1, "rec"))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called for the data record")
	}

	select {
	case <-called:
		t.Fatal("handler called for a dropped frame")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, uint64(2), l.Metrics().FrameDropCount.Load())
}

func TestListener_IdleTimeout(t *testing.T) {
	l := startTestListener(t, func(context.Context, *PushNotification) {}, WithIdleTimeout(100*time.Millisecond))

	conn, r := dialTerminal(t, l)
	require.Eventually(t, func() bool { return len(l.Sessions()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadByte()
	require.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return len(l.Sessions()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), l.Metrics().IdleCloseCount.Load())
	assert.Equal(t, int64(0), l.Metrics().ConnActiveGauge.Load())
}

func TestListener_HandlerPanicClosesConnection(t *testing.T) {
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) {
		if n.Data == "boom" {
			panic("handler failure")
		}
		_ = n.Acknowledge(ctx)
	}, WithIdleTimeout(5*time.Second))

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspDataRecord, 1, "boom"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(1), l.Metrics().HandlerPanicCount.Load())

	// the listener keeps serving other connections
	conn2, r2 := dialTerminal(t, l)
	mustWrite(t, conn2, mustFrame(t, RspDataRecord, 1, "ok"))
	assert.Equal(t, mustRequestFrame(t, CmdAcknowledgeLastRecord, 1, ""), readReply(t, conn2, r2))
}

func TestListener_Sessions(t *testing.T) {
	l := startTestListener(t, func(ctx context.Context, n *PushNotification) { _ = n.Acknowledge(ctx) },
		WithIdleTimeout(5*time.Second))

	conn, r := dialTerminal(t, l)
	mustWrite(t, conn, mustFrame(t, RspDataRecord, 1, "rec"))
	readReply(t, conn, r)

	sessions := l.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, conn.LocalAddr().String(), sessions[0].RemoteAddr)
	assert.Equal(t, uint64(1), sessions[0].Notifications)
	assert.False(t, sessions[0].LastFrameAt.IsZero())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(l.Sessions()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestListener_StartStop(t *testing.T) {
	cfg, err := NewListenerConfig("127.0.0.1", 0)
	require.NoError(t, err)

	l, err := NewListener(cfg, func(context.Context, *PushNotification) {})
	require.NoError(t, err)
	assert.Nil(t, l.Addr())

	require.NoError(t, l.Start(context.Background()))
	require.ErrorIs(t, l.Start(context.Background()), ErrListenerRunning)

	addr := l.Addr().String()
	l.Stop()
	assert.Nil(t, l.Addr())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	require.Error(t, err)

	// restart after stop
	require.NoError(t, l.Start(context.Background()))
	l.Stop()
}

func TestListener_ListenAndServe(t *testing.T) {
	cfg, err := NewListenerConfig("127.0.0.1", 0)
	require.NoError(t, err)

	l, err := NewListener(cfg, func(context.Context, *PushNotification) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool { return l.Addr() != nil }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}

// scriptedListener returns the queued Accept errors in order, then blocks
// until closed.
type scriptedListener struct {
	errs    chan error
	closed  chan struct{}
	once    sync.Once
	accepts atomic.Int32
}

func newScriptedListener(errs ...error) *scriptedListener {
	ln := &scriptedListener{errs: make(chan error, len(errs)), closed: make(chan struct{})}
	for _, err := range errs {
		ln.errs <- err
	}

	return ln
}

func (ln *scriptedListener) Accept() (net.Conn, error) {
	ln.accepts.Add(1)

	select {
	case err := <-ln.errs:
		return nil, err
	case <-ln.closed:
		return nil, net.ErrClosed
	}
}

func (ln *scriptedListener) Close() error {
	ln.once.Do(func() { close(ln.closed) })
	return nil
}

func (ln *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultPort}
}

func newScriptedTestListener(t *testing.T, ln net.Listener) *Listener {
	t.Helper()

	cfg, err := NewListenerConfig("127.0.0.1", 0)
	require.NoError(t, err)

	l, err := NewListener(cfg, func(context.Context, *PushNotification) {})
	require.NoError(t, err)
	l.listen = func(context.Context, string) (net.Listener, error) { return ln, nil }

	return l
}

func acceptError(err error) error {
	return &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", err)}
}

func TestListener_AcceptErrorClassification(t *testing.T) {
	fatal := errors.New("too many open files")
	ln := newScriptedListener(
		acceptError(syscall.ECONNRESET),
		acceptError(syscall.ECONNABORTED),
		acceptError(fatal),
	)
	l := newScriptedTestListener(t, ln)

	done := make(chan error, 1)
	go func() { done <- l.ListenAndServe(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, fatal)
		require.NotErrorIs(t, err, syscall.ECONNRESET)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe kept running after a fatal accept error")
	}

	assert.Equal(t, int32(3), ln.accepts.Load(), "connection resets do not stop accepting")
	assert.False(t, l.running.Load())
}

func TestListener_DoneReportsFatalAcceptError(t *testing.T) {
	fatal := errors.New("bad file descriptor")
	ln := newScriptedListener(acceptError(syscall.ECONNRESET), acceptError(fatal))
	l := newScriptedTestListener(t, ln)

	assert.Nil(t, l.Done())
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(l.Stop)

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not closed after a fatal accept error")
	}
	require.ErrorIs(t, l.Err(), fatal)
}

func TestListener_DoneAfterStopHasNoError(t *testing.T) {
	ln := newScriptedListener()
	l := newScriptedTestListener(t, ln)

	require.NoError(t, l.Start(context.Background()))
	done := l.Done()

	select {
	case <-done:
		t.Fatal("Done closed while accepting")
	case <-time.After(20 * time.Millisecond):
	}

	l.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Done was not closed by Stop")
	}
	require.NoError(t, l.Err())
}

func TestNewListener_Invalid(t *testing.T) {
	_, err := NewListener(nil, func(context.Context, *PushNotification) {})
	require.Error(t, err)

	cfg, err := NewListenerConfig("127.0.0.1", 0)
	require.NoError(t, err)
	_, err = NewListener(cfg, nil)
	require.Error(t, err)
}
