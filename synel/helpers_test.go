package synel

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-synel/gatekeeper"
	"github.com/stretchr/testify/require"
)

// statusData is a valid 58 character status payload.
const statusData = "720" + "03" + "04.12" + "R" + "261018093015" + "030" + "00042" +
	"017" + "0" + "1" + "00120" + "01000" + "000000000000"

// newTestConfig creates a ConnectionConfig with short timeouts and a private gatekeeper.
func newTestConfig(t *testing.T, opts ...ConnOption) *ConnectionConfig {
	t.Helper()

	defaults := []ConnOption{
		WithTimeout(200 * time.Millisecond),
		WithConnectTimeout(time.Second),
		WithGatekeeper(gatekeeper.NewMemory()),
	}

	cfg, err := NewConnectionConfig("127.0.0.1", DefaultPort, append(defaults, opts...)...)
	require.NoError(t, err)

	return cfg
}

// newPipeClient creates a Client on the local end of net.Pipe().
// Returns the client and the remote end playing the terminal bridge.
func newPipeClient(t *testing.T, opts ...ConnOption) (*Client, net.Conn) {
	t.Helper()

	local, remote := newPipeConn(t)
	cfg := newTestConfig(t, opts...)
	c := newClient(cfg, local, cfg.Addr())
	t.Cleanup(func() { _ = c.Close() })

	return c, remote
}

// newPipeConn creates a net.Pipe pair and registers cleanup.
func newPipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return local, remote
}

// mustFrame builds a terminal frame, failing the test on error.
func mustFrame(t *testing.T, cmd ResponseCommand, terminalID int, data string) string {
	t.Helper()

	frame, err := BuildResponseFrame(cmd, terminalID, data)
	require.NoError(t, err)

	return frame
}

// corruptCRC returns frame with its first checksum character changed.
func corruptCRC(frame string) string {
	b := []byte(frame)
	i := len(b) - trailerSize
	if b[i] == '0' {
		b[i] = '1'
	} else {
		b[i] = '0'
	}

	return string(b)
}

// mustWrite writes data to w, failing the test on error.
func mustWrite(t *testing.T, w io.Writer, data string) {
	t.Helper()

	_, err := io.WriteString(w, data)
	if err != nil {
		t.Errorf("mustWrite: %v", err)
	}
}

// fakeTerminal plays a terminal bridge on conn. reply is called for each
// request frame and returns the chunks to write back, one Write per chunk.
type fakeTerminal struct {
	mu       sync.Mutex
	requests []string
}

func serveFakeTerminal(t *testing.T, conn net.Conn, reply func(n int, req string) []string) *fakeTerminal {
	t.Helper()

	ft := &fakeTerminal{}
	go ft.serve(conn, reply)

	return ft
}

func (ft *fakeTerminal) serve(conn net.Conn, reply func(n int, req string) []string) {
	r := bufio.NewReader(conn)
	for {
		req, err := r.ReadString(EOT)
		if err != nil {
			return
		}

		ft.mu.Lock()
		ft.requests = append(ft.requests, req)
		n := len(ft.requests)
		ft.mu.Unlock()

		for _, chunk := range reply(n, req) {
			if _, err := io.WriteString(conn, chunk); err != nil {
				return
			}
		}
	}
}

// startFakeBridge listens on a loopback port and serves every accepted
// connection with reply. All connections record into the same fakeTerminal.
func startFakeBridge(t *testing.T, reply func(n int, req string) []string) (int, *fakeTerminal, *atomic.Int32) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ft := &fakeTerminal{}
	var accepted atomic.Int32
	var mu sync.Mutex
	var conns []net.Conn

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)

			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()

			go ft.serve(conn, reply)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()

		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return ln.Addr().(*net.TCPAddr).Port, ft, &accepted
}

func (ft *fakeTerminal) Requests() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	return append([]string(nil), ft.requests...)
}

// readFrame reads one frame up to and including EOT.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	s, err := r.ReadString(EOT)
	require.NoError(t, err)

	return s
}
