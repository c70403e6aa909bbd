package synel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/go-synel/logger"
)

// Client is a connection to one terminal bridge.
//
// Requests on a client are serialized: a Client never has two exchanges in
// flight. Several terminals on the same bridge are addressed by terminal id
// through the same client.
type Client struct {
	cfg    *ConnectionConfig
	logger logger.Logger
	addr   string

	conn net.Conn
	recv *receiver

	// gated is true when the client holds the gatekeeper entry for addr.
	gated bool

	state     atomicConnState
	exchMu    sync.Mutex // serializes exchanges
	closeOnce sync.Once
	closeErr  error

	metrics ClientMetrics
}

// Connect resolves the configured host, enters the gatekeeper for the
// resulting ip:port endpoint and dials it.
//
// Resolution, gatekeeper admission and dialing share one connect timeout. The
// endpoint is keyed by IP so different spellings of the same host are
// serialized. When the dial fails the gatekeeper entry is released before
// Connect returns.
func Connect(ctx context.Context, cfg *ConnectionConfig) (*Client, error) {
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	deadline := time.Now().Add(cfg.connectTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	addr, err := resolveEndpoint(dialCtx, cfg.host, cfg.port)
	if err != nil {
		return nil, err
	}
	l := cfg.logger.With("address", addr)

	if err := cfg.gate.Enter(ctx, addr, time.Until(deadline)); err != nil {
		return nil, fmt.Errorf("synel: enter gatekeeper for %s: %w", addr, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		cfg.gate.Exit(addr)
		l.Debug("dial failed", "error", err)

		if isTimeout(err) {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrTimeout, addr, err)
		}

		return nil, fmt.Errorf("%w: dial %s: %w", ErrNotConnected, addr, err)
	}

	c := newClient(cfg, conn, addr)
	c.gated = true
	l.Debug("connected", "host", cfg.host)

	return c, nil
}

// resolveEndpoint returns the "ip:port" endpoint of host. IPv4 addresses are
// preferred; an empty host means the loopback address.
func resolveEndpoint(ctx context.Context, host string, port int) (string, error) {
	p := strconv.Itoa(port)

	if host == "" {
		host = "127.0.0.1"
	}
	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), p), nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: resolve %s: %w", ErrTimeout, host, err)
		}

		return "", fmt.Errorf("%w: resolve %s: %w", ErrNotConnected, host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: resolve %s: no address", ErrNotConnected, host)
	}

	ip := addrs[0].IP
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			ip = v4
			break
		}
	}

	return net.JoinHostPort(ip.String(), p), nil
}

// Dial connects to host:port with a background context.
func Dial(host string, port int, opts ...ConnOption) (*Client, error) {
	cfg, err := NewConnectionConfig(host, port, opts...)
	if err != nil {
		return nil, err
	}

	return Connect(context.Background(), cfg)
}

// ConnectResult is the outcome of ConnectAsync.
type ConnectResult struct {
	Client *Client
	Err    error
}

// ConnectAsync runs Connect in a new goroutine. The returned channel receives
// exactly one result and is then closed.
func ConnectAsync(ctx context.Context, cfg *ConnectionConfig) <-chan ConnectResult {
	ch := make(chan ConnectResult, 1)

	go func() {
		defer close(ch)

		c, err := Connect(ctx, cfg)
		ch <- ConnectResult{Client: c, Err: err}
	}()

	return ch
}

func newClient(cfg *ConnectionConfig, conn net.Conn, addr string) *Client {
	l := cfg.logger.With("address", addr)

	c := &Client{
		cfg:    cfg,
		logger: l,
		addr:   addr,
		conn:   conn,
		recv:   newReceiver(conn, l, true),
	}
	c.recv.onFrame = c.metrics.incFrameRecvCount
	c.state.Set(StateConnecting)
	c.state.ToConnected()

	return c
}

// Close closes the transport and releases the gatekeeper entry after its
// settle delay. It is safe to call more than once and runs its teardown even
// when the transport already failed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.ToClosing()

		c.closeErr = c.conn.Close()
		if c.gated {
			c.cfg.gate.Exit(c.addr)
		}

		c.state.Set(StateClosed)
		c.logger.Debug("connection closed")
	})

	return c.closeErr
}

// IsConnected reports whether the client is usable.
func (c *Client) IsConnected() bool {
	return c.state.IsConnected()
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return c.state.Get()
}

// Addr returns the resolved "ip:port" endpoint of the client, the key it holds
// in the gatekeeper.
func (c *Client) Addr() string {
	return c.addr
}

// Config returns the client configuration.
func (c *Client) Config() *ConnectionConfig {
	return c.cfg
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *ClientMetrics {
	return &c.metrics
}
