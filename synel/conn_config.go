package synel

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-synel/gatekeeper"
	"github.com/arloliu/go-synel/logger"
)

// Range limits for connection options.
const (
	MinTimeout = 10 * time.Millisecond
	MaxTimeout = 10 * time.Minute

	MaxAttempts = 100
)

// ConnectionConfig holds the configuration of a client connection to a terminal bridge.
//
// The timeout and attempts are defaults for requests that do not set their own.
type ConnectionConfig struct {
	host string
	port int

	connectTimeout time.Duration
	timeout        time.Duration
	attempts       int

	gate   gatekeeper.Gatekeeper
	logger logger.Logger
}

// NewConnectionConfig creates a client configuration for host and port.
//
// opts are applied in order; see the With* functions.
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		connectTimeout: DefaultConnectTimeout,
		timeout:        DefaultTimeout,
		attempts:       DefaultAttempts,
		logger:         logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.gate == nil {
		cfg.gate = gatekeeper.Default()
	}

	return cfg, nil
}

func (cfg *ConnectionConfig) setHost(host string) error {
	host, err := validateHost(host)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("synel: host is empty")
	}
	cfg.host = host

	return nil
}

func (cfg *ConnectionConfig) setPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("synel: port %d out of range [1, 65535]", port)
	}
	cfg.port = port

	return nil
}

func validateHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	host = strings.TrimPrefix(host, ".")
	host = strings.TrimSuffix(host, ".")
	if _, err := net.LookupHost(host); err == nil {
		return host, nil
	}

	return "", fmt.Errorf("synel: invalid host %q", host)
}

// Host returns the terminal bridge host.
func (cfg *ConnectionConfig) Host() string { return cfg.host }

// Port returns the terminal bridge port.
func (cfg *ConnectionConfig) Port() int { return cfg.port }

// Addr returns the configured "host:port". Connect keys the gatekeeper by the
// resolved address instead, see Client.Addr.
func (cfg *ConnectionConfig) Addr() string {
	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

// ConnectTimeout returns the single bound for resolving, gatekeeper admission and dialing.
func (cfg *ConnectionConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// Timeout returns the default response timeout of an exchange.
func (cfg *ConnectionConfig) Timeout() time.Duration { return cfg.timeout }

// Attempts returns the default number of sends per exchange.
func (cfg *ConnectionConfig) Attempts() int { return cfg.attempts }

// Gatekeeper returns the gatekeeper guarding the endpoint.
func (cfg *ConnectionConfig) Gatekeeper() gatekeeper.Gatekeeper { return cfg.gate }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

// WithConnectTimeout sets the bound for gatekeeper admission and the TCP dial.
func WithConnectTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("synel: connect timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithTimeout sets the default response timeout of an exchange.
func WithTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("synel: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithAttempts sets the default number of times a request is sent when no response arrives.
func WithAttempts(n int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if n < 1 || n > MaxAttempts {
			return fmt.Errorf("synel: attempts %d out of range [1, %d]", n, MaxAttempts)
		}
		cfg.attempts = n

		return nil
	})
}

// WithGatekeeper sets the gatekeeper guarding the endpoint. Clients created
// without one share gatekeeper.Default().
func WithGatekeeper(g gatekeeper.Gatekeeper) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if g == nil {
			return fmt.Errorf("synel: gatekeeper is nil")
		}
		cfg.gate = g

		return nil
	})
}

// LoggerOption sets the logger of a client or a listener configuration.
type LoggerOption struct {
	l logger.Logger
}

// WithLogger sets the logger. It is accepted by both NewConnectionConfig and NewListenerConfig.
func WithLogger(l logger.Logger) LoggerOption {
	return LoggerOption{l: l}
}

func (o LoggerOption) apply(cfg *ConnectionConfig) error {
	if o.l == nil {
		return fmt.Errorf("synel: logger is nil")
	}
	cfg.logger = o.l

	return nil
}

func (o LoggerOption) applyListener(cfg *ListenerConfig) error {
	if o.l == nil {
		return fmt.Errorf("synel: logger is nil")
	}
	cfg.logger = o.l

	return nil
}
