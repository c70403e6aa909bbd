package synel

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/arloliu/go-synel/logger"
)

// ListenerConfig holds the configuration of a push listener.
type ListenerConfig struct {
	host        string
	port        int
	idleTimeout time.Duration
	logger      logger.Logger
}

// NewListenerConfig creates a push listener configuration.
//
// An empty host binds all interfaces, and port 0 picks a free port.
func NewListenerConfig(host string, port int, opts ...ListenerOption) (*ListenerConfig, error) {
	cfg := &ListenerConfig{
		idleTimeout: DefaultIdleTimeout,
		logger:      logger.GetLogger(),
	}

	h, err := validateHost(host)
	if err != nil {
		return nil, err
	}
	cfg.host = h

	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("synel: port %d out of range [0, 65535]", port)
	}
	cfg.port = port

	for _, opt := range opts {
		if err := opt.applyListener(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Host returns the bind host.
func (cfg *ListenerConfig) Host() string { return cfg.host }

// Port returns the bind port.
func (cfg *ListenerConfig) Port() int { return cfg.port }

// Addr returns the bind address.
func (cfg *ListenerConfig) Addr() string {
	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

// IdleTimeout returns how long a silent connection is kept open.
func (cfg *ListenerConfig) IdleTimeout() time.Duration { return cfg.idleTimeout }

// GetLogger returns the configured logger.
func (cfg *ListenerConfig) GetLogger() logger.Logger { return cfg.logger }

// ListenerOption is a functional option for configuring a ListenerConfig.
type ListenerOption interface {
	applyListener(*ListenerConfig) error
}

type listenerOptFunc func(*ListenerConfig) error

func (f listenerOptFunc) applyListener(cfg *ListenerConfig) error { return f(cfg) }

// WithIdleTimeout sets how long a connection may stay silent before it is closed.
func WithIdleTimeout(d time.Duration) ListenerOption {
	return listenerOptFunc(func(cfg *ListenerConfig) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("synel: idle timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.idleTimeout = d

		return nil
	})
}
