// Package gatekeeper enforces a single live connection per remote terminal endpoint.
//
// A terminal's network bridge accepts one TCP session at a time and needs a short
// quiet period after a session ends. Every client connection therefore enters the
// gatekeeper for its endpoint before dialing and exits it when the connection is
// disposed. Enter polls until the endpoint is free; Exit frees it after a settle
// delay without blocking the caller.
//
// The gatekeeper is a mutual exclusion primitive, not a queue: waiters are not
// ordered and the first poller to observe a free endpoint wins.
package gatekeeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/go-synel/internal/pool"
	"github.com/arloliu/go-synel/logger"
)

const (
	// DefaultPollInterval is how often a waiting Enter re-checks the endpoint.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultSettleDelay is the delay between Exit and the endpoint becoming free.
	DefaultSettleDelay = 10 * time.Millisecond

	// DefaultLease bounds how long a Redis entry survives a crashed holder.
	DefaultLease = 5 * time.Minute

	// DefaultKeyPrefix prefixes the Redis keys of occupied endpoints.
	DefaultKeyPrefix = "synel:gate:"
)

// ErrTimeout indicates that the endpoint stayed occupied for the whole Enter timeout.
var ErrTimeout = errors.New("gatekeeper: timeout waiting for endpoint")

// Gatekeeper serializes connections per endpoint.
type Gatekeeper interface {
	// Enter blocks until endpoint is free and marks it occupied.
	// An empty endpoint is always admitted. It fails with ErrTimeout once timeout
	// elapsed, or with the context error when ctx ends first.
	Enter(ctx context.Context, endpoint string, timeout time.Duration) error

	// Exit schedules the release of endpoint and returns immediately.
	Exit(endpoint string)
}

type options struct {
	pollInterval time.Duration
	settleDelay  time.Duration
	lease        time.Duration
	keyPrefix    string
	logger       logger.Logger
}

func defaultOptions() options {
	return options{
		pollInterval: DefaultPollInterval,
		settleDelay:  DefaultSettleDelay,
		lease:        DefaultLease,
		keyPrefix:    DefaultKeyPrefix,
		logger:       logger.GetLogger(),
	}
}

// Option configures a gatekeeper.
type Option func(*options)

// WithPollInterval sets how often a blocked Enter re-checks the endpoint.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithSettleDelay sets the delay between Exit and the endpoint becoming free.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.settleDelay = d
		}
	}
}

// WithLease sets the expiry of Redis entries. Ignored by the in-memory gatekeeper.
func WithLease(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithKeyPrefix sets the Redis key prefix. Ignored by the in-memory gatekeeper.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithLogger sets the logger used for background release failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// poll calls try every interval until it admits the caller, the timeout
// elapses or ctx ends.
func poll(ctx context.Context, o *options, endpoint string, timeout time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &TimeoutError{Endpoint: endpoint, Timeout: timeout}
		}

		if err := pool.Sleep(ctx, min(o.pollInterval, remaining)); err != nil {
			return err
		}
	}
}

// TimeoutError reports the endpoint that could not be entered. It matches ErrTimeout.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return ErrTimeout.Error() + " " + e.Endpoint + " after " + e.Timeout.String()
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

var (
	defaultOnce sync.Once
	defaultGate *Memory
)

// Default returns a process-wide in-memory gatekeeper, created on first use.
// Applications that want isolation construct their own with NewMemory.
func Default() *Memory {
	defaultOnce.Do(func() {
		defaultGate = NewMemory()
	})

	return defaultGate
}
