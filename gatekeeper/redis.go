package gatekeeper

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
)

// releaseTimeout bounds the background release issued by Exit and each lease renewal.
const releaseTimeout = 2 * time.Second

// The key is only touched while it still carries the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisClient is the subset of the go-redis API used by Redis.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

var _ RedisClient = (*redis.Client)(nil)

// Redis is a Gatekeeper shared by every process using the same Redis server.
//
// An occupied endpoint is a key set with SET NX to a token unique to that Enter,
// with a lease expiry. While the endpoint is held the lease is renewed every
// third of its length, so only a crashed holder lets the entry expire. Exit and
// renewal act on the key only while it still carries the holder's token.
type Redis struct {
	client RedisClient
	owner  string
	held   *xsync.MapOf[string, *redisLease]
	opts   options
}

type redisLease struct {
	token string
	stop  chan struct{}
}

var _ Gatekeeper = (*Redis)(nil)

// tokenSeq numbers the entries of every Redis gatekeeper in this process.
var tokenSeq atomic.Uint64

// NewRedis creates a Redis backed gatekeeper.
func NewRedis(client RedisClient, opts ...Option) *Redis {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	host, _ := os.Hostname()

	return &Redis{
		client: client,
		owner:  host + ":" + strconv.Itoa(os.Getpid()),
		held:   xsync.NewMapOf[string, *redisLease](),
		opts:   o,
	}
}

func (g *Redis) key(endpoint string) string {
	return g.opts.keyPrefix + endpoint
}

func (g *Redis) newToken() string {
	return g.owner + ":" + strconv.FormatUint(tokenSeq.Add(1), 10)
}

// Enter polls SET NX on the endpoint key until it is set, then keeps renewing
// the lease until Exit.
func (g *Redis) Enter(ctx context.Context, endpoint string, timeout time.Duration) error {
	if endpoint == "" {
		return nil
	}

	key := g.key(endpoint)
	token := g.newToken()

	err := poll(ctx, &g.opts, endpoint, timeout, func() (bool, error) {
		ok, err := g.client.SetNX(ctx, key, token, g.opts.lease).Result()
		if err != nil {
			return false, fmt.Errorf("gatekeeper: redis SETNX %s: %w", key, err)
		}

		return ok, nil
	})
	if err != nil {
		return err
	}

	lease := &redisLease{token: token, stop: make(chan struct{})}
	g.held.Store(endpoint, lease)
	go g.renew(endpoint, key, lease)

	return nil
}

func (g *Redis) renew(endpoint, key string, lease *redisLease) {
	ticker := time.NewTicker(max(g.opts.lease/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-lease.stop:
			return
		case <-ticker.C:
		}

		select {
		case <-lease.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		n, err := renewScript.Run(ctx, g.client, []string{key}, lease.token, g.opts.lease.Milliseconds()).Int64()
		cancel()

		switch {
		case err != nil:
			g.opts.logger.Warn("gatekeeper: failed to renew lease", "endpoint", endpoint, "error", err)
		case n == 0:
			g.opts.logger.Error("gatekeeper: lease lost while held", "endpoint", endpoint)
			return
		}
	}
}

// Exit stops renewing the lease and, after the settle delay, deletes the key
// if it still carries the token written by the matching Enter.
func (g *Redis) Exit(endpoint string) {
	if endpoint == "" {
		return
	}

	lease, ok := g.held.LoadAndDelete(endpoint)
	if !ok {
		return
	}
	close(lease.stop)

	time.AfterFunc(g.opts.settleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		n, err := releaseScript.Run(ctx, g.client, []string{g.key(endpoint)}, lease.token).Int64()
		switch {
		case err != nil:
			g.opts.logger.Warn("gatekeeper: failed to release endpoint", "endpoint", endpoint, "error", err)
		case n == 0:
			g.opts.logger.Warn("gatekeeper: endpoint already taken over, not released", "endpoint", endpoint)
		}
	})
}
