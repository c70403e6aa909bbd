package gatekeeper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps keys in memory and ignores expiry. The gatekeeper scripts are
// interpreted directly; expire simulates a lease running out.
type fakeRedis struct {
	mu       sync.Mutex
	keys     map[string]interface{}
	ttl      map[string]time.Duration
	setErr   error
	renewals int
	releases int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]interface{}{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value
	f.ttl[key] = expiration

	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) runScript(sha string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keys[0]
	owned := f.keys[key] == args[0]

	switch sha {
	case releaseScript.Hash():
		f.releases++
		if !owned {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(f.keys, key)

		return redis.NewCmdResult(int64(1), nil)
	case renewScript.Hash():
		f.renewals++
		if !owned {
			return redis.NewCmdResult(int64(0), nil)
		}
		ms, _ := args[1].(int64)
		f.ttl[key] = time.Duration(ms) * time.Millisecond

		return redis.NewCmdResult(int64(1), nil)
	}

	return redis.NewCmdResult(nil, errors.New("NOSCRIPT unknown script"))
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.runScript(redis.NewScript(script).Hash(), keys, args...)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.runScript(sha1, keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.keys[key]

	return ok
}

func (f *fakeRedis) value(key string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.keys[key]
}

func (f *fakeRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.keys, key)
}

func (f *fakeRedis) counts() (renewals, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.renewals, f.releases
}

func TestRedis_EnterSetsLeasedKey(t *testing.T) {
	client := newFakeRedis()
	g := NewRedis(client, WithLease(time.Minute), WithKeyPrefix("test:"))

	require.NoError(t, g.Enter(context.Background(), "10.0.0.7:3734", time.Second))

	assert.True(t, client.has("test:10.0.0.7:3734"))
	assert.Equal(t, time.Minute, client.ttl["test:10.0.0.7:3734"])

	token, ok := client.value("test:10.0.0.7:3734").(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, g.owner+":"))
}

func TestRedis_TokensUniquePerEnter(t *testing.T) {
	client := newFakeRedis()
	a := NewRedis(client)
	b := NewRedis(client)

	require.NoError(t, a.Enter(context.Background(), "10.0.0.7:3734", time.Second))
	require.NoError(t, b.Enter(context.Background(), "10.0.0.8:3734", time.Second))

	require.Equal(t, a.owner, b.owner)
	assert.NotEqual(t,
		client.value(DefaultKeyPrefix+"10.0.0.7:3734"),
		client.value(DefaultKeyPrefix+"10.0.0.8:3734"))
}

func TestRedis_ExpiredLeaseNotReleasedByStaleHolder(t *testing.T) {
	client := newFakeRedis()
	key := DefaultKeyPrefix + "10.0.0.7:3734"
	stale := NewRedis(client, WithSettleDelay(0))
	current := NewRedis(client)

	require.NoError(t, stale.Enter(context.Background(), "10.0.0.7:3734", time.Second))
	client.expire(key)

	require.NoError(t, current.Enter(context.Background(), "10.0.0.7:3734", time.Second))
	owner := client.value(key)

	stale.Exit("10.0.0.7:3734")
	require.Eventually(t, func() bool {
		_, releases := client.counts()
		return releases == 1
	}, time.Second, 2*time.Millisecond)

	assert.Equal(t, owner, client.value(key), "the new holder keeps the endpoint")

	err := NewRedis(client).Enter(context.Background(), "10.0.0.7:3734", 40*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRedis_LeaseRenewedWhileHeld(t *testing.T) {
	client := newFakeRedis()
	g := NewRedis(client, WithLease(30*time.Millisecond), WithSettleDelay(0))
	key := DefaultKeyPrefix + "10.0.0.7:3734"

	require.NoError(t, g.Enter(context.Background(), "10.0.0.7:3734", time.Second))

	require.Eventually(t, func() bool {
		renewals, _ := client.counts()
		return renewals >= 2
	}, time.Second, 2*time.Millisecond)
	assert.True(t, client.has(key))

	g.Exit("10.0.0.7:3734")
	require.Eventually(t, func() bool { return !client.has(key) }, time.Second, 2*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	renewals, _ := client.counts()
	time.Sleep(50 * time.Millisecond)
	after, _ := client.counts()
	assert.Equal(t, renewals, after, "no renewal after Exit")
}

func TestRedis_ExitWithoutEnterIsNoop(t *testing.T) {
	client := newFakeRedis()
	g := NewRedis(client, WithSettleDelay(0))

	g.Exit("10.0.0.7:3734")
	time.Sleep(20 * time.Millisecond)

	_, releases := client.counts()
	assert.Zero(t, releases)
}

func TestRedis_TimeoutWhileHeld(t *testing.T) {
	client := newFakeRedis()
	holder := NewRedis(client)
	waiter := NewRedis(client)

	require.NoError(t, holder.Enter(context.Background(), "10.0.0.7:3734", time.Second))

	err := waiter.Enter(context.Background(), "10.0.0.7:3734", 40*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRedis_ExitReleasesAfterSettle(t *testing.T) {
	client := newFakeRedis()
	g := NewRedis(client, WithSettleDelay(20*time.Millisecond))
	key := DefaultKeyPrefix + "10.0.0.7:3734"

	require.NoError(t, g.Enter(context.Background(), "10.0.0.7:3734", time.Second))
	g.Exit("10.0.0.7:3734")
	assert.True(t, client.has(key))

	require.Eventually(t, func() bool { return !client.has(key) }, time.Second, 2*time.Millisecond)

	require.NoError(t, g.Enter(context.Background(), "10.0.0.7:3734", time.Second))
}

func TestRedis_ClientError(t *testing.T) {
	client := newFakeRedis()
	client.setErr = errors.New("connection refused")
	g := NewRedis(client)

	err := g.Enter(context.Background(), "10.0.0.7:3734", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "connection refused")

	require.NoError(t, g.Enter(context.Background(), "", time.Second))
}
