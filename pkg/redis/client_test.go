package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simcheck/simcheck-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetNXGuardsDuplicates(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.WebhookKey("paddle", "evt_1")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to win, got %v %v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected duplicate SetNX to lose, got %v %v", second, err)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDelIfEqualsKeepsForeignValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("cron")

	if _, err := client.SetNX(ctx, key, "worker-a", time.Minute); err != nil {
		t.Fatalf("setnx failed: %v", err)
	}
	deleted, err := client.DelIfEquals(ctx, key, "worker-b")
	if err != nil || deleted {
		t.Fatalf("expected foreign holder to keep the key, got %v %v", deleted, err)
	}
	deleted, err = client.DelIfEquals(ctx, key, "worker-a")
	if err != nil || !deleted {
		t.Fatalf("expected holder to delete the key, got %v %v", deleted, err)
	}
}

func TestIncrDailyScopesByDay(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		n, err := client.IncrDaily(ctx, "emails", day)
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("expected %d got %d", i, n)
		}
	}
	n, err := client.IncrDaily(ctx, "emails", day.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected a fresh counter on the next day, got %d %v", n, err)
	}
	if len(mock.expireCalls) != 2 || mock.expireCalls[0].ttl != dailyCounterTTL {
		t.Fatalf("expected ttl on first increment of each day, got %+v", mock.expireCalls)
	}

	left, err := client.Decr(ctx, client.DailyCounterKey("emails", day))
	if err != nil || left != 2 {
		t.Fatalf("expected decrement to 2, got %d %v", left, err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "sc:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "sc:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.CounterKey("hits"); got != "sc:counter:hits" {
		t.Fatalf("unexpected counter key %s", got)
	}
	if got := client.WebhookKey("viva", "42"); got != "sc:webhook:viva:42" {
		t.Fatalf("unexpected webhook key %s", got)
	}
	if got := client.LockKey(""); got != "sc:lock" {
		t.Fatalf("lock key should skip empty parts, got %s", got)
	}
	day := time.Date(2026, 5, 4, 1, 0, 0, 0, time.FixedZone("x", 3*3600))
	if got := client.DailyCounterKey("emails", day); got != "sc:counter:emails:2026-05-03" {
		t.Fatalf("daily key should use UTC day, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Decr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]--
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if v, ok := m.data[keys[0]]; ok && len(args) == 1 && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestUninitializedClientErrors(t *testing.T) {
	var client *Client
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, err := (&Client{}).Incr(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@localhost:6380/3",
		DB:          7,
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" {
		t.Fatalf("unexpected address/password %q %q", opts.Addr, opts.Password)
	}
	if opts.DB != 3 {
		t.Fatalf("db from url should win, got %d", opts.DB)
	}
	if opts.PoolSize != 12 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("expected config fallbacks, got pool=%d dial=%s", opts.PoolSize, opts.DialTimeout)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
}
