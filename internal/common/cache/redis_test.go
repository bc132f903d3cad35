package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("Get missing key = (%q, %v), want (\"\", nil)", v, err)
	}

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := c.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("Get = (%q, %v), want (\"v\", nil)", v, err)
	}

	ok, err := c.SetNX(ctx, "nx", "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX first = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.SetNX(ctx, "nx", "second", time.Minute)
	if err != nil || ok {
		t.Fatalf("SetNX second = (%v, %v), want (false, nil)", ok, err)
	}
	if v, _ := c.Get(ctx, "nx"); v != "first" {
		t.Fatalf("SetNX overwrote existing value: %q", v)
	}

	if _, err := c.Incr(ctx, "counter"); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	n, err := c.Incr(ctx, "counter")
	if err != nil || n != 2 {
		t.Fatalf("Incr = (%d, %v), want (2, nil)", n, err)
	}

	if err := c.Expire(ctx, "k", time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	ttl, err := c.TTL(ctx, "k")
	if err != nil || ttl <= 0 || ttl > time.Second {
		t.Fatalf("TTL = (%v, %v), want in (0, 1s]", ttl, err)
	}
	mr.FastForward(2 * time.Second)
	if v, err := c.Get(ctx, "k"); err != nil || v != "" {
		t.Fatalf("Get after expiry = (%q, %v), want (\"\", nil)", v, err)
	}

	if err := c.Del(ctx, "nx", "counter"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if v, _ := c.Get(ctx, "nx"); v != "" {
		t.Fatalf("key survived Del: %q", v)
	}
}

func TestRedisCacheListOpsFIFO(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := c.LPush(ctx, "queue", v); err != nil {
			t.Fatalf("LPush(%q): %v", v, err)
		}
	}
	if n, err := c.LLen(ctx, "queue"); err != nil || n != 3 {
		t.Fatalf("LLen = (%d, %v), want (3, nil)", n, err)
	}

	// Oldest element first.
	if v, err := c.RPop(ctx, "queue"); err != nil || v != "a" {
		t.Fatalf("RPop = (%q, %v), want (\"a\", nil)", v, err)
	}
	if v, err := c.BRPop(ctx, time.Second, "queue"); err != nil || v != "b" {
		t.Fatalf("BRPop = (%q, %v), want (\"b\", nil)", v, err)
	}

	if _, err := c.RPop(ctx, "queue"); err != nil {
		t.Fatalf("RPop: %v", err)
	}
	if v, err := c.RPop(ctx, "queue"); err != nil || v != "" {
		t.Fatalf("RPop on empty = (%q, %v), want (\"\", nil)", v, err)
	}
}

func TestRedisCacheBRPopTimeout(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	start := time.Now()
	v, err := c.BRPop(ctx, 100*time.Millisecond, "empty-queue")
	if err != nil || v != "" {
		t.Fatalf("BRPop on empty = (%q, %v), want (\"\", nil)", v, err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("BRPop returned after %v, expected it to block near the timeout", elapsed)
	}
}

func TestRedisCacheLock(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = c.TryLock(ctx, "lock:sweep", time.Minute)
	if err != nil || ok {
		t.Fatalf("TryLock while held = (%v, %v), want (false, nil)", ok, err)
	}
	if err := c.Unlock(ctx, "lock:sweep"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = c.TryLock(ctx, "lock:sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock after Unlock = (%v, %v), want (true, nil)", ok, err)
	}
}

type testRecord struct {
	Name string `json:"name"`
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	fetchCalls := 0
	fetch := func(ctx context.Context) (*testRecord, error) {
		fetchCalls++
		return &testRecord{Name: "two-sum"}, nil
	}
	isEmpty := func(r *testRecord) bool { return r == nil }
	marshal := func(r *testRecord) string {
		data, _ := json.Marshal(r)
		return string(data)
	}
	unmarshal := func(data string) (*testRecord, error) {
		var r testRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "record:1", time.Minute, time.Second, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("GetWithCached: %v", err)
		}
		if got == nil || got.Name != "two-sum" {
			t.Fatalf("GetWithCached = %+v", got)
		}
	}
	if fetchCalls != 1 {
		t.Fatalf("fetch called %d times, want 1", fetchCalls)
	}
}

func TestGetWithCachedNullValue(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	fetchCalls := 0
	fetch := func(ctx context.Context) (*testRecord, error) {
		fetchCalls++
		return nil, nil
	}
	isEmpty := func(r *testRecord) bool { return r == nil }
	marshal := func(r *testRecord) string { return "" }
	unmarshal := func(data string) (*testRecord, error) { return nil, nil }

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "record:missing", time.Minute, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("GetWithCached: %v", err)
		}
		if got != nil {
			t.Fatalf("GetWithCached = %+v, want nil", got)
		}
	}
	// The absence itself is cached.
	if fetchCalls != 1 {
		t.Fatalf("fetch called %d times, want 1", fetchCalls)
	}
}

func TestUpdateCachedInvalidates(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "record:1", "stale", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := UpdateCached(ctx, c, "record:1", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("UpdateCached: %v", err)
	}
	if v, _ := c.Get(ctx, "record:1"); v != "" {
		t.Fatalf("cache not invalidated, got %q", v)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 100; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("JitterTTL(%v) = %v, want within 10%% below", ttl, got)
		}
	}
	if got := JitterTTL(0); got != 0 {
		t.Fatalf("JitterTTL(0) = %v, want 0", got)
	}
}
