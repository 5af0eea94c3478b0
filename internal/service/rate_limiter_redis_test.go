package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     []interface{}
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func newTestRedisLimiter(mock *mockRedisEvaler, window time.Duration, max int) *redisRateLimiter {
	return &redisRateLimiter{client: mock, window: window, max: max, prefix: "rl:auth:"}
}

func TestRedisRateLimiter_Take(t *testing.T) {
	t.Run("within limit reports remaining", func(t *testing.T) {
		mock := &mockRedisEvaler{result: []interface{}{int64(2), int64(840000)}}
		d := newTestRedisLimiter(mock, 15*time.Minute, 3).Take(" 2001:DB8::1 ")
		if !d.Allowed || d.Limit != 3 || d.Remaining != 1 {
			t.Fatalf("unexpected decision %+v", d)
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "rl:auth:2001:db8::1" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != int64(900000) {
			t.Fatalf("expected window in ms, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisTakeScript {
			t.Fatalf("expected take script")
		}
	})

	t.Run("over limit carries retry after from key ttl", func(t *testing.T) {
		mock := &mockRedisEvaler{result: []interface{}{int64(4), int64(42000)}}
		d := newTestRedisLimiter(mock, time.Minute, 3).Take("10.0.0.1")
		if d.Allowed || d.Remaining != 0 || d.RetryAfter != 42*time.Second {
			t.Fatalf("unexpected decision %+v", d)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		mock := &mockRedisEvaler{}
		if d := newTestRedisLimiter(mock, time.Minute, 3).Take("   "); d.Allowed {
			t.Fatalf("expected empty key to be rejected")
		}
		if mock.lastScript != "" {
			t.Fatalf("empty key must not reach redis")
		}
	})

	t.Run("redis error fails open without counts", func(t *testing.T) {
		mock := &mockRedisEvaler{err: errors.New("redis down")}
		d := newTestRedisLimiter(mock, time.Minute, 3).Take("10.0.0.1")
		if !d.Allowed || d.Remaining != -1 {
			t.Fatalf("expected fail-open, got %+v", d)
		}
	})

	t.Run("nil receiver fails open", func(t *testing.T) {
		var l *redisRateLimiter
		if !l.Take("10.0.0.1").Allowed {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})
}

func TestMemoryRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newMemoryRateLimiter(time.Minute, 2, func() time.Time { return now })

	if d := l.Take("ip"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("unexpected first decision %+v", d)
	}
	now = now.Add(20 * time.Second)
	if d := l.Take("ip"); !d.Allowed || d.Remaining != 0 {
		t.Fatalf("unexpected second decision %+v", d)
	}
	now = now.Add(10 * time.Second)
	d := l.Take("ip")
	if d.Allowed || d.RetryAfter != 30*time.Second {
		t.Fatalf("expected denial until the first hit leaves the window, got %+v", d)
	}
	if !l.Take("other").Allowed {
		t.Fatalf("expected independent keys")
	}

	now = now.Add(31 * time.Second)
	if !l.Take("ip").Allowed {
		t.Fatalf("expected hit allowed once the oldest entry expired")
	}
}

func TestMemoryRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newMemoryRateLimiter(time.Minute, 5, func() time.Time { return now })
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		l.Take(ip)
	}

	now = now.Add(2 * time.Minute)
	l.Take("10.0.0.9")

	if len(l.hits) != 1 {
		t.Fatalf("expected idle keys evicted, still tracking %d", len(l.hits))
	}
	if _, ok := l.hits["10.0.0.9"]; !ok {
		t.Fatalf("expected current key tracked")
	}
}
