package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type evalCall struct {
	script string
	keys   []string
	args   []interface{}
}

type fakeRedisScripter struct {
	calls     []evalCall
	evalVal   interface{}
	evalErr   error
	existsN   int64
	existsErr error
	lastExist []string
}

func (f *fakeRedisScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.calls = append(f.calls, evalCall{script: script, keys: keys, args: args})
	cmd := redis.NewCmd(ctx)
	if f.evalErr != nil {
		cmd.SetErr(f.evalErr)
		return cmd
	}
	cmd.SetVal(f.evalVal)
	return cmd
}

func (f *fakeRedisScripter) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.lastExist = keys
	cmd := redis.NewIntCmd(ctx)
	if f.existsErr != nil {
		cmd.SetErr(f.existsErr)
		return cmd
	}
	cmd.SetVal(f.existsN)
	return cmd
}

func TestMemoryRefreshTokenStore_ExpiryUsesClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newMemoryRefreshTokenStore(func() time.Time { return now })

	if err := store.Store("jti-1", 42, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}
	if ok, _ := store.Exists("jti-1"); !ok {
		t.Fatalf("expected live token")
	}

	now = now.Add(time.Hour)
	if ok, _ := store.Exists("jti-1"); ok {
		t.Fatalf("expected token expired at its ttl")
	}
	if _, ok := store.byUser[42]; ok {
		t.Fatalf("expected user index cleaned after expiry")
	}
}

func TestMemoryRefreshTokenStore_RevokeUser(t *testing.T) {
	store := newMemoryRefreshTokenStore(func() time.Time { return time.Now().UTC() })
	for _, jti := range []string{"phone", "laptop"} {
		if err := store.Store(jti, 7, time.Hour); err != nil {
			t.Fatalf("store %s: %v", jti, err)
		}
	}
	if err := store.Store("other-user", 8, time.Hour); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := store.Revoke("phone"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	n, err := store.RevokeUser(7)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 remaining session revoked, got %d, %v", n, err)
	}
	if ok, _ := store.Exists("laptop"); ok {
		t.Fatalf("expected laptop session revoked")
	}
	if ok, _ := store.Exists("other-user"); !ok {
		t.Fatalf("expected other users untouched")
	}
	if n, _ := store.RevokeUser(7); n != 0 {
		t.Fatalf("expected nothing left, got %d", n)
	}
}

func TestMemoryRefreshTokenStore_EmptyJTI(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	if err := store.Store("  ", 1, time.Minute); !errors.Is(err, errEmptyJTI) {
		t.Fatalf("expected errEmptyJTI, got %v", err)
	}
}

func TestRedisRefreshTokenStore_Keys(t *testing.T) {
	fake := &fakeRedisScripter{evalVal: int64(1), existsN: 1}
	store := &redisRefreshTokenStore{client: fake, prefix: "auth:refresh:", timeout: time.Second}

	if err := store.Store(" j1 ", 42, 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	call := fake.calls[0]
	if call.script != refreshStoreScript {
		t.Fatalf("expected store script")
	}
	if len(call.keys) != 2 || call.keys[0] != "auth:refresh:jti:j1" || call.keys[1] != "auth:refresh:user:42" {
		t.Fatalf("unexpected keys %+v", call.keys)
	}
	if call.args[0] != int64(42) || call.args[1] != (30*24*time.Hour).Milliseconds() || call.args[2] != "j1" {
		t.Fatalf("unexpected args %+v", call.args)
	}

	if ok, err := store.Exists("j1"); err != nil || !ok {
		t.Fatalf("expected exists, got %v, %v", ok, err)
	}
	if fake.lastExist[0] != "auth:refresh:jti:j1" {
		t.Fatalf("unexpected exists key %+v", fake.lastExist)
	}

	if err := store.Revoke("j1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	call = fake.calls[1]
	if call.script != refreshRevokeScript || call.keys[0] != "auth:refresh:jti:j1" || call.args[0] != "auth:refresh:user:" {
		t.Fatalf("unexpected revoke call %+v", call)
	}
}

func TestRedisRefreshTokenStore_RevokeUser(t *testing.T) {
	fake := &fakeRedisScripter{evalVal: int64(3)}
	store := &redisRefreshTokenStore{client: fake, prefix: "auth:refresh:", timeout: time.Second}

	n, err := store.RevokeUser(9)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 revoked, got %d, %v", n, err)
	}
	call := fake.calls[0]
	if call.script != refreshRevokeUserScript || call.keys[0] != "auth:refresh:user:9" || call.args[0] != "auth:refresh:jti:" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestRedisRefreshTokenStore_Errors(t *testing.T) {
	fake := &fakeRedisScripter{evalErr: errors.New("redis down"), existsErr: errors.New("redis down")}
	store := &redisRefreshTokenStore{client: fake, prefix: "auth:refresh:", timeout: time.Second}

	if err := store.Store("", 1, time.Minute); !errors.Is(err, errEmptyJTI) {
		t.Fatalf("expected errEmptyJTI, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("empty jti must not reach redis")
	}
	if err := store.Store("j2", 1, time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := store.Exists("j2"); err == nil {
		t.Fatalf("expected exists error")
	}
	if _, err := store.RevokeUser(1); err == nil {
		t.Fatalf("expected revoke user error")
	}
}
