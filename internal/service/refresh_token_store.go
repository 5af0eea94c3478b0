package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore registra los jti de refresh tokens vigentes, indexados por
// usuario para poder cerrar todas sus sesiones de una vez.
type RefreshTokenStore interface {
	Store(jti string, userID int64, ttl time.Duration) error
	Exists(jti string) (bool, error)
	Revoke(jti string) error
	// RevokeUser elimina todos los jti del usuario y devuelve cuántos había.
	RevokeUser(userID int64) (int, error)
}

var errEmptyJTI = errors.New("refresh token id is empty")

type refreshEntry struct {
	userID    int64
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshEntry
	byUser map[int64]map[string]struct{}
	now    func() time.Time
}

// NewMemoryRefreshTokenStore sirve para una sola instancia; sin Redis las
// sesiones no sobreviven a un reinicio.
func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return newMemoryRefreshTokenStore(func() time.Time { return time.Now().UTC() })
}

func newMemoryRefreshTokenStore(now func() time.Time) *memoryRefreshTokenStore {
	return &memoryRefreshTokenStore{
		tokens: make(map[string]refreshEntry),
		byUser: make(map[int64]map[string]struct{}),
		now:    now,
	}
}

func (s *memoryRefreshTokenStore) Store(jti string, userID int64, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return errEmptyJTI
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[jti] = refreshEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		s.byUser[userID] = set
	}
	set[jti] = struct{}{}
	return nil
}

func (s *memoryRefreshTokenStore) Exists(jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.drop(jti, entry.userID)
		return false, nil
	}
	return true, nil
}

func (s *memoryRefreshTokenStore) Revoke(jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tokens[jti]; ok {
		s.drop(jti, entry.userID)
	}
	return nil
}

func (s *memoryRefreshTokenStore) RevokeUser(userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.byUser[userID]
	for jti := range set {
		delete(s.tokens, jti)
	}
	delete(s.byUser, userID)
	return len(set), nil
}

// drop asume s.mu tomado.
func (s *memoryRefreshTokenStore) drop(jti string, userID int64) {
	delete(s.tokens, jti)
	if set, ok := s.byUser[userID]; ok {
		delete(set, jti)
		if len(set) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// Los scripts mantienen el jti y el índice del usuario consistentes entre sí.
// El set del usuario vive tanto como su token más largo.
const (
	refreshStoreScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`
	refreshRevokeScript = `
local uid = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1])
if uid then
  redis.call("SREM", ARGV[1] .. uid, ARGV[2])
end
return 1
`
	refreshRevokeUserScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return #ids
`
)

type redisScripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisRefreshTokenStore struct {
	client  redisScripter
	prefix  string
	timeout time.Duration
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{
		client:  client,
		prefix:  "auth:refresh:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisRefreshTokenStore) tokenKey(jti string) string {
	return s.prefix + "jti:" + jti
}

func (s *redisRefreshTokenStore) userKey(userID int64) string {
	return s.prefix + "user:" + strconv.FormatInt(userID, 10)
}

func (s *redisRefreshTokenStore) Store(jti string, userID int64, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return errEmptyJTI
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	keys := []string{s.tokenKey(jti), s.userKey(userID)}
	return s.client.Eval(ctx, refreshStoreScript, keys, userID, ttl.Milliseconds(), jti).Err()
}

func (s *redisRefreshTokenStore) Exists(jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisRefreshTokenStore) Revoke(jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Eval(ctx, refreshRevokeScript, []string{s.tokenKey(jti)}, s.prefix+"user:", jti).Err()
}

func (s *redisRefreshTokenStore) RevokeUser(userID int64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.client.Eval(ctx, refreshRevokeUserScript, []string{s.userKey(userID)}, s.prefix+"jti:").Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}
