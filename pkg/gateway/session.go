package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore is the auth callback's session contract (spec.md §4.4):
// claims are written once on successful OIDC exchange, keyed by a
// cookie-bound session id, and read on every subsequent request whose
// route declares rib_input_type.request.auth.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (map[string]interface{}, bool, error)
	Put(ctx context.Context, sessionID string, claims map[string]interface{}, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// memorySessionStore is the default SessionStore for single-host
// gateways and tests: a mutex-guarded map with lazy TTL expiry.
type memorySessionStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
}

type memoryEntry struct {
	claims  map[string]interface{}
	expires time.Time
}

// NewMemorySessionStore returns an in-process SessionStore.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{data: make(map[string]memoryEntry)}
}

func (s *memorySessionStore) Get(_ context.Context, sessionID string) (map[string]interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[sessionID]
	if !ok || time.Now().After(e.expires) {
		delete(s.data, sessionID)
		return nil, false, nil
	}
	return e.claims, true, nil
}

func (s *memorySessionStore) Put(_ context.Context, sessionID string, claims map[string]interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = memoryEntry{claims: claims, expires: time.Now().Add(ttl)}
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// redisSessionStore backs multi-host gateways where every node must see
// the same session claims regardless of which node terminated the OIDC
// redirect (adopted from oriys-nova's go-redis dependency, per
// SPEC_FULL.md's gateway auth section).
type redisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore wraps an already-configured *redis.Client.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client, prefix: "fabrik:session:"}
}

func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (map[string]interface{}, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, false, err
	}
	return claims, true, nil
}

func (s *redisSessionStore) Put(ctx context.Context, sessionID string, claims map[string]interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+sessionID, raw, ttl).Err()
}

func (s *redisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.prefix+sessionID).Err()
}
