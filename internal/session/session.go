// Package session issues and validates opaque browser session tokens. The
// raw token lives only in the cookie; the server side keeps a SHA-256 hash
// mapped to the authenticated identity.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"imagestore/pkg/domain"
)

// ErrInvalidSession indicates the token is unknown or expired.
var ErrInvalidSession = errors.New("invalid session")

// Store persists sessions keyed by the hash of an opaque token.
type Store interface {
	New(identity domain.Identity, ttl time.Duration) (token string, err error)
	Get(token string) (domain.Identity, error)
	Delete(token string) error
}

type memorySession struct {
	identity domain.Identity
	expiry   time.Time
}

// MemoryStore keeps sessions in memory. Suitable for tests and single-node
// deployments without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
}

// NewMemoryStore constructs an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memorySession)}
}

// New issues a session token for identity.
func (s *MemoryStore) New(identity domain.Identity, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[tokenHash(token)] = memorySession{
		identity: identity,
		expiry:   time.Now().UTC().Add(ttl),
	}
	s.mu.Unlock()
	return token, nil
}

// Get resolves a token to its identity, expiring lazily.
func (s *MemoryStore) Get(token string) (domain.Identity, error) {
	hash := tokenHash(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hash]
	if !ok {
		return domain.Identity{}, ErrInvalidSession
	}
	if time.Now().UTC().After(sess.expiry) {
		delete(s.sessions, hash)
		return domain.Identity{}, ErrInvalidSession
	}
	return sess.identity, nil
}

// Delete removes the session if present.
func (s *MemoryStore) Delete(token string) error {
	s.mu.Lock()
	delete(s.sessions, tokenHash(token))
	s.mu.Unlock()
	return nil
}

// RedisStore keeps sessions in Redis so restarts and multiple instances
// share them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// New issues a session token for identity.
func (s *RedisStore) New(identity domain.Identity, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, sessionRedisKey(tokenHash(token)), payload, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Get resolves a token to its identity. Expiry is enforced by Redis TTL.
func (s *RedisStore) Get(token string) (domain.Identity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	payload, err := s.client.Get(ctx, sessionRedisKey(tokenHash(token))).Result()
	if err == redis.Nil {
		return domain.Identity{}, ErrInvalidSession
	}
	if err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(payload), &identity); err != nil {
		return domain.Identity{}, ErrInvalidSession
	}
	return identity, nil
}

// Delete removes the session if present.
func (s *RedisStore) Delete(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, sessionRedisKey(tokenHash(token))).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func sessionRedisKey(hash string) string {
	return fmt.Sprintf("imagestore:session:%s", hash)
}
