// Package memory implements the db contract with a mutex-guarded map.
// It backs tests and single-process runs without a Redis deployment.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/docsift/docsift/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type item struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// Store is an in-memory db.Store.
type Store struct {
	mu    sync.Mutex
	items map[string]item
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{items: make(map[string]item)}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady always succeeds.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Get retrieves a value by key, honoring expiry.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

// Set stores a value without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item{value: append([]byte(nil), value...)}
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item{value: append([]byte(nil), value...), expiresAt: time.Now().Add(ttl)}
	return nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok, nil
}

// IncrBy increments an integer-encoded key.
func (s *Store) IncrBy(_ context.Context, key string, val int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if it, ok := s.live(key); ok {
		n, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return &db.Error{Op: db.OpIncrBy, Err: err}
		}
		current = n
	}
	prev := s.items[key]
	prev.value = []byte(strconv.FormatInt(current+val, 10))
	s.items[key] = prev
	return nil
}

// Expire sets TTL on an existing key.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.live(key)
	if !ok {
		return nil
	}
	if nx && !it.expiresAt.IsZero() {
		return nil
	}
	it.expiresAt = time.Now().Add(ttl)
	s.items[key] = it
	return nil
}

// live returns the item if present and not expired, lazily evicting expired
// entries. Caller holds the lock.
func (s *Store) live(key string) (item, bool) {
	it, ok := s.items[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		delete(s.items, key)
		return item{}, false
	}
	return it, true
}
