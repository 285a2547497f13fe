// ABOUTME: In-memory Store implementation for testing
// ABOUTME: Allows tests to run without a Redis server

package session

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a mutex-guarded in-memory Store. It honors TTLs lazily on
// read and makes GetDel atomic under its lock, matching the contract the
// redis implementation gets from GETDEL. Intended for tests.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]memoryEntry
	sets map[string]memorySet
	now  func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memorySet struct {
	members   map[string]bool
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vals: make(map[string]memoryEntry),
		sets: make(map[string]memorySet),
		now:  time.Now,
	}
}

// SetNow overrides the clock, letting tests advance time past TTLs.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Get returns the string value at key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.vals[key]
	if !ok || expired(e.expiresAt, m.now()) {
		delete(m.vals, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// SetWithTTL writes a value that expires after ttl.
func (m *MemoryStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.vals[key] = e
	return nil
}

// GetDel atomically reads and deletes the value at key.
func (m *MemoryStore) GetDel(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.vals[key]
	if !ok || expired(e.expiresAt, m.now()) {
		delete(m.vals, key)
		return "", ErrNotFound
	}
	delete(m.vals, key)
	return e.value, nil
}

// Del removes a key.
func (m *MemoryStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vals, key)
	delete(m.sets, key)
	return nil
}

// Exists reports whether key holds a value.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.vals[key]; ok && !expired(e.expiresAt, m.now()) {
		return true, nil
	}
	if s, ok := m.sets[key]; ok && !expired(s.expiresAt, m.now()) {
		return true, nil
	}
	return false, nil
}

// SAdd adds a member to the set at key.
func (m *MemoryStore) SAdd(ctx context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok || expired(s.expiresAt, m.now()) {
		s = memorySet{members: make(map[string]bool)}
	}
	s.members[member] = true
	m.sets[key] = s
	return nil
}

// SRem removes a member from the set at key.
func (m *MemoryStore) SRem(ctx context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok || expired(s.expiresAt, m.now()) {
		return nil
	}
	delete(s.members, member)
	return nil
}

// SMembers returns all members of the set at key.
func (m *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok || expired(s.expiresAt, m.now()) {
		return nil, nil
	}
	members := make([]string, 0, len(s.members))
	for member := range s.members {
		members = append(members, member)
	}
	return members, nil
}

// Expire resets the TTL on an existing key.
func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.vals[key]; ok && !expired(e.expiresAt, now) {
		e.expiresAt = now.Add(ttl)
		m.vals[key] = e
	}
	if s, ok := m.sets[key]; ok && !expired(s.expiresAt, now) {
		s.expiresAt = now.Add(ttl)
		m.sets[key] = s
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
