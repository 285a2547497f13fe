// ABOUTME: Store interface for shared session state in sessiond
// ABOUTME: Typed surface over the TTL key-value store backing refresh and revocation records

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key does not exist or has expired.
var ErrNotFound = errors.New("not found")

// Store is the typed surface of the shared session store. It carries exactly
// the operations the refresh ledger and revocation register need; callers
// never reach the underlying client directly.
//
// Implementations must make GetDel a single indivisible read-and-delete:
// two concurrent GetDel calls on the same key see exactly one value.
type Store interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL writes a string value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// GetDel atomically reads and deletes the value at key, or ErrNotFound.
	GetDel(ctx context.Context, key string) (string, error)

	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether key currently holds a value.
	Exists(ctx context.Context, key string) (bool, error)

	// SAdd adds a member to the set at key, creating it if needed.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes a member from the set at key. Absent members are ignored.
	SRem(ctx context.Context, key, member string) error

	// SMembers returns all members of the set at key. An absent set is empty,
	// not an error.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire resets the TTL on an existing key. A missing key is ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks store reachability.
	Ping(ctx context.Context) error
}
