// ABOUTME: Refresh-token ledger for sessiond
// ABOUTME: Creation, atomic single-use rotation, and bulk invalidation of refresh records

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRefreshNotFound is returned by Rotate for any token without a live
// record: never issued, already consumed, expired, or replayed. The caller
// cannot distinguish those cases and must not try.
var ErrRefreshNotFound = errors.New("refresh token not found")

// store key prefixes
const (
	refreshKeyPrefix = "refresh:"
	indexKeyPrefix   = "identity-refresh-index:"
)

// refreshRecord is the JSON value stored per refresh token.
type refreshRecord struct {
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger manages refresh-token records in the shared session store. A record
// exists from Create until it is consumed by Rotate, swept by InvalidateAll,
// or expires naturally; it can be consumed exactly once.
type Ledger struct {
	store    Store
	lifetime time.Duration
	logger   *slog.Logger
}

// NewLedger creates a Ledger. lifetime bounds both the refresh records and
// the per-identity index.
func NewLedger(store Store, lifetime time.Duration, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, lifetime: lifetime, logger: logger}
}

func refreshKey(token string) string {
	return refreshKeyPrefix + token
}

func indexKey(identity string) string {
	return indexKeyPrefix + strings.ToLower(identity)
}

// Create generates an unpredictable refresh token for identity, stores its
// record with the session lifetime, and indexes it under the identity for
// bulk invalidation. The index TTL is refreshed on every write so it outlives
// every token it tracks.
func (l *Ledger) Create(ctx context.Context, identity string) (string, error) {
	identity = strings.ToLower(identity)
	token := fmt.Sprintf("refresh-%s-%s", identity, uuid.NewString())

	record, err := json.Marshal(refreshRecord{Identity: identity, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal refresh record: %w", err)
	}

	if err := l.store.SetWithTTL(ctx, refreshKey(token), string(record), l.lifetime); err != nil {
		return "", fmt.Errorf("store refresh record: %w", err)
	}

	key := indexKey(identity)
	if err := l.store.SAdd(ctx, key, token); err != nil {
		return "", fmt.Errorf("index refresh token: %w", err)
	}
	if err := l.store.Expire(ctx, key, l.lifetime); err != nil {
		return "", fmt.Errorf("refresh index ttl: %w", err)
	}

	return token, nil
}

// Rotate atomically consumes oldToken and issues a replacement for the same
// identity. The read-and-delete is a single store operation, so two
// concurrent rotations of one token produce exactly one success and one
// ErrRefreshNotFound.
func (l *Ledger) Rotate(ctx context.Context, oldToken string) (identity, newToken string, err error) {
	raw, err := l.store.GetDel(ctx, refreshKey(oldToken))
	if errors.Is(err, ErrNotFound) {
		return "", "", ErrRefreshNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("consume refresh record: %w", err)
	}

	var record refreshRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil || record.Identity == "" {
		// A corrupt record is dead, not fatal: the delete already happened.
		l.logger.Warn("discarding malformed refresh record", "error", err)
		return "", "", ErrRefreshNotFound
	}

	// Best effort: the record itself is already gone, a stale index entry is
	// harmless and expires with the index.
	if err := l.store.SRem(ctx, indexKey(record.Identity), oldToken); err != nil {
		l.logger.Warn("failed to unindex rotated refresh token", "error", err)
	}

	newToken, err = l.Create(ctx, record.Identity)
	if err != nil {
		return "", "", err
	}
	return record.Identity, newToken, nil
}

// Delete removes one refresh record and its index entry, returning the
// identity it belonged to. Used by logout for the presented cookie.
// Returns ErrRefreshNotFound if there is no live record.
func (l *Ledger) Delete(ctx context.Context, token string) (identity string, err error) {
	raw, err := l.store.GetDel(ctx, refreshKey(token))
	if errors.Is(err, ErrNotFound) {
		return "", ErrRefreshNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete refresh record: %w", err)
	}

	var record refreshRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil || record.Identity == "" {
		return "", ErrRefreshNotFound
	}

	if err := l.store.SRem(ctx, indexKey(record.Identity), token); err != nil {
		l.logger.Warn("failed to unindex deleted refresh token", "error", err)
	}
	return record.Identity, nil
}

// InvalidateAll deletes every outstanding refresh record for identity and the
// index itself. Best effort: a member already consumed by a racing Rotate is
// not an error.
func (l *Ledger) InvalidateAll(ctx context.Context, identity string) error {
	key := indexKey(identity)

	tokens, err := l.store.SMembers(ctx, key)
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}

	for _, token := range tokens {
		if err := l.store.Del(ctx, refreshKey(token)); err != nil {
			l.logger.Warn("failed to delete refresh record during bulk invalidation",
				"identity", identity, "error", err)
		}
	}

	if err := l.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete refresh index: %w", err)
	}
	return nil
}
