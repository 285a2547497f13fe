// ABOUTME: Access-credential revocation register for sessiond
// ABOUTME: Denylist keyed by credential fingerprint with TTL bounded to remaining lifetime

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const revokedKeyPrefix = "revoked-access:"

// Fingerprint returns the deterministic one-way digest of a credential string
// used as its store key. The raw bearer token is never written to the store.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Revocations manages the access-credential denylist. An entry's TTL matches
// the credential's remaining lifetime, so the denylist never outgrows the set
// of credentials that are still cryptographically valid.
type Revocations struct {
	store Store
}

// NewRevocations creates a revocation register over the given store.
func NewRevocations(store Store) *Revocations {
	return &Revocations{store: store}
}

func revokedKey(credential string) string {
	return revokedKeyPrefix + Fingerprint(credential)
}

// Revoke marks a credential as rejected for ttl. A non-positive ttl is a
// no-op: the credential is already past its natural expiry.
func (r *Revocations) Revoke(ctx context.Context, credential string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.store.SetWithTTL(ctx, revokedKey(credential), "1", ttl); err != nil {
		return fmt.Errorf("store revocation: %w", err)
	}
	return nil
}

// IsRevoked reports whether the credential has a live revocation entry.
func (r *Revocations) IsRevoked(ctx context.Context, credential string) (bool, error) {
	revoked, err := r.store.Exists(ctx, revokedKey(credential))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}
