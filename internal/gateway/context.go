// ABOUTME: Authenticated-identity context for tracking identity through request handlers
// ABOUTME: Provides WithIdentity/IdentityFrom for propagating auth info via context

package gateway

import (
	"context"
)

// Identity holds the authenticated identity attached to a request. It is
// populated by the gateway middleware and read by downstream handlers.
type Identity struct {
	Subject string   // normalized (case-folded) identity string
	Roles   []string // roles resolved at authentication time
}

// HasRole returns true if the identity carries the given role.
func (id *Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

// identityContextKey is the key type for storing Identity in context.Context.
type identityContextKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom retrieves the Identity from the context, returning nil if not
// present.
func IdentityFrom(ctx context.Context) *Identity {
	val := ctx.Value(identityContextKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
