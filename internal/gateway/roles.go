// ABOUTME: Role model and pluggable identity resolution for sessiond
// ABOUTME: Maps a verified subject to an Identity with an explicit role set

package gateway

import (
	"context"
	"net/http"
)

// Role names a privilege level an identity can hold.
type Role string

// Supported roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IdentityResolver maps a verified subject to its full Identity. Resolution
// happens after credential verification and is deliberately decoupled from
// it: swapping the resolver never touches token handling.
type IdentityResolver interface {
	Resolve(ctx context.Context, subject string) (*Identity, error)
}

// StaticResolver grants every subject a fixed role set. It is the stand-in
// policy until a directory-backed resolver exists.
type StaticResolver struct {
	Roles []Role
}

// Resolve returns an Identity carrying the configured roles.
func (s *StaticResolver) Resolve(ctx context.Context, subject string) (*Identity, error) {
	roles := make([]string, len(s.Roles))
	for i, r := range s.Roles {
		roles[i] = string(r)
	}
	return &Identity{Subject: subject, Roles: roles}, nil
}

// RequireRole creates an HTTP middleware that rejects requests whose
// authenticated identity lacks the given role. Must be used after the
// gateway middleware.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			if id == nil {
				writeUnauthorized(w)
				return
			}
			if !id.HasRole(role) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
