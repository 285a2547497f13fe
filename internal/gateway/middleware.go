// ABOUTME: HTTP middleware gating every protected request through credential checks
// ABOUTME: Exempt-path bypass, revocation lookup, signature verification, identity context

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/userdb/sessiond/internal/token"
)

// CredentialVerifier verifies access credentials.
type CredentialVerifier interface {
	Verify(credential string) (*token.Claims, error)
}

// RevocationChecker checks whether an access credential has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, credential string) (bool, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// The scheme is matched case-insensitively per RFC 7235.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	const scheme = "bearer "
	if len(authHeader) < len(scheme) || !strings.EqualFold(authHeader[:len(scheme)], scheme) {
		return "", "invalid authorization header format"
	}
	tok := strings.TrimSpace(authHeader[len(scheme):])
	if tok == "" {
		return "", "empty token"
	}
	return tok, ""
}

// exemptPath reports whether path matches the exemption set: an exact match
// or anything under a listed prefix. A bare "/" exempts only the root, not
// every path.
func exemptPath(exempt []string, path string) bool {
	for _, prefix := range exempt {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeUnauthorized writes the single non-discriminating 401 body. Every
// authentication failure collapses to this response so the error taxonomy
// never leaks to a credential-probing client.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

// Middleware creates the HTTP middleware every inbound request passes
// through. Requests to exempt paths and CORS preflights skip straight
// through; everything else needs a live, unrevoked bearer credential.
// Revocation is checked before signature verification so a revoked but still
// cryptographically valid credential is rejected. On success the resolved
// Identity is attached to the request context.
//
// The middleware never mutates the ledger or the revocation register.
func Middleware(verifier CredentialVerifier, revocations RevocationChecker, resolver IdentityResolver, exempt []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(exempt, r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tok, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Debug("rejecting request", "path", r.URL.Path, "reason", errMsg)
				writeUnauthorized(w)
				return
			}

			revoked, err := revocations.IsRevoked(r.Context(), tok)
			if err != nil {
				// Never treat an unreachable store as "valid".
				logger.Error("revocation check failed", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}
			if revoked {
				logger.Info("rejecting revoked credential", "path", r.URL.Path)
				writeUnauthorized(w)
				return
			}

			claims, err := verifier.Verify(tok)
			if err != nil {
				logger.Debug("rejecting credential", "path", r.URL.Path, "reason", verifyReason(err))
				writeUnauthorized(w)
				return
			}

			id, err := resolver.Resolve(r.Context(), claims.Subject)
			if err != nil {
				logger.Error("identity resolution failed", "subject", claims.Subject, "error", err)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// verifyReason names the internal failure kind for logs only.
func verifyReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrWrongKind):
		return "wrong kind"
	case errors.Is(err, token.ErrMissingSubject):
		return "missing subject"
	default:
		return "malformed"
	}
}
