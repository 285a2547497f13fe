// ABOUTME: HTTP router assembly for sessiond
// ABOUTME: Mounts auth endpoints, health checks, CORS, and the gating middleware

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DefaultExemptPaths is the exemption set applied when config supplies none:
// the session endpoints themselves, health checks, and documentation.
var DefaultExemptPaths = []string{"/auth", "/healthz", "/docs", "/"}

// RouterConfig carries the request-surface knobs the router needs.
type RouterConfig struct {
	ExemptPaths    []string
	AllowedOrigins []string
}

// NewRouter assembles the full HTTP surface: CORS, the gating middleware,
// session endpoints under /auth, health probes, and a /me endpoint returning
// the authenticated identity (the seam downstream consumers hang off).
func NewRouter(cfg RouterConfig, verifier CredentialVerifier, revocations RevocationChecker, resolver IdentityResolver, endpoints *Endpoints, health http.HandlerFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	exempt := cfg.ExemptPaths
	if len(exempt) == 0 {
		exempt = DefaultExemptPaths
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(Middleware(verifier, revocations, resolver, exempt, logger))

	r.Post("/auth/login", endpoints.HandleLogin)
	r.Post("/auth/refresh", endpoints.HandleRefresh)
	r.Post("/auth/logout", endpoints.HandleLogout)

	// Root pseudo-healthcheck; the deeper probe pings the store.
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	if health != nil {
		r.Get("/healthz", health)
	}

	r.Get("/me", handleMe)

	return r
}

// handleMe returns the authenticated identity, exercising the context the
// middleware publishes.
func handleMe(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		writeUnauthorized(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"subject": id.Subject,
		"roles":   id.Roles,
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers for the
// configured origins. Credentialed requests are allowed because the refresh
// token travels as a cookie.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := func(origin string) bool {
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}

			// Preflight terminates here; the gating middleware also lets
			// OPTIONS through, so ordering is not load-bearing.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
