// ABOUTME: Login, refresh, and logout HTTP handlers for sessiond
// ABOUTME: The only code allowed to mutate the refresh ledger and revocation register

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/userdb/sessiond/internal/session"
	"github.com/userdb/sessiond/internal/token"
)

const (
	// RefreshCookieName is the name of the refresh-token cookie.
	RefreshCookieName = "refresh_token"

	// RefreshCookiePath scopes the cookie to the refresh endpoint so the
	// refresh token rides along only where it is needed.
	RefreshCookiePath = "/auth/refresh"

	// fallbackRevocationTTL bounds a logout revocation when the credential's
	// expiry cannot be read.
	fallbackRevocationTTL = 30 * time.Second

	// logoutStepTimeout bounds each best-effort store call during logout so a
	// slow store cannot block the 204.
	logoutStepTimeout = 2 * time.Second
)

// RefreshLedger is the mutation surface the endpoints need from the ledger.
type RefreshLedger interface {
	Create(ctx context.Context, identity string) (string, error)
	Rotate(ctx context.Context, oldToken string) (identity, newToken string, err error)
	Delete(ctx context.Context, tok string) (identity string, err error)
	InvalidateAll(ctx context.Context, identity string) error
}

// CredentialIssuer issues access credentials and decodes them for logout
// bookkeeping.
type CredentialIssuer interface {
	Issue(subject string, extra map[string]any) (string, error)
	DecodeIgnoringExpiry(credential string) *token.Claims
}

// Revoker writes access-credential revocations.
type Revoker interface {
	Revoke(ctx context.Context, credential string, ttl time.Duration) error
}

// CredentialChecker verifies a presented identity claim. AllowAllChecker is
// the development stub; a production deployment injects a real verifier here.
type CredentialChecker interface {
	Check(ctx context.Context, username, password string) error
}

// AllowAllChecker accepts every identity claim without verification.
type AllowAllChecker struct{}

// Check always succeeds.
func (AllowAllChecker) Check(ctx context.Context, username, password string) error {
	return nil
}

// Endpoints serves the session-lifecycle HTTP surface.
type Endpoints struct {
	issuer          CredentialIssuer
	ledger          RefreshLedger
	revoker         Revoker
	checker         CredentialChecker
	refreshLifetime time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewEndpoints creates the session endpoints. A nil checker defaults to
// AllowAllChecker.
func NewEndpoints(issuer CredentialIssuer, ledger RefreshLedger, revoker Revoker, checker CredentialChecker, refreshLifetime time.Duration, logger *slog.Logger) *Endpoints {
	if checker == nil {
		checker = AllowAllChecker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoints{
		issuer:          issuer,
		ledger:          ledger,
		revoker:         revoker,
		checker:         checker,
		refreshLifetime: refreshLifetime,
		logger:          logger,
		now:             time.Now,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (e *Endpoints) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     RefreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (e *Endpoints) writeTokenResponse(w http.ResponseWriter, accessToken string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: accessToken, TokenType: "bearer"})
}

// HandleLogin issues a fresh session: a refresh record in the ledger and a
// signed access credential, with the refresh token delivered in an HTTP-only
// cookie scoped to the refresh endpoint.
func (e *Endpoints) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.ToLower(req.Username)

	if err := e.checker.Check(r.Context(), username, req.Password); err != nil {
		e.logger.Info("login rejected", "username", username)
		writeUnauthorized(w)
		return
	}

	refreshToken, err := e.ledger.Create(r.Context(), username)
	if err != nil {
		e.logger.Error("failed to create refresh record", "username", username, "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	accessToken, err := e.issuer.Issue(username, nil)
	if err != nil {
		e.logger.Error("failed to issue access credential", "username", username, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	e.logger.Info("login", "username", username)
	e.setRefreshCookie(w, refreshToken, int(e.refreshLifetime.Seconds()))
	e.writeTokenResponse(w, accessToken)
}

// HandleRefresh rotates the presented refresh token and issues a new access
// credential. A missing, invalid, consumed, or replayed token is one
// indistinguishable 401; this is the replay-detection surface.
func (e *Endpoints) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	identity, newToken, err := e.ledger.Rotate(r.Context(), cookie.Value)
	if errors.Is(err, session.ErrRefreshNotFound) {
		e.logger.Info("refresh rejected", "reason", "not found or replayed")
		writeUnauthorized(w)
		return
	}
	if err != nil {
		e.logger.Error("refresh rotation failed", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	accessToken, err := e.issuer.Issue(identity, nil)
	if err != nil {
		e.logger.Error("failed to issue access credential", "username", identity, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	e.setRefreshCookie(w, newToken, int(e.refreshLifetime.Seconds()))
	e.writeTokenResponse(w, accessToken)
}

// HandleLogout tears down the caller's session best-effort and always
// returns 204. Sub-step failures are logged and swallowed: a logged-out
// client must never be told its logout "failed".
func (e *Endpoints) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var identity string

	// Step 1: consume the presented refresh record, recovering its identity.
	if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		ctx, cancel := context.WithTimeout(r.Context(), logoutStepTimeout)
		owner, err := e.ledger.Delete(ctx, cookie.Value)
		cancel()
		switch {
		case err == nil:
			identity = owner
		case errors.Is(err, session.ErrRefreshNotFound):
			// Already consumed or expired; nothing to do.
		default:
			e.logger.Warn("logout: refresh record delete failed", "error", err)
		}
	}

	// Step 2: revoke the presented access credential for its remaining
	// lifetime. The signature is still verified (only expiry is waived), so
	// an already-expired token yields its subject but a forged one yields
	// nothing.
	if tok, errMsg := extractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		if claims := e.issuer.DecodeIgnoringExpiry(tok); claims != nil {
			ttl := fallbackRevocationTTL
			if !claims.ExpiresAt.IsZero() {
				ttl = claims.RemainingLifetime(e.now())
			}
			ctx, cancel := context.WithTimeout(r.Context(), logoutStepTimeout)
			if err := e.revoker.Revoke(ctx, tok, ttl); err != nil {
				e.logger.Warn("logout: revocation failed", "error", err)
			}
			cancel()
			if identity == "" {
				identity = claims.Subject
			}
		}
	}

	// Step 3: multi-device logout; every other outstanding refresh token for
	// this identity dies too.
	if identity != "" {
		ctx, cancel := context.WithTimeout(r.Context(), logoutStepTimeout)
		if err := e.ledger.InvalidateAll(ctx, identity); err != nil {
			e.logger.Warn("logout: bulk invalidation failed", "identity", identity, "error", err)
		}
		cancel()
		e.logger.Info("logout", "username", identity)
	}

	// Step 4: clear the cookie regardless of what succeeded above.
	e.setRefreshCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}
