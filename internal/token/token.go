// ABOUTME: JWT access-credential signing and verification for sessiond
// ABOUTME: Uses HS256 signing with configurable secret and lifetime

package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum allowed signing secret length in bytes.
// HS256 security degrades sharply below the hash block size.
const MinSecretLength = 32

// ClaimKindAccess is the only credential kind the codec issues or accepts.
const ClaimKindAccess = "access"

// Codec errors
var (
	ErrMalformed      = errors.New("malformed credential")
	ErrExpired        = errors.New("credential expired")
	ErrWrongKind      = errors.New("wrong credential kind")
	ErrMissingSubject = errors.New("missing subject claim")
	ErrSecretTooShort = errors.New("signing secret too short")
)

// Claims is the decoded payload of an access credential.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// RemainingLifetime returns how long the credential is still valid at the
// given instant. Negative when already expired.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Codec issues and verifies signed access credentials. It holds no mutable
// state and is safe for concurrent use.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec creates a Codec signing with the given secret. Issued credentials
// expire after lifetime.
func NewCodec(secret []byte, lifetime time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrSecretTooShort, MinSecretLength, len(secret))
	}
	return &Codec{secret: secret, lifetime: lifetime, now: time.Now}, nil
}

// Issue builds and signs an access credential for the subject. The subject is
// case-folded before signing so key derivation downstream sees one spelling.
// Extra claims are merged in but cannot override the reserved claims.
func (c *Codec) Issue(subject string, extra map[string]any) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}

	now := c.now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = strings.ToLower(subject)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(c.lifetime).Unix()
	claims["kind"] = ClaimKindAccess

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// Verify validates the credential and returns its claims.
// Failure modes are distinguishable via errors.Is: ErrExpired, ErrWrongKind,
// ErrMissingSubject, and ErrMalformed for every structural or cryptographic
// problem (bad signature included).
func (c *Codec) Verify(credential string) (*Claims, error) {
	tok, err := jwt.Parse(credential, c.keyFunc, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !tok.Valid {
		return nil, ErrMalformed
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	if kind, _ := mc["kind"].(string); kind != ClaimKindAccess {
		return nil, ErrWrongKind
	}

	claims := claimsFromMap(mc)
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// DecodeIgnoringExpiry validates a credential exactly like Verify except
// that expiry is waived: the signature must check out and the kind must be
// "access", but a token past its exp still yields its claims. Returns nil on
// any other failure. Used only by logout to recover the subject and expiry
// from an otherwise-expired token for revocation bookkeeping; never for
// access-control decisions. An unsigned or foreign-signed token yields nil,
// so a forged subject can never drive session invalidation.
func (c *Codec) DecodeIgnoringExpiry(credential string) *Claims {
	tok, err := jwt.Parse(credential, c.keyFunc, jwt.WithTimeFunc(c.now))
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil
	}
	if tok == nil {
		return nil
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	if kind, _ := mc["kind"].(string); kind != ClaimKindAccess {
		return nil
	}
	return claimsFromMap(mc)
}

func (c *Codec) keyFunc(tok *jwt.Token) (any, error) {
	if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
	}
	return c.secret, nil
}

// reserved claim names excluded from Extra
var reservedClaims = map[string]bool{"sub": true, "iat": true, "exp": true, "kind": true}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	claims := &Claims{}
	claims.Subject, _ = mc["sub"].(string)

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	for k, v := range mc {
		if reservedClaims[k] {
			continue
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any)
		}
		claims.Extra[k] = v
	}
	return claims
}
