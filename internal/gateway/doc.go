// Package gateway is the single enforcement point for sessiond.
//
// # Request gating
//
// Every inbound request passes through Middleware. Requests to exempt paths
// (auth endpoints, health checks, documentation) and CORS preflights skip
// authentication entirely. Everything else must present a Bearer access
// credential that (1) has no live revocation entry and (2) verifies against
// the signing secret. The revocation lookup runs first: a revoked credential
// is rejected even while its signature and expiry are still valid.
//
// All authentication failures collapse to one 401 body. The internal
// distinction (missing header, malformed, expired, revoked) is logged but
// never surfaced, so responses give a probing client nothing to learn from.
// A store failure during verification is a 503, never a silent pass.
//
// # Identity propagation
//
// On success the middleware resolves the subject through an IdentityResolver
// and attaches the Identity to the request context. Handlers read it with
// IdentityFrom; RequireRole builds role gates on top.
//
// # Session endpoints
//
// Endpoints (login, refresh, logout) are the only code that mutates the
// refresh ledger and the revocation register. The refresh token travels in an
// HTTP-only cookie scoped to the refresh endpoint; rotation is single-use and
// a replayed cookie earns a 401. Logout is best-effort and always 204.
package gateway
