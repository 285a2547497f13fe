// Package session manages the mutable half of the authentication state:
// refresh-token records and the access-credential revocation denylist, both
// held in a shared TTL key-value store.
//
// # Store layout
//
//	refresh:<token>                        JSON {identity, createdAt}, TTL = refresh lifetime
//	identity-refresh-index:<identity>      set of live tokens, TTL refreshed on write
//	revoked-access:<sha256(credential)>    "1", TTL = remaining credential lifetime
//
// # Concurrency
//
// The process holds no shared session state of its own. All coordination is
// delegated to the store's atomic primitives; in particular Rotate rides on
// an indivisible read-and-delete so a refresh token can be consumed exactly
// once, no matter how many rotations race on it. Everything else tolerates
// benign races: deleting a record twice or writing a revocation twice is
// harmless.
//
// Two Store implementations exist: RedisStore for production and MemoryStore
// for tests. Both are constructed explicitly and injected; there is no
// package-level client.
package session
