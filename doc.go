// Package credkit implements the credential recovery core behind a web
// application's forgot-password flow: CSRF token issuance and validation,
// fixed-window rate limiting with Redis-persisted state, signed short-lived
// session tokens, single-use time-limited recovery codes, and the state
// machine that composes them into the end-to-end recovery pipeline.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All durable state lives in Redis; nothing is held in
// process memory, so multiple server instances can share one deployment.
//
// # Architecture boundaries
//
// credkit is the public surface. It exposes [Engine], [Builder], [Config],
// value types, and the sentinel error set. Flow orchestration, window
// accounting, record codecs, and audit dispatch live under internal/ and are
// never exported. The collaborator packages token, csrf, password, captcha,
// and dispatch are importable on their own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its
//     public API.
//   - Render responses or own HTTP framing; callers map sentinel errors to
//     their transport via [HTTPStatus].
//   - Resolve accounts itself; credential storage belongs to the embedding
//     application behind [AccountProvider].
//
// # Failure policy
//
// Security gates fail closed: a Redis outage or captcha transport timeout
// rejects the request. Delivery is best-effort and fails open: a dispatcher
// error is logged and audited but never rolls back a flow step that already
// committed.
package credkit
