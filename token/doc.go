// Package token issues and verifies the signed, time-bounded tokens that
// bind a recovery session to the account it was opened for. Tokens are
// HMAC-SHA-512 signed JWTs carrying issuer, audience, the standard time
// claims, and a small caller-defined data map.
//
// Verification checks the signature before trusting any claim. Decode
// failures are distinguishable ([ErrExpired], [ErrNotYetValid],
// [ErrBadSignature], [ErrMalformed]) so callers can message users precisely
// without leaking cryptographic detail.
//
// Tokens are stateless: there is no revocation list. Short TTLs are the
// compromise mitigation; flows that need a second marker track it in their
// own session state.
package token
