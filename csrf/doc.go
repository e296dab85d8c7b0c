// Package csrf implements the double-submit anti-forgery check used by the
// recovery flow. The server holds the canonical token in the recovery
// session; the client echoes a copy back in a header or form field, and
// validation requires a constant-time match with either copy.
//
// The package never logs token values and has no storage of its own;
// session placement is the caller's job.
package csrf
