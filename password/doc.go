// Package password hashes and verifies credentials with argon2id, encoding
// hashes in PHC string format so parameters travel with the digest. Verify
// recomputes with the parameters stored in the hash, which keeps old hashes
// checkable after a cost upgrade; NeedsRehash tells callers when to re-hash
// on the next successful change.
//
// Passwords are treated as raw byte strings. No Unicode normalization is
// applied on either the hash or the verify path.
package password
