package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// tokenBytes is the entropy per token. The encoded form is 43 characters of
// unpadded base64url.
const tokenBytes = 32

// ErrMismatch reports that neither the header nor the body copy matched the
// session-held token.
var ErrMismatch = errors.New("csrf token mismatch")

// NewToken generates a fresh anti-forgery token. Callers store it as the
// session's current token, overwriting any prior one.
func NewToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Validate accepts when either supplied copy equals the session-held token.
// Both comparisons always run so that a miss on the header copy does not
// shortcut the timing of the body comparison. An empty session token rejects
// everything: a session that never rendered a form has nothing to validate
// against.
func Validate(sessionToken, headerToken, bodyToken string) error {
	if sessionToken == "" {
		return ErrMismatch
	}

	headerOK := constantTimeEquals(sessionToken, headerToken)
	bodyOK := constantTimeEquals(sessionToken, bodyToken)

	if headerOK || bodyOK {
		return nil
	}
	return ErrMismatch
}

func constantTimeEquals(want, got string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
