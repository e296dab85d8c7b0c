package dispatch

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger writes messages to a structured log instead of delivering them.
// Intended for development; the logged body contains the recovery code, so
// never wire it in production.
type Logger struct {
	log zerolog.Logger
}

// NewLogger returns a log-backed sender.
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "dispatch").Logger()}
}

func (l *Logger) Send(_ context.Context, destination, subject, body string) error {
	l.log.Info().
		Str("destination", destination).
		Str("subject", subject).
		Str("body", body).
		Msg("message dispatched")
	return nil
}
