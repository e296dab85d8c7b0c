package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
)

// SMTPConfig points the sender at a mail relay. Auth may be nil for relays
// that accept unauthenticated submission on a trusted network.
type SMTPConfig struct {
	Addr string
	From string
	Auth smtp.Auth
}

// SMTP delivers messages over a mail relay. The context bounds each
// delivery; the engine supplies its dispatch timeout there.
type SMTP struct {
	config SMTPConfig
}

// NewSMTP validates cfg and returns a sender.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Addr == "" {
		return nil, errors.New("smtp address required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}
	return &SMTP{config: cfg}, nil
}

// Send submits one message. net/smtp has no context support, so the send
// runs in its own goroutine and the context abandons it on expiry; the
// engine treats delivery as best-effort either way.
func (s *SMTP) Send(ctx context.Context, destination, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.config.From, destination, subject, body)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.config.Addr, s.config.Auth, s.config.From, []string{destination}, []byte(msg))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
