package email

import (
	"context"
	"errors"
	"strings"
)

// Message is one outbound email with both an HTML and a plain text body.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// Factory builds a Provider from mailer settings. Settings are edited at
// runtime, so callers build a provider per run instead of holding one.
type Factory func(cfg Config) Provider

var (
	ErrNoRecipient = errors.New("email_no_recipient")
	ErrNoSender    = errors.New("email_no_sender")
)

type NoOpProvider struct{}

func (NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}

func validate(msg Message, from string) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	if strings.TrimSpace(from) == "" {
		return ErrNoSender
	}
	return nil
}
