package domain

import (
	"context"
	"errors"
)

// Listener is notified after settings were saved.
type Listener func(ctx context.Context, settings EmailSettings)

type Service interface {
	Get(ctx context.Context) (EmailSettings, error)
	Save(ctx context.Context, settings EmailSettings) (EmailSettings, error)
	Subscribe(listener Listener)
}

var (
	ErrInvalidScheduleTime = errors.New("invalid_schedule_time")
	ErrInvalidInterval     = errors.New("invalid_reminder_interval")
	ErrInvalidSMTPPort     = errors.New("invalid_smtp_port")
)
