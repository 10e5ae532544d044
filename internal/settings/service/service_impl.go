package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	"github.com/smallbiznis/duespay/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   config.SchedulerConfig
	clock clock.Clock
	repo  domain.Repository

	// saveMu keeps listeners seeing saves in the order they were stored.
	saveMu    sync.Mutex
	mu        sync.RWMutex
	listeners []domain.Listener
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		cfg:   p.Cfg.Scheduler,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Defaults returns the settings used before an administrator saved any.
func Defaults(cfg config.SchedulerConfig) domain.EmailSettings {
	scheduleTime := strings.TrimSpace(cfg.DefaultReminderTime)
	if _, err := ParseScheduleTime(scheduleTime); err != nil {
		scheduleTime = "09:00"
	}
	interval := cfg.DefaultReminderPeriod
	if interval < 1 {
		interval = 7
	}
	return domain.EmailSettings{
		ID:                domain.SingletonID,
		ScheduleTime:      scheduleTime,
		AutomationEnabled: false,
		ReminderInterval:  interval,
		SMTPPort:          587,
	}
}

func (s *Service) Get(ctx context.Context) (domain.EmailSettings, error) {
	settings, err := s.repo.Get(ctx, s.db)
	if err != nil {
		return domain.EmailSettings{}, fmt.Errorf("load email settings: %w", err)
	}
	if settings == nil {
		return Defaults(s.cfg), nil
	}
	return *settings, nil
}

func (s *Service) Save(ctx context.Context, settings domain.EmailSettings) (domain.EmailSettings, error) {
	if err := Validate(&settings); err != nil {
		return domain.EmailSettings{}, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	settings.UpdatedAt = s.clock.Now()
	if err := s.repo.Upsert(ctx, s.db, &settings); err != nil {
		return domain.EmailSettings{}, fmt.Errorf("save email settings: %w", err)
	}

	s.log.Info("settings.saved",
		zap.String("schedule_time", settings.ScheduleTime),
		zap.Bool("automation_enabled", settings.AutomationEnabled),
		zap.Int("reminder_interval", settings.ReminderInterval),
		zap.Bool("mailer_configured", settings.MailerConfigured()),
	)

	s.mu.RLock()
	listeners := append([]domain.Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener(ctx, settings)
	}
	return settings, nil
}

func (s *Service) Subscribe(listener domain.Listener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// Validate normalizes settings in place and rejects values the scheduler cannot use.
func Validate(settings *domain.EmailSettings) error {
	settings.ScheduleTime = strings.TrimSpace(settings.ScheduleTime)
	if _, err := ParseScheduleTime(settings.ScheduleTime); err != nil {
		return err
	}
	if settings.ReminderInterval < 1 {
		return domain.ErrInvalidInterval
	}
	if settings.SMTPPort == 0 {
		settings.SMTPPort = 587
	}
	if settings.SMTPPort < 0 || settings.SMTPPort > 65535 {
		return domain.ErrInvalidSMTPPort
	}
	settings.SMTPHost = strings.TrimSpace(settings.SMTPHost)
	settings.FromAddress = strings.TrimSpace(settings.FromAddress)
	settings.FromName = strings.TrimSpace(settings.FromName)
	return nil
}

// ScheduleTime is a wall-clock time of day.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// ParseScheduleTime parses "HH:MM" in 24-hour form.
func ParseScheduleTime(raw string) (ScheduleTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("%w: %q", domain.ErrInvalidScheduleTime, raw)
	}
	return ScheduleTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Before reports whether t is strictly earlier in the day than other.
func (t ScheduleTime) Before(other ScheduleTime) bool {
	return t.Hour*60+t.Minute < other.Hour*60+other.Minute
}

// CronSpec renders the daily cron expression for the time of day.
func (t ScheduleTime) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}
