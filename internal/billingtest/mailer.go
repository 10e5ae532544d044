package billingtest

import (
	"context"
	"sync"
	"testing"

	"github.com/smallbiznis/duespay/internal/providers/email"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mailer records every message handed to it. FailFor makes sends to the
// listed recipients fail with the given error.
type Mailer struct {
	mu      sync.Mutex
	sent    []email.Message
	configs []email.Config
	failFor map[string]error
}

func NewMailer() *Mailer {
	return &Mailer{failFor: map[string]error{}}
}

func (m *Mailer) FailFor(to string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[to] = err
}

// Factory returns an email.Factory whose providers report into m.
func (m *Mailer) Factory() email.Factory {
	return func(cfg email.Config) email.Provider {
		m.mu.Lock()
		m.configs = append(m.configs, cfg)
		m.mu.Unlock()
		return recordingProvider{m: m}
	}
}

func (m *Mailer) Sent() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

func (m *Mailer) Configs() []email.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Config(nil), m.configs...)
}

type recordingProvider struct {
	m *Mailer
}

func (p recordingProvider) Send(ctx context.Context, msg email.Message) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if err, ok := p.m.failFor[msg.To]; ok {
		return err
	}
	p.m.sent = append(p.m.sent, msg)
	return nil
}

// ConfiguredSettings returns settings with a usable mailer.
func ConfiguredSettings(automation bool, interval int) settingsdomain.EmailSettings {
	return settingsdomain.EmailSettings{
		ID:                settingsdomain.SingletonID,
		ScheduleTime:      "09:00",
		AutomationEnabled: automation,
		ReminderInterval:  interval,
		SMTPHost:          "smtp.example.com",
		SMTPPort:          587,
		SMTPUsername:      "billing",
		SMTPPassword:      "secret",
		FromAddress:       "billing@example.com",
		FromName:          "Billing",
	}
}

// SaveSettings writes settings straight to the store.
func SaveSettings(t testing.TB, db *gorm.DB, settings settingsdomain.EmailSettings) {
	t.Helper()
	require.NoError(t, db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&settings).Error)
}
