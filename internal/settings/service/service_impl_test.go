package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/duespay/internal/billingtest"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"github.com/smallbiznis/duespay/internal/settings/repository"
	settingsservice "github.com/smallbiznis/duespay/internal/settings/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T, scheduler config.SchedulerConfig) settingsdomain.Service {
	t.Helper()
	return settingsservice.New(settingsservice.Params{
		DB:    billingtest.NewDB(t),
		Log:   zap.NewNop(),
		Cfg:   config.Config{Scheduler: scheduler},
		Clock: clock.NewFakeClock(time.Date(2025, time.November, 3, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestGetReturnsDefaultsBeforeFirstSave(t *testing.T) {
	svc := newService(t, config.SchedulerConfig{DefaultReminderTime: "08:15", DefaultReminderPeriod: 14})

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "08:15", got.ScheduleTime)
	assert.Equal(t, 14, got.ReminderInterval)
	assert.False(t, got.AutomationEnabled)
	assert.Equal(t, 587, got.SMTPPort)
	assert.False(t, got.MailerConfigured())
}

func TestDefaultsFallBackOnBadConfig(t *testing.T) {
	got := settingsservice.Defaults(config.SchedulerConfig{DefaultReminderTime: "noon", DefaultReminderPeriod: 0})
	assert.Equal(t, "09:00", got.ScheduleTime)
	assert.Equal(t, 7, got.ReminderInterval)
}

func TestSavePersistsAndNotifiesListeners(t *testing.T) {
	svc := newService(t, config.SchedulerConfig{})
	ctx := context.Background()

	var notified []settingsdomain.EmailSettings
	svc.Subscribe(func(_ context.Context, s settingsdomain.EmailSettings) {
		notified = append(notified, s)
	})
	svc.Subscribe(nil)

	in := billingtest.ConfiguredSettings(true, 10)
	in.ScheduleTime = " 07:30 "
	in.SMTPHost = " smtp.example.com "
	in.SMTPPort = 0

	saved, err := svc.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "07:30", saved.ScheduleTime)
	assert.Equal(t, "smtp.example.com", saved.SMTPHost)
	assert.Equal(t, 587, saved.SMTPPort)

	require.Len(t, notified, 1)
	assert.Equal(t, "07:30", notified[0].ScheduleTime)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.AutomationEnabled)
	assert.Equal(t, 10, loaded.ReminderInterval)
	assert.True(t, loaded.MailerConfigured())

	// A second save updates the singleton row in place.
	in.ReminderInterval = 3
	_, err = svc.Save(ctx, in)
	require.NoError(t, err)
	loaded, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ReminderInterval)
	assert.Len(t, notified, 2)
}

func TestSaveRejectsInvalidSettings(t *testing.T) {
	svc := newService(t, config.SchedulerConfig{})

	cases := []struct {
		name   string
		mutate func(*settingsdomain.EmailSettings)
		want   error
	}{
		{"schedule time", func(s *settingsdomain.EmailSettings) { s.ScheduleTime = "24:61" }, settingsdomain.ErrInvalidScheduleTime},
		{"interval", func(s *settingsdomain.EmailSettings) { s.ReminderInterval = 0 }, settingsdomain.ErrInvalidInterval},
		{"port", func(s *settingsdomain.EmailSettings) { s.SMTPPort = 70000 }, settingsdomain.ErrInvalidSMTPPort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := billingtest.ConfiguredSettings(false, 7)
			tc.mutate(&in)

			_, err := svc.Save(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseScheduleTime(t *testing.T) {
	parsed, err := settingsservice.ParseScheduleTime("09:05")
	require.NoError(t, err)
	assert.Equal(t, "5 9 * * *", parsed.CronSpec())

	_, err = settingsservice.ParseScheduleTime("9am")
	assert.ErrorIs(t, err, settingsdomain.ErrInvalidScheduleTime)

	early, _ := settingsservice.ParseScheduleTime("00:05")
	late, _ := settingsservice.ParseScheduleTime("09:00")
	assert.True(t, early.Before(late))
	assert.False(t, late.Before(early))
	assert.False(t, early.Before(early))
}

func TestConcurrentSavesNotifyInStoredOrder(t *testing.T) {
	svc := newService(t, config.SchedulerConfig{})
	ctx := context.Background()

	var (
		mu   sync.Mutex
		last string
	)
	svc.Subscribe(func(_ context.Context, s settingsdomain.EmailSettings) {
		mu.Lock()
		last = s.ScheduleTime
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(hour int) {
			defer wg.Done()
			in := billingtest.ConfiguredSettings(true, 7)
			in.ScheduleTime = fmt.Sprintf("%02d:30", hour)
			_, err := svc.Save(ctx, in)
			assert.NoError(t, err)
		}(i + 6)
	}
	wg.Wait()

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.ScheduleTime, last)
}
