package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/duespay/internal/config"
)

const (
	JobInvoiceGeneration = "invoice_generation"
	JobReminderCheck     = "reminder_check"
)

// Config controls when jobs fire and how long a single run may take.
type Config struct {
	Timezone          string
	InvoiceTime       string
	InvoiceJobEnabled bool
	LockTTL           time.Duration
	JobTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timezone:          "America/New_York",
		InvoiceTime:       "00:05",
		InvoiceJobEnabled: true,
		LockTTL:           15 * time.Minute,
	}
}

// ProvideConfig maps application config onto scheduler config.
func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		Timezone:          sc.Timezone,
		InvoiceTime:       sc.InvoiceTime,
		InvoiceJobEnabled: sc.InvoiceJobEnabled,
		LockTTL:           time.Duration(sc.LockTTLSeconds) * time.Second,
		JobTimeout:        time.Duration(sc.JobTimeoutSeconds) * time.Second,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = defaults.Timezone
	}
	if strings.TrimSpace(c.InvoiceTime) == "" {
		c.InvoiceTime = defaults.InvoiceTime
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout < 0 {
		c.JobTimeout = 0
	}
	return c
}
