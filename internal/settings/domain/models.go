package domain

import (
	"strings"
	"time"
)

// SingletonID is the primary key of the only email_settings row.
const SingletonID = 1

// RedactedPassword replaces a stored SMTP password in API responses.
const RedactedPassword = "********"

// EmailSettings is the admin-editable reminder and mailer configuration.
type EmailSettings struct {
	ID                int       `gorm:"primaryKey" json:"-"`
	ScheduleTime      string    `gorm:"type:text;not null;default:'09:00'" json:"schedule_time"`
	AutomationEnabled bool      `gorm:"not null;default:false" json:"automation_enabled"`
	ReminderInterval  int       `gorm:"not null;default:7" json:"reminder_interval"`
	SMTPHost          string    `gorm:"column:smtp_host;type:text;not null;default:''" json:"smtp_host"`
	SMTPPort          int       `gorm:"column:smtp_port;not null;default:587" json:"smtp_port"`
	SMTPUsername      string    `gorm:"column:smtp_username;type:text;not null;default:''" json:"smtp_username"`
	SMTPPassword      string    `gorm:"column:smtp_password;type:text;not null;default:''" json:"smtp_password,omitempty"`
	SMTPUseSSL        bool      `gorm:"column:smtp_use_ssl;not null;default:false" json:"smtp_use_ssl"`
	FromAddress       string    `gorm:"type:text;not null;default:''" json:"from_address"`
	FromName          string    `gorm:"type:text;not null;default:''" json:"from_name"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

func (EmailSettings) TableName() string { return "email_settings" }

// MailerConfigured reports whether enough SMTP settings exist to send mail.
func (s EmailSettings) MailerConfigured() bool {
	return strings.TrimSpace(s.SMTPHost) != "" &&
		s.SMTPPort > 0 &&
		strings.TrimSpace(s.FromAddress) != ""
}

// Redacted returns a copy safe to return over the API.
func (s EmailSettings) Redacted() EmailSettings {
	if s.SMTPPassword != "" {
		s.SMTPPassword = RedactedPassword
	}
	return s
}
