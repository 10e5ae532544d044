package email

import (
	"strings"

	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
)

// ConfigFromSettings maps the stored mailer settings onto an SMTP config.
func ConfigFromSettings(s settingsdomain.EmailSettings) Config {
	return Config{
		Host:     strings.TrimSpace(s.SMTPHost),
		Port:     s.SMTPPort,
		Username: s.SMTPUsername,
		Password: s.SMTPPassword,
		From:     strings.TrimSpace(s.FromAddress),
		FromName: strings.TrimSpace(s.FromName),
		UseSSL:   s.SMTPUseSSL,
	}
}
