package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
)

// updateEmailSettingsRequest is a partial update; omitted fields keep their value.
type updateEmailSettingsRequest struct {
	ScheduleTime      *string `json:"schedule_time"`
	AutomationEnabled *bool   `json:"automation_enabled"`
	ReminderInterval  *int    `json:"reminder_interval"`
	SMTPHost          *string `json:"smtp_host"`
	SMTPPort          *int    `json:"smtp_port"`
	SMTPUsername      *string `json:"smtp_username"`
	SMTPPassword      *string `json:"smtp_password"`
	SMTPUseSSL        *bool   `json:"smtp_use_ssl"`
	FromAddress       *string `json:"from_address"`
	FromName          *string `json:"from_name"`
}

func (s *Server) GetEmailSettings(c *gin.Context) {
	resp, err := s.settingsSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": emailSettingsView(resp)})
}

func (s *Server) UpdateEmailSettings(c *gin.Context) {
	var req updateEmailSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	current, err := s.settingsSvc.Get(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.settingsSvc.Save(ctx, req.apply(current))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": emailSettingsView(resp)})
}

func (r updateEmailSettingsRequest) apply(settings settingsdomain.EmailSettings) settingsdomain.EmailSettings {
	settings.ID = settingsdomain.SingletonID
	if r.ScheduleTime != nil {
		settings.ScheduleTime = *r.ScheduleTime
	}
	if r.AutomationEnabled != nil {
		settings.AutomationEnabled = *r.AutomationEnabled
	}
	if r.ReminderInterval != nil {
		settings.ReminderInterval = *r.ReminderInterval
	}
	if r.SMTPHost != nil {
		settings.SMTPHost = *r.SMTPHost
	}
	if r.SMTPPort != nil {
		settings.SMTPPort = *r.SMTPPort
	}
	if r.SMTPUsername != nil {
		settings.SMTPUsername = *r.SMTPUsername
	}
	// The redacted placeholder echoed back by a client keeps the stored password.
	if r.SMTPPassword != nil && *r.SMTPPassword != settingsdomain.RedactedPassword {
		settings.SMTPPassword = *r.SMTPPassword
	}
	if r.SMTPUseSSL != nil {
		settings.SMTPUseSSL = *r.SMTPUseSSL
	}
	if r.FromAddress != nil {
		settings.FromAddress = *r.FromAddress
	}
	if r.FromName != nil {
		settings.FromName = *r.FromName
	}
	return settings
}

func emailSettingsView(settings settingsdomain.EmailSettings) gin.H {
	return gin.H{
		"settings":          settings.Redacted(),
		"mailer_configured": settings.MailerConfigured(),
	}
}
