package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GenerateInvoices runs one generation pass followed by the overdue sweep,
// the same work the daily invoice job does.
func (s *Server) GenerateInvoices(c *gin.Context) {
	ctx := c.Request.Context()

	generated, err := s.generator.GenerateDueInvoices(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	overdue, err := s.generator.MarkOverdueInvoices(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"generation": generated,
		"overdue":    overdue,
	}})
}

func (s *Server) CheckReminders(c *gin.Context) {
	resp, err := s.reminders.CheckAndSendReminders(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SendMemberReminder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	sent, err := s.reminders.SendReminderTo(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"member_id": id.String(),
		"sent":      sent,
	}})
}

func (s *Server) SendOutstandingReminders(c *gin.Context) {
	resp, err := s.reminders.SendReminderToAllOutstanding(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RunJob fires a scheduler job through the same lock and metrics path as cron.
func (s *Server) RunJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	job := strings.TrimSpace(c.Param("job"))
	if err := s.scheduler.RunNow(c.Request.Context(), job); err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("scheduler.job.triggered", zap.String("job", job))
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"job": job}})
}
