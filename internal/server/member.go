package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
)

type createMemberRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	SubscriptionType string `json:"subscription_type"`
	Status           string `json:"status"`
	StartDate        string `json:"start_date"`
}

func (s *Server) CreateMember(c *gin.Context) {
	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalTime(req.StartDate)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	resp, err := s.memberSvc.Create(c.Request.Context(), memberdomain.CreateMemberRequest{
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		SubscriptionType: strings.TrimSpace(req.SubscriptionType),
		Status:           memberdomain.Status(strings.TrimSpace(req.Status)),
		StartDate:        startDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetMemberByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.memberSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
