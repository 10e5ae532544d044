package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
)

type submitPaymentRequest struct {
	InvoiceID  string `json:"invoice_id"`
	Method     string `json:"method"`
	Reference  string `json:"reference"`
	Screenshot string `json:"screenshot"`
}

type paymentDecisionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) SubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceID, err := parseSnowflakeID(req.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice_id"))
		return
	}

	resp, err := s.payments.Submit(c.Request.Context(), paymentdomain.SubmitPaymentRequest{
		InvoiceID:  invoiceID,
		Method:     strings.TrimSpace(req.Method),
		Reference:  strings.TrimSpace(req.Reference),
		Screenshot: strings.TrimSpace(req.Screenshot),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApprovePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, ok := bindDecision(c)
	if !ok {
		return
	}

	resp, err := s.payments.Approve(c.Request.Context(), id, req.Actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, ok := bindDecision(c)
	if !ok {
		return
	}

	resp, err := s.payments.Reject(c.Request.Context(), id, req.Actor, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.payments.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// bindDecision reads the acting admin from the body, falling back to the
// X-Actor header for callers that send no body.
func bindDecision(c *gin.Context) (paymentDecisionRequest, bool) {
	var req paymentDecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return req, false
		}
	}
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		req.Actor = strings.TrimSpace(c.GetHeader("X-Actor"))
	}
	req.Reason = strings.TrimSpace(req.Reason)
	return req, true
}
