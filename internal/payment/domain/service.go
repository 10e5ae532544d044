package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type SubmitPaymentRequest struct {
	InvoiceID  snowflake.ID
	Method     string
	Reference  string
	Screenshot string
}

// Lifecycle is the only writer of payment-driven invoice transitions.
type Lifecycle interface {
	Submit(ctx context.Context, req SubmitPaymentRequest) (Payment, error)
	Approve(ctx context.Context, paymentID snowflake.ID, actor string) (Payment, error)
	Reject(ctx context.Context, paymentID snowflake.ID, actor, reason string) (Payment, error)
	Delete(ctx context.Context, paymentID snowflake.ID) error
}

var (
	ErrNotFound          = errors.New("payment_not_found")
	ErrInvoiceNotFound   = errors.New("payment_invoice_not_found")
	ErrInvalidTransition = errors.New("invalid_payment_transition")
	ErrInvoiceNotOpen    = errors.New("invoice_not_open")
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrInvalidMethod     = errors.New("invalid_payment_method")
)
