package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// MemberError records why one member could not be processed in a batch run.
type MemberError struct {
	MemberID snowflake.ID `json:"member_id"`
	Cause    string       `json:"cause"`
}

// GenerationResult summarizes one invoice generation pass.
type GenerationResult struct {
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Errors  []MemberError `json:"errors,omitempty"`
}

// OverdueResult summarizes one overdue sweep.
type OverdueResult struct {
	Marked int           `json:"marked"`
	Errors []MemberError `json:"errors,omitempty"`
}

type Generator interface {
	GenerateDueInvoices(ctx context.Context) (GenerationResult, error)
	MarkOverdueInvoices(ctx context.Context) (OverdueResult, error)
}

var (
	ErrNotFound      = errors.New("invoice_not_found")
	ErrUnknownPlan   = errors.New("unknown_subscription_plan")
	ErrInvalidAmount = errors.New("invalid_amount")
)
