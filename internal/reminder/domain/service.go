package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// SkipReason explains why a dispatch run did nothing.
type SkipReason string

const (
	SkipReasonNone                SkipReason = ""
	SkipReasonAutomationDisabled  SkipReason = "automation_disabled"
	SkipReasonMailerNotConfigured SkipReason = "mailer_not_configured"
)

type MemberError struct {
	MemberID snowflake.ID `json:"member_id"`
	Cause    string       `json:"cause"`
}

// DispatchResult summarizes one reminder run. Skipped counts members owing
// money that were passed over because they are not Active.
type DispatchResult struct {
	SkipReason SkipReason    `json:"skip_reason,omitempty"`
	Eligible   int           `json:"eligible"`
	Gated      int           `json:"gated"`
	Delivered  int           `json:"delivered"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Errors     []MemberError `json:"errors,omitempty"`
}

type Dispatcher interface {
	CheckAndSendReminders(ctx context.Context) (DispatchResult, error)
	SendReminderTo(ctx context.Context, memberID snowflake.ID) (bool, error)
	SendReminderToAllOutstanding(ctx context.Context) (DispatchResult, error)
}

var (
	ErrMailerNotConfigured = errors.New("mailer_not_configured")
	ErrNothingOutstanding  = errors.New("nothing_outstanding")
	ErrMemberNotActive     = errors.New("member_not_active")
)
