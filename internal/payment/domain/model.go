package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusRejected  Status = "Rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Payment is a member's submitted proof of payment against one invoice.
type Payment struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID       snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	MemberID        snowflake.ID `json:"member_id" gorm:"not null;index"`
	Amount          string       `json:"amount" gorm:"type:text;not null"`
	Method          string       `json:"method" gorm:"type:text;not null;default:''"`
	Reference       string       `json:"reference,omitempty" gorm:"type:text;not null;default:''"`
	Screenshot      string       `json:"screenshot,omitempty" gorm:"type:text;not null;default:''"`
	Status          Status       `json:"status" gorm:"type:text;not null;default:'Pending'"`
	PaidAt          time.Time    `json:"paid_at" gorm:"not null"`
	ApprovedBy      string       `json:"approved_by,omitempty" gorm:"type:text;not null;default:''"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty" gorm:"type:text;not null;default:''"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty" gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }
