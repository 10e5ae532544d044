// Package domain contains persistence models for dues invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid              InvoiceStatus = "Unpaid"
	InvoiceStatusOverdue             InvoiceStatus = "Overdue"
	InvoiceStatusPendingVerification InvoiceStatus = "Pending Verification"
	InvoiceStatusPaid                InvoiceStatus = "Paid"
)

// OpenStatuses are the states that block generation of a new invoice.
var OpenStatuses = []InvoiceStatus{
	InvoiceStatusUnpaid,
	InvoiceStatusOverdue,
	InvoiceStatusPendingVerification,
}

// OutstandingStatuses are the states that count toward a member's balance.
var OutstandingStatuses = []InvoiceStatus{
	InvoiceStatusUnpaid,
	InvoiceStatusOverdue,
}

// IsOpen reports whether the status is Unpaid, Overdue or Pending Verification.
func (s InvoiceStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// Invoice is a dues invoice for one billing period.
type Invoice struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	MemberID   snowflake.ID  `gorm:"not null;index" json:"member_id"`
	Period     string        `gorm:"type:text;not null" json:"period"`
	Amount     string        `gorm:"type:text;not null" json:"amount"`
	Status     InvoiceStatus `gorm:"type:text;not null;default:'Unpaid'" json:"status"`
	Due        time.Time     `gorm:"not null" json:"due"`
	Method     string        `gorm:"type:text;not null;default:''" json:"method,omitempty"`
	Reference  string        `gorm:"type:text;not null;default:''" json:"reference,omitempty"`
	Screenshot string        `gorm:"type:text;not null;default:''" json:"screenshot,omitempty"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
