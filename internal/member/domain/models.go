package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

const (
	SubscriptionLifetime     = "Lifetime"
	SubscriptionYearlyJanaza = "Yearly + Janaza Fund"
)

// Member is a dues-paying member. Balance is derived from invoices and is
// only ever written by the balance calculator.
type Member struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"not null" json:"name"`
	Email            string       `gorm:"not null" json:"email"`
	Status           Status       `gorm:"not null;index" json:"status"`
	SubscriptionType string       `gorm:"column:subscription_type;not null" json:"subscription_type"`
	Balance          string       `gorm:"not null;default:'$0'" json:"balance"`
	StartDate        *time.Time   `gorm:"column:start_date" json:"start_date,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Member) TableName() string { return "members" }
