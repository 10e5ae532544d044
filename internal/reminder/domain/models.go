package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ReminderType string

const (
	ReminderTypeUpcoming ReminderType = "upcoming"
	ReminderTypeOverdue  ReminderType = "overdue"
)

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "Delivered"
	DeliveryStatusFailed    DeliveryStatus = "Failed"
)

// Trigger records what caused a reminder attempt.
type Trigger string

const (
	TriggerScheduled   Trigger = "scheduled"
	TriggerManual      Trigger = "manual"
	TriggerOutstanding Trigger = "outstanding"
)

// LogEntry is one reminder attempt. Entries are append-only and the most
// recent one per member gates the next automatic reminder.
type LogEntry struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	MemberID     snowflake.ID      `gorm:"not null;index:idx_reminder_logs_member_sent,priority:1" json:"member_id"`
	SentAt       time.Time         `gorm:"not null;index:idx_reminder_logs_member_sent,priority:2" json:"sent_at"`
	ReminderType ReminderType      `gorm:"type:text;not null" json:"reminder_type"`
	Amount       string            `gorm:"type:text;not null" json:"amount"`
	InvoiceCount int               `gorm:"not null" json:"invoice_count"`
	Status       DeliveryStatus    `gorm:"type:text;not null" json:"status"`
	Error        string            `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"not null" json:"metadata,omitempty"`
}

func (LogEntry) TableName() string { return "reminder_logs" }
