package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, entry *LogEntry) error
	// MostRecent reports false when the member was never sent a reminder.
	MostRecent(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*LogEntry, bool, error)
	ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]*LogEntry, error)
}
