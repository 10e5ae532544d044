package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	LatestCompletedByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*Payment, error)
	// Approve and Reject only move a Pending payment and report whether a row changed.
	Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, actor string, at time.Time) (bool, error)
	Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, actor, reason string, at time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
