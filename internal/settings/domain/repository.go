package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Get returns nil when settings were never saved.
	Get(ctx context.Context, db *gorm.DB) (*EmailSettings, error)
	Upsert(ctx context.Context, db *gorm.DB, settings *EmailSettings) error
}
