package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, member *Member) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Member, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status) ([]*Member, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance string) (bool, error)
}
