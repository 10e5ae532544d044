package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/reminder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) MostRecent(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.LogEntry, bool, error) {
	var entries []*domain.LogEntry
	err := db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("sent_at DESC, id DESC").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, false, err
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	return entries[0], true, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) ([]*domain.LogEntry, error) {
	var entries []*domain.LogEntry
	err := db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("sent_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
