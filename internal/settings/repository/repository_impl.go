package repository

import (
	"context"

	"github.com/smallbiznis/duespay/internal/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB) (*domain.EmailSettings, error) {
	var settings domain.EmailSettings
	err := db.WithContext(ctx).Raw(
		`SELECT id, schedule_time, automation_enabled, reminder_interval, smtp_host, smtp_port,
			smtp_username, smtp_password, smtp_use_ssl, from_address, from_name, updated_at
		 FROM email_settings WHERE id = ?`,
		domain.SingletonID,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, settings *domain.EmailSettings) error {
	settings.ID = domain.SingletonID
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(settings).Error
}
