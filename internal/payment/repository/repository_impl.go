package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, invoice_id, member_id, amount, method, reference, screenshot, status, paid_at,
	approved_by, approved_at, rejected_by, rejected_at, rejection_reason, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.MemberID,
		payment.Amount,
		payment.Method,
		payment.Reference,
		payment.Screenshot,
		payment.Status,
		payment.PaidAt,
		payment.ApprovedBy,
		payment.ApprovedAt,
		payment.RejectedBy,
		payment.RejectedAt,
		payment.RejectionReason,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LatestCompletedByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE member_id = ? AND status = ?
		 ORDER BY paid_at DESC, id DESC
		 LIMIT 1`,
		memberID,
		domain.StatusCompleted,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, actor string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		actor,
		at,
		at,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, actor, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, rejected_by = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusRejected,
		actor,
		at,
		reason,
		at,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
