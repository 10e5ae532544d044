package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `id, member_id, period, amount, status, due, method, reference, screenshot, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.MemberID,
		invoice.Period,
		invoice.Amount,
		invoice.Status,
		invoice.Due,
		invoice.Method,
		invoice.Reference,
		invoice.Screenshot,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListByMemberAndStatus(ctx context.Context, db *gorm.DB, memberID snowflake.ID, statuses []domain.InvoiceStatus) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE member_id = ? AND status IN ?
		 ORDER BY created_at ASC, id ASC`,
		memberID,
		statuses,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListMemberIDsWithStatus(ctx context.Context, db *gorm.DB, statuses []domain.InvoiceStatus) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT member_id FROM invoices WHERE status IN ? ORDER BY member_id ASC`,
		statuses,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) CountByMemberAndStatus(ctx context.Context, db *gorm.DB, memberID snowflake.ID, statuses []domain.InvoiceStatus) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE member_id = ? AND status IN ?`,
		memberID,
		statuses,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ExistsOpenForPeriod(ctx context.Context, db *gorm.DB, memberID snowflake.ID, periodPrefix string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices
		 WHERE member_id = ? AND status IN ? AND period LIKE ?`,
		memberID,
		domain.OpenStatuses,
		periodPrefix+"%",
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) LatestByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE member_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		memberID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListPastDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status = ? AND due < ?
		 ORDER BY due ASC, id ASC`,
		domain.InvoiceStatusUnpaid,
		now,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) MarkPendingVerification(ctx context.Context, db *gorm.DB, id snowflake.ID, method, reference, screenshot string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, method = ?, reference = ?, screenshot = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.InvoiceStatusPendingVerification,
		method,
		reference,
		screenshot,
		at,
		id,
		domain.OutstandingStatuses,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, method, reference string, at time.Time) (bool, error) {
	// Cash attribution already on the invoice wins over the payment's.
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?,
		     method = CASE WHEN method = '' THEN ? ELSE method END,
		     reference = CASE WHEN reference = '' THEN ? ELSE reference END,
		     updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.InvoiceStatusPaid,
		method,
		reference,
		at,
		id,
		domain.InvoiceStatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkUnpaid(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.InvoiceStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, method = '', reference = '', screenshot = '', updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.InvoiceStatusUnpaid,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.InvoiceStatusOverdue,
		at,
		id,
		domain.InvoiceStatusUnpaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
