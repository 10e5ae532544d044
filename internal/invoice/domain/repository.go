package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListByMemberAndStatus(ctx context.Context, db *gorm.DB, memberID snowflake.ID, statuses []InvoiceStatus) ([]*Invoice, error)
	ListMemberIDsWithStatus(ctx context.Context, db *gorm.DB, statuses []InvoiceStatus) ([]snowflake.ID, error)
	CountByMemberAndStatus(ctx context.Context, db *gorm.DB, memberID snowflake.ID, statuses []InvoiceStatus) (int64, error)
	ExistsOpenForPeriod(ctx context.Context, db *gorm.DB, memberID snowflake.ID, periodPrefix string) (bool, error)
	LatestByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*Invoice, error)
	ListPastDue(ctx context.Context, db *gorm.DB, now time.Time) ([]*Invoice, error)

	// Status transitions are conditional on the current status and report
	// whether a row was changed.
	MarkPendingVerification(ctx context.Context, db *gorm.DB, id snowflake.ID, method, reference, screenshot string, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, method, reference string, at time.Time) (bool, error)
	MarkUnpaid(ctx context.Context, db *gorm.DB, id snowflake.ID, from []InvoiceStatus, at time.Time) (bool, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
