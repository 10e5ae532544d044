// Package billingtest provides an in-memory database and fixtures shared by
// the billing package tests.
package billingtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	"github.com/smallbiznis/duespay/internal/migration"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared-cache database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// NewNode returns a snowflake node for fixture ids.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return node
}

type Fixtures struct {
	t    testing.TB
	db   *gorm.DB
	node *snowflake.Node
}

func NewFixtures(t testing.TB, db *gorm.DB, node *snowflake.Node) *Fixtures {
	return &Fixtures{t: t, db: db, node: node}
}

type MemberOption func(*memberdomain.Member)

func WithStatus(status memberdomain.Status) MemberOption {
	return func(m *memberdomain.Member) { m.Status = status }
}

func WithSubscription(subscriptionType string) MemberOption {
	return func(m *memberdomain.Member) { m.SubscriptionType = subscriptionType }
}

func WithStartDate(at time.Time) MemberOption {
	return func(m *memberdomain.Member) { m.StartDate = &at }
}

func WithEmail(email string) MemberOption {
	return func(m *memberdomain.Member) { m.Email = email }
}

// Member inserts an Active Lifetime member created at createdAt.
func (f *Fixtures) Member(createdAt time.Time, opts ...MemberOption) memberdomain.Member {
	f.t.Helper()
	id := f.node.Generate()
	m := memberdomain.Member{
		ID:               id,
		Name:             "Member " + id.String(),
		Email:            "member" + id.String() + "@example.com",
		Status:           memberdomain.StatusActive,
		SubscriptionType: memberdomain.SubscriptionLifetime,
		Balance:          "$0",
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	for _, opt := range opts {
		opt(&m)
	}
	require.NoError(f.t, f.db.Create(&m).Error)
	return m
}

// Invoice inserts an invoice for member with the given status and amount.
func (f *Fixtures) Invoice(memberID snowflake.ID, status invoicedomain.InvoiceStatus, amount string, createdAt time.Time) invoicedomain.Invoice {
	f.t.Helper()
	id := f.node.Generate()
	inv := invoicedomain.Invoice{
		ID:        id,
		MemberID:  memberID,
		Period:    createdAt.Format("Jan 2006") + " Fixture " + id.String(),
		Amount:    amount,
		Status:    status,
		Due:       createdAt.AddDate(0, 0, 30),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(f.t, f.db.Create(&inv).Error)
	return inv
}

// Payment inserts a payment against invoice.
func (f *Fixtures) Payment(inv invoicedomain.Invoice, status paymentdomain.Status, paidAt time.Time) paymentdomain.Payment {
	f.t.Helper()
	p := paymentdomain.Payment{
		ID:        f.node.Generate(),
		InvoiceID: inv.ID,
		MemberID:  inv.MemberID,
		Amount:    inv.Amount,
		Method:    "Zelle",
		Reference: "ref-" + inv.ID.String(),
		Status:    status,
		PaidAt:    paidAt,
		CreatedAt: paidAt,
		UpdatedAt: paidAt,
	}
	require.NoError(f.t, f.db.Create(&p).Error)
	return p
}

// ReloadMember reads the member back from the database.
func (f *Fixtures) ReloadMember(id snowflake.ID) memberdomain.Member {
	f.t.Helper()
	var m memberdomain.Member
	require.NoError(f.t, f.db.First(&m, "id = ?", id).Error)
	return m
}

func (f *Fixtures) ReloadInvoice(id snowflake.ID) invoicedomain.Invoice {
	f.t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(f.t, f.db.First(&inv, "id = ?", id).Error)
	return inv
}

func (f *Fixtures) ReloadPayment(id snowflake.ID) paymentdomain.Payment {
	f.t.Helper()
	var p paymentdomain.Payment
	require.NoError(f.t, f.db.First(&p, "id = ?", id).Error)
	return p
}

// CountInvoices counts a member's invoices in the given statuses, or all when none are given.
func (f *Fixtures) CountInvoices(memberID snowflake.ID, statuses ...invoicedomain.InvoiceStatus) int64 {
	f.t.Helper()
	var count int64
	q := f.db.Model(&invoicedomain.Invoice{}).Where("member_id = ?", memberID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	require.NoError(f.t, q.Count(&count).Error)
	return count
}

// TimeAccelerator rewrites stored timestamps so that elapsed-time rules can be
// exercised without waiting.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// BackdateInvoice moves an invoice's creation and due date into the past.
func (ta *TimeAccelerator) BackdateInvoice(ctx context.Context, invoiceID snowflake.ID, createdAt, due time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE invoices SET created_at = ?, due = ?, updated_at = ? WHERE id = ?`,
		createdAt,
		due,
		createdAt,
		invoiceID,
	).Error
}

// BackdatePayment sets the paid_at anchor of a payment.
func (ta *TimeAccelerator) BackdatePayment(ctx context.Context, paymentID snowflake.ID, paidAt time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE payments SET paid_at = ?, updated_at = ? WHERE id = ?`,
		paidAt,
		paidAt,
		paymentID,
	).Error
}

// AgeReminders shifts every reminder log entry of a member back by d.
func (ta *TimeAccelerator) AgeReminders(ctx context.Context, memberID snowflake.ID, d time.Duration) error {
	type row struct {
		ID     snowflake.ID
		SentAt time.Time
	}
	var rows []row
	if err := ta.db.WithContext(ctx).Raw(`SELECT id, sent_at FROM reminder_logs WHERE member_id = ?`, memberID).Scan(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		if err := ta.db.WithContext(ctx).Exec(
			`UPDATE reminder_logs SET sent_at = ? WHERE id = ?`,
			r.SentAt.Add(-d),
			r.ID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
