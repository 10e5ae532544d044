package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	balancedomain "github.com/smallbiznis/duespay/internal/balance/domain"
	balanceservice "github.com/smallbiznis/duespay/internal/balance/service"
	"github.com/smallbiznis/duespay/internal/billingtest"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/duespay/internal/invoice/repository"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	memberrepo "github.com/smallbiznis/duespay/internal/member/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"pgregory.net/rapid"
)

var now = time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC)

func TestRecomputeOverdueLabelWins(t *testing.T) {
	ctx := context.Background()
	db := billingtest.NewDB(t)
	fx := billingtest.NewFixtures(t, db, billingtest.NewNode(t))

	member := fx.Member(now.AddDate(-2, 0, 0))
	fx.Invoice(member.ID, invoicedomain.InvoiceStatusOverdue, "$100", now.AddDate(-1, 0, 0))
	fx.Invoice(member.ID, invoicedomain.InvoiceStatusUnpaid, "$50", now)
	fx.Invoice(member.ID, invoicedomain.InvoiceStatusPaid, "$500", now.AddDate(-2, 0, 0))
	fx.Invoice(member.ID, invoicedomain.InvoiceStatusPendingVerification, "$250", now)

	svc := newCalculator(db)
	balance, err := svc.Recompute(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "$150.00 Overdue", balance)
	assert.Equal(t, "$150.00 Overdue", fx.ReloadMember(member.ID).Balance)
}

func TestRecomputeOutstandingAndZero(t *testing.T) {
	ctx := context.Background()
	db := billingtest.NewDB(t)
	fx := billingtest.NewFixtures(t, db, billingtest.NewNode(t))
	svc := newCalculator(db)

	member := fx.Member(now)
	balance, err := svc.Recompute(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "$0", balance)

	fx.Invoice(member.ID, invoicedomain.InvoiceStatusUnpaid, "$250.00", now)
	balance, err = svc.Recompute(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, "$250.00 Outstanding", balance)
}

func TestRecomputeMissingMember(t *testing.T) {
	db := billingtest.NewDB(t)
	svc := newCalculator(db)

	_, err := svc.Recompute(context.Background(), billingtest.NewNode(t).Generate())
	assert.ErrorIs(t, err, memberdomain.ErrNotFound)
}

func TestRecomputeMalformedAmount(t *testing.T) {
	db := billingtest.NewDB(t)
	fx := billingtest.NewFixtures(t, db, billingtest.NewNode(t))
	member := fx.Member(now)
	fx.Invoice(member.ID, invoicedomain.InvoiceStatusUnpaid, "two hundred", now)

	_, err := newCalculator(db).Recompute(context.Background(), member.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)
	assert.Equal(t, "$0", fx.ReloadMember(member.ID).Balance)
}

func TestSummarizeProperties(t *testing.T) {
	statuses := []invoicedomain.InvoiceStatus{
		invoicedomain.InvoiceStatusUnpaid,
		invoicedomain.InvoiceStatusOverdue,
		invoicedomain.InvoiceStatusPendingVerification,
		invoicedomain.InvoiceStatusPaid,
	}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		invoices := make([]*invoicedomain.Invoice, 0, n)
		want := decimal.Zero
		wantOverdue := false
		for i := 0; i < n; i++ {
			cents := rapid.Int64Range(0, 1_000_000).Draw(t, "cents")
			status := rapid.SampledFrom(statuses).Draw(t, "status")
			amount := decimal.New(cents, -2)
			invoices = append(invoices, &invoicedomain.Invoice{
				Amount: "$" + amount.StringFixed(2),
				Status: status,
			})
			if status == invoicedomain.InvoiceStatusUnpaid || status == invoicedomain.InvoiceStatusOverdue {
				want = want.Add(amount)
				if status == invoicedomain.InvoiceStatusOverdue {
					wantOverdue = true
				}
			}
		}

		total, overdue, err := balanceservice.Summarize(invoices)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if !total.Equal(want) {
			t.Fatalf("total %s, want %s", total, want)
		}
		if overdue != wantOverdue {
			t.Fatalf("overdue %v, want %v", overdue, wantOverdue)
		}
	})
}

func newCalculator(db *gorm.DB) balancedomain.Calculator {
	return balanceservice.New(balanceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		InvoiceRepo: invoicerepo.Provide(),
		MemberRepo:  memberrepo.Provide(),
	})
}
