package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	balanceservice "github.com/smallbiznis/duespay/internal/balance/service"
	"github.com/smallbiznis/duespay/internal/billingtest"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/duespay/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/duespay/internal/invoice/service"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	memberrepo "github.com/smallbiznis/duespay/internal/member/repository"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duespay/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2025, time.November, 3, 0, 5, 0, 0, time.UTC)

type harness struct {
	db    *gorm.DB
	node  *snowflake.Node
	fx    *billingtest.Fixtures
	clock *clock.FakeClock
	gen   invoicedomain.Generator
}

func newHarness(t *testing.T, repo invoicedomain.Repository) *harness {
	t.Helper()
	db := billingtest.NewDB(t)
	node := billingtest.NewNode(t)
	clk := clock.NewFakeClock(now)
	if repo == nil {
		repo = invoicerepo.Provide()
	}
	members := memberrepo.Provide()
	calc := balanceservice.New(balanceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		InvoiceRepo: invoicerepo.Provide(),
		MemberRepo:  members,
	})
	gen := invoiceservice.NewGenerator(invoiceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Plans:       config.NewStaticPlanConfigHolder(config.DefaultBillingConfig()),
		MemberRepo:  members,
		InvoiceRepo: repo,
		PaymentRepo: paymentrepo.Provide(),
		Balance:     calc,
	})
	return &harness{db: db, node: node, fx: billingtest.NewFixtures(t, db, node), clock: clk, gen: gen}
}

func TestGenerateCreatesLifetimeInvoiceAfterFullPeriod(t *testing.T) {
	h := newHarness(t, nil)
	member := h.fx.Member(now.AddDate(-3, 0, 0), billingtest.WithStartDate(now.Add(-366*24*time.Hour)))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Empty(t, res.Errors)

	var invoices []invoicedomain.Invoice
	require.NoError(t, h.db.Where("member_id = ?", member.ID).Find(&invoices).Error)
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, "$250.00", inv.Amount)
	assert.Equal(t, "Nov 2025 Lifetime Membership", inv.Period)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.True(t, inv.Due.Equal(now.Add(365*24*time.Hour)), "due %s", inv.Due)

	assert.Equal(t, "$250.00 Outstanding", h.fx.ReloadMember(member.ID).Balance)
}

func TestGenerateYearlyJanazaPlan(t *testing.T) {
	h := newHarness(t, nil)
	member := h.fx.Member(now.AddDate(-2, 0, 0), billingtest.WithSubscription(memberdomain.SubscriptionYearlyJanaza))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	var inv invoicedomain.Invoice
	require.NoError(t, h.db.Where("member_id = ?", member.ID).First(&inv).Error)
	assert.Equal(t, "$500.00", inv.Amount)
	assert.Equal(t, "Nov 2025 Yearly Subscription + Janaza Fund", inv.Period)
	assert.Equal(t, "$500.00 Outstanding", h.fx.ReloadMember(member.ID).Balance)
}

func TestGenerateIsIdempotentAcrossRuns(t *testing.T) {
	h := newHarness(t, nil)
	member := h.fx.Member(now.AddDate(-2, 0, 0))

	first, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	second, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)
	assert.EqualValues(t, 1, h.fx.CountInvoices(member.ID))
}

func TestGenerateSkipsWhenOpenInvoiceExists(t *testing.T) {
	for _, status := range invoicedomain.OpenStatuses {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, nil)
			member := h.fx.Member(now.AddDate(-3, 0, 0))
			h.fx.Invoice(member.ID, status, "$250.00", now.AddDate(-2, 0, 0))

			res, err := h.gen.GenerateDueInvoices(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, res.Created)
			assert.Equal(t, 1, res.Skipped)
			assert.EqualValues(t, 1, h.fx.CountInvoices(member.ID))
		})
	}
}

func TestGenerateAnchorsOnLatestCompletedPayment(t *testing.T) {
	h := newHarness(t, nil)
	member := h.fx.Member(now.AddDate(-5, 0, 0))
	paid := h.fx.Invoice(member.ID, invoicedomain.InvoiceStatusPaid, "$250.00", now.AddDate(-2, 0, 0))
	h.fx.Payment(paid, paymentdomain.StatusCompleted, now.AddDate(0, 0, -100))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Skipped)

	// A full period after that payment the member is billed again.
	h.clock.Advance(266 * 24 * time.Hour)
	res, err = h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestGenerateAnchorFallbacks(t *testing.T) {
	h := newHarness(t, nil)
	gen := h.gen.(*invoiceservice.Generator)
	ctx := context.Background()

	created := now.AddDate(-4, 0, 0)
	start := now.AddDate(-3, 0, 0)

	bare := h.fx.Member(created)
	anchor, err := gen.Anchor(ctx, &bare)
	require.NoError(t, err)
	assert.True(t, anchor.Equal(created))

	started := h.fx.Member(created, billingtest.WithStartDate(start))
	anchor, err = gen.Anchor(ctx, &started)
	require.NoError(t, err)
	assert.True(t, anchor.Equal(start))

	invoiced := h.fx.Member(created, billingtest.WithStartDate(start))
	inv := h.fx.Invoice(invoiced.ID, invoicedomain.InvoiceStatusPaid, "$250.00", now.AddDate(-1, 0, 0))
	anchor, err = gen.Anchor(ctx, &invoiced)
	require.NoError(t, err)
	assert.True(t, anchor.Equal(inv.CreatedAt))

	// Rejected payments never anchor.
	h.fx.Payment(inv, paymentdomain.StatusRejected, now.AddDate(0, 0, -1))
	anchor, err = gen.Anchor(ctx, &invoiced)
	require.NoError(t, err)
	assert.True(t, anchor.Equal(inv.CreatedAt))
}

func TestGenerateSkipsBeforeFullPeriod(t *testing.T) {
	h := newHarness(t, nil)
	h.fx.Member(now.Add(-364 * 24 * time.Hour))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Skipped)
}

func TestGenerateIgnoresInactiveMembers(t *testing.T) {
	h := newHarness(t, nil)
	inactive := h.fx.Member(now.AddDate(-2, 0, 0), billingtest.WithStatus(memberdomain.StatusInactive))
	pending := h.fx.Member(now.AddDate(-2, 0, 0), billingtest.WithStatus(memberdomain.StatusPending))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.GenerationResult{}, res)
	assert.Zero(t, h.fx.CountInvoices(inactive.ID))
	assert.Zero(t, h.fx.CountInvoices(pending.ID))
}

func TestGenerateIsolatesMemberErrors(t *testing.T) {
	h := newHarness(t, nil)
	broken := h.fx.Member(now.AddDate(-2, 0, 0), billingtest.WithSubscription("Monthly"))
	healthy := h.fx.Member(now.AddDate(-2, 0, 0))

	res, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, broken.ID, res.Errors[0].MemberID)
	assert.Contains(t, res.Errors[0].Cause, "unknown_subscription_plan")
	assert.EqualValues(t, 1, h.fx.CountInvoices(healthy.ID))
}

// staleRepo hides existing invoices from every pre-insert read, as an
// overlapping run would observe before the other run commits.
type staleRepo struct {
	invoicedomain.Repository
}

func (staleRepo) CountByMemberAndStatus(context.Context, *gorm.DB, snowflake.ID, []invoicedomain.InvoiceStatus) (int64, error) {
	return 0, nil
}

func (staleRepo) ExistsOpenForPeriod(context.Context, *gorm.DB, snowflake.ID, string) (bool, error) {
	return false, nil
}

func (staleRepo) LatestByMember(context.Context, *gorm.DB, snowflake.ID) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func TestGenerateStoreGuardTurnsRaceIntoSkip(t *testing.T) {
	h := newHarness(t, staleRepo{Repository: invoicerepo.Provide()})
	member := h.fx.Member(now.AddDate(-2, 0, 0))

	first, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)
	second, err := h.gen.GenerateDueInvoices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)
	assert.Empty(t, second.Errors)
	assert.EqualValues(t, 1, h.fx.CountInvoices(member.ID, invoicedomain.OpenStatuses...))
}

func TestGenerateStopsOnCanceledContext(t *testing.T) {
	h := newHarness(t, nil)
	h.fx.Member(now.AddDate(-2, 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.gen.GenerateDueInvoices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarkOverdueInvoices(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ta := billingtest.NewTimeAccelerator(h.db)

	late := h.fx.Member(now.AddDate(-3, 0, 0))
	lateInv := h.fx.Invoice(late.ID, invoicedomain.InvoiceStatusUnpaid, "$250.00", now.AddDate(-2, 0, 0))
	require.NoError(t, ta.BackdateInvoice(ctx, lateInv.ID, now.AddDate(-2, 0, 0), now.AddDate(0, 0, -1)))

	current := h.fx.Member(now.AddDate(-1, 0, 0))
	currentInv := h.fx.Invoice(current.ID, invoicedomain.InvoiceStatusUnpaid, "$500.00", now)

	pending := h.fx.Member(now.AddDate(-3, 0, 0))
	pendingInv := h.fx.Invoice(pending.ID, invoicedomain.InvoiceStatusPendingVerification, "$250.00", now.AddDate(-2, 0, 0))
	require.NoError(t, ta.BackdateInvoice(ctx, pendingInv.ID, now.AddDate(-2, 0, 0), now.AddDate(0, 0, -1)))

	res, err := h.gen.MarkOverdueInvoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Marked)
	assert.Empty(t, res.Errors)

	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, h.fx.ReloadInvoice(lateInv.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, h.fx.ReloadInvoice(currentInv.ID).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPendingVerification, h.fx.ReloadInvoice(pendingInv.ID).Status)
	assert.Equal(t, "$250.00 Overdue", h.fx.ReloadMember(late.ID).Balance)

	again, err := h.gen.MarkOverdueInvoices(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Marked)
}
