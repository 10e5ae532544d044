package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	balanceservice "github.com/smallbiznis/duespay/internal/balance/service"
	"github.com/smallbiznis/duespay/internal/billingtest"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/duespay/internal/invoice/repository"
	memberrepo "github.com/smallbiznis/duespay/internal/member/repository"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duespay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/duespay/internal/payment/service"
	"github.com/smallbiznis/duespay/internal/providers/email"
	settingsrepo "github.com/smallbiznis/duespay/internal/settings/repository"
	settingsservice "github.com/smallbiznis/duespay/internal/settings/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)

type harness struct {
	db     *gorm.DB
	fx     *billingtest.Fixtures
	mailer *billingtest.Mailer
	svc    paymentdomain.Lifecycle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := billingtest.NewDB(t)
	node := billingtest.NewNode(t)
	clk := clock.NewFakeClock(now)
	mailer := billingtest.NewMailer()

	members := memberrepo.Provide()
	invoices := invoicerepo.Provide()
	settings := settingsservice.New(settingsservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   config.Config{},
		Clock: clk,
		Repo:  settingsrepo.Provide(),
	})
	svc := paymentservice.NewService(paymentservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoices,
		MemberRepo:  members,
		Balance: balanceservice.New(balanceservice.Params{
			DB:          db,
			Log:         zap.NewNop(),
			InvoiceRepo: invoices,
			MemberRepo:  members,
		}),
		Settings: settings,
		Mailer:   mailer.Factory(),
		Renderer: email.NewRenderer("Test Society"),
	})
	return &harness{db: db, fx: billingtest.NewFixtures(t, db, node), mailer: mailer, svc: svc}
}

func (h *harness) submitted(t *testing.T, status invoicedomain.InvoiceStatus) (paymentdomain.Payment, invoicedomain.Invoice) {
	t.Helper()
	member := h.fx.Member(now.AddDate(-2, 0, 0))
	inv := h.fx.Invoice(member.ID, status, "$250.00", now.AddDate(0, -2, 0))
	payment, err := h.svc.Submit(context.Background(), paymentdomain.SubmitPaymentRequest{
		InvoiceID:  inv.ID,
		Method:     "Zelle",
		Reference:  "ZL-1001",
		Screenshot: "uploads/zl-1001.png",
	})
	require.NoError(t, err)
	return payment, inv
}

func TestSubmitMovesInvoiceIntoVerification(t *testing.T) {
	h := newHarness(t)
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusOverdue)

	assert.Equal(t, paymentdomain.StatusPending, payment.Status)
	assert.Equal(t, "$250.00", payment.Amount)

	stored := h.fx.ReloadInvoice(inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPendingVerification, stored.Status)
	assert.Equal(t, "Zelle", stored.Method)
	assert.Equal(t, "ZL-1001", stored.Reference)
	assert.Equal(t, "$0", h.fx.ReloadMember(inv.MemberID).Balance)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.fx.Member(now.AddDate(-2, 0, 0))
	paid := h.fx.Invoice(member.ID, invoicedomain.InvoiceStatusPaid, "$250.00", now.AddDate(-1, 0, 0))

	_, err := h.svc.Submit(ctx, paymentdomain.SubmitPaymentRequest{InvoiceID: paid.ID})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = h.svc.Submit(ctx, paymentdomain.SubmitPaymentRequest{InvoiceID: 42, Method: "Cash"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotFound)

	_, err = h.svc.Submit(ctx, paymentdomain.SubmitPaymentRequest{InvoiceID: paid.ID, Method: "Cash"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotOpen)

	var count int64
	require.NoError(t, h.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApprovePaysInvoiceAndNotifies(t *testing.T) {
	h := newHarness(t)
	billingtest.SaveSettings(t, h.db, billingtest.ConfiguredSettings(false, 7))
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)

	approved, err := h.svc.Approve(context.Background(), payment.ID, "treasurer")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, approved.Status)
	assert.Equal(t, "treasurer", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, approved.ApprovedAt.Equal(now))

	stored := h.fx.ReloadInvoice(inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, "Zelle", stored.Method)
	assert.Equal(t, "$0", h.fx.ReloadMember(inv.MemberID).Balance)

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Payment approved", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "$250.00")
	require.Len(t, h.mailer.Configs(), 1)
	assert.Equal(t, "smtp.example.com", h.mailer.Configs()[0].Host)
}

func TestApproveKeepsExistingCashAttribution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.fx.Member(now.AddDate(-2, 0, 0))
	inv := h.fx.Invoice(member.ID, invoicedomain.InvoiceStatusPendingVerification, "$250.00", now.AddDate(0, -1, 0))
	require.NoError(t, h.db.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"method": "Cash", "reference": "receipt-7"}).Error)
	payment := h.fx.Payment(inv, paymentdomain.StatusPending, now)

	_, err := h.svc.Approve(ctx, payment.ID, "treasurer")
	require.NoError(t, err)

	stored := h.fx.ReloadInvoice(inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, "Cash", stored.Method)
	assert.Equal(t, "receipt-7", stored.Reference)
}

func TestRejectReturnsInvoiceToUnpaid(t *testing.T) {
	h := newHarness(t)
	billingtest.SaveSettings(t, h.db, billingtest.ConfiguredSettings(false, 7))
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)

	rejected, err := h.svc.Reject(context.Background(), payment.ID, "treasurer", "screenshot unreadable")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusRejected, rejected.Status)
	assert.Equal(t, "screenshot unreadable", rejected.RejectionReason)
	assert.Equal(t, "treasurer", rejected.RejectedBy)

	stored := h.fx.ReloadInvoice(inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	assert.Empty(t, stored.Method)
	assert.Empty(t, stored.Reference)
	assert.Empty(t, stored.Screenshot)
	assert.Equal(t, "$250.00 Outstanding", h.fx.ReloadMember(inv.MemberID).Balance)

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "screenshot unreadable")
}

func TestTerminalPaymentsRejectTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment, _ := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)

	_, err := h.svc.Approve(ctx, payment.ID, "treasurer")
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, payment.ID, "treasurer")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)
	_, err = h.svc.Reject(ctx, payment.ID, "treasurer", "late")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)

	assert.Equal(t, paymentdomain.StatusCompleted, h.fx.ReloadPayment(payment.ID).Status)
}

func TestApproveErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Approve(ctx, 99, "treasurer")
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)
	_, err = h.svc.Approve(ctx, payment.ID, "  ")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidActor)

	require.NoError(t, h.db.Exec(`DELETE FROM invoices WHERE id = ?`, inv.ID).Error)
	_, err = h.svc.Approve(ctx, payment.ID, "treasurer")
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotFound)
	assert.Equal(t, paymentdomain.StatusPending, h.fx.ReloadPayment(payment.ID).Status)
}

func TestNotificationFailureDoesNotFailApproval(t *testing.T) {
	h := newHarness(t)
	billingtest.SaveSettings(t, h.db, billingtest.ConfiguredSettings(false, 7))
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)
	member := h.fx.ReloadMember(inv.MemberID)
	h.mailer.FailFor(member.Email, errors.New("mailbox unavailable"))

	approved, err := h.svc.Approve(context.Background(), payment.ID, "treasurer")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, approved.Status)
	assert.Empty(t, h.mailer.Sent())
}

func TestNoNotificationWithoutMailer(t *testing.T) {
	h := newHarness(t)
	payment, _ := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)

	_, err := h.svc.Approve(context.Background(), payment.ID, "treasurer")
	require.NoError(t, err)
	assert.Empty(t, h.mailer.Configs())
}

func TestDeleteCompletedPaymentReopensInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)
	_, err := h.svc.Approve(ctx, payment.ID, "treasurer")
	require.NoError(t, err)
	require.Equal(t, "$0", h.fx.ReloadMember(inv.MemberID).Balance)

	require.NoError(t, h.svc.Delete(ctx, payment.ID))

	stored := h.fx.ReloadInvoice(inv.ID)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	assert.Empty(t, stored.Method)
	assert.Equal(t, "$250.00 Outstanding", h.fx.ReloadMember(inv.MemberID).Balance)

	var count int64
	require.NoError(t, h.db.Model(&paymentdomain.Payment{}).Where("id = ?", payment.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, h.svc.Delete(ctx, payment.ID), paymentdomain.ErrNotFound)
}

func TestDeletePendingPaymentReopensInvoice(t *testing.T) {
	h := newHarness(t)
	payment, inv := h.submitted(t, invoicedomain.InvoiceStatusUnpaid)

	require.NoError(t, h.svc.Delete(context.Background(), payment.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, h.fx.ReloadInvoice(inv.ID).Status)
	assert.Equal(t, "$250.00 Outstanding", h.fx.ReloadMember(inv.MemberID).Balance)
}

func TestDeleteRejectedPaymentLeavesInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.fx.Member(now.AddDate(-2, 0, 0))
	inv := h.fx.Invoice(member.ID, invoicedomain.InvoiceStatusOverdue, "$250.00", now.AddDate(-1, 0, 0))
	payment := h.fx.Payment(inv, paymentdomain.StatusRejected, now)

	require.NoError(t, h.svc.Delete(ctx, payment.ID))
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, h.fx.ReloadInvoice(inv.ID).Status)
	assert.Equal(t, "$250.00 Overdue", h.fx.ReloadMember(member.ID).Balance)
}
