package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/duespay/internal/balance/domain"
	"github.com/smallbiznis/duespay/internal/clock"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	obscontext "github.com/smallbiznis/duespay/internal/observability/context"
	obslogger "github.com/smallbiznis/duespay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duespay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	"github.com/smallbiznis/duespay/internal/providers/email"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	MemberRepo  memberdomain.Repository
	Balance     balancedomain.Calculator
	Settings    settingsdomain.Service
	Mailer      email.Factory
	Renderer    *email.Renderer
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	memberRepo  memberdomain.Repository
	balance     balancedomain.Calculator
	settings    settingsdomain.Service
	mailer      email.Factory
	renderer    *email.Renderer
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Lifecycle {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		memberRepo:  p.MemberRepo,
		balance:     p.Balance,
		settings:    p.Settings,
		mailer:      p.Mailer,
		renderer:    p.Renderer,
		obsMetrics:  p.ObsMetrics,
	}
}

// Submit records a member's proof of payment and puts the invoice into
// verification.
func (s *Service) Submit(ctx context.Context, req paymentdomain.SubmitPaymentRequest) (paymentdomain.Payment, error) {
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}

	now := s.clock.Now()
	var payment paymentdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByID(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return paymentdomain.ErrInvoiceNotFound
		}

		payment = paymentdomain.Payment{
			ID:         s.genID.Generate(),
			InvoiceID:  invoice.ID,
			MemberID:   invoice.MemberID,
			Amount:     invoice.Amount,
			Method:     method,
			Reference:  strings.TrimSpace(req.Reference),
			Screenshot: strings.TrimSpace(req.Screenshot),
			Status:     paymentdomain.StatusPending,
			PaidAt:     now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		changed, err := s.invoiceRepo.MarkPendingVerification(ctx, tx, invoice.ID, payment.Method, payment.Reference, payment.Screenshot, now)
		if err != nil {
			return err
		}
		if !changed {
			return paymentdomain.ErrInvoiceNotOpen
		}
		return s.repo.Insert(ctx, tx, &payment)
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	log := s.logFor(ctx, payment)
	log.Info("payment.submitted", zap.String("method", payment.Method))
	s.recompute(ctx, log, payment.MemberID)
	return payment, nil
}

// Approve completes a pending payment and marks its invoice Paid.
func (s *Service) Approve(ctx context.Context, paymentID snowflake.ID, actor string) (paymentdomain.Payment, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidActor
	}

	now := s.clock.Now()
	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, inv, err := s.loadPending(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		invoice = inv

		changed, err := s.repo.Approve(ctx, tx, payment.ID, actor, now)
		if err != nil {
			return err
		}
		if !changed {
			return paymentdomain.ErrInvalidTransition
		}
		_, err = s.invoiceRepo.MarkPaid(ctx, tx, inv.ID, payment.Method, payment.Reference, now)
		return err
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	payment, err := s.reload(ctx, paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	log := s.logFor(ctx, payment)
	log.Info("payment.approved", zap.String("actor", actor))
	s.obsMetrics.RecordPaymentDecision(ctx, "approved")

	balance := s.recompute(ctx, log, payment.MemberID)
	s.notify(ctx, log, payment, invoice, balance, true)
	return payment, nil
}

// Reject closes a pending payment and returns its invoice to Unpaid with the
// submitted payment details cleared.
func (s *Service) Reject(ctx context.Context, paymentID snowflake.ID, actor, reason string) (paymentdomain.Payment, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidActor
	}
	reason = strings.TrimSpace(reason)

	now := s.clock.Now()
	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, inv, err := s.loadPending(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		invoice = inv

		changed, err := s.repo.Reject(ctx, tx, payment.ID, actor, reason, now)
		if err != nil {
			return err
		}
		if !changed {
			return paymentdomain.ErrInvalidTransition
		}
		_, err = s.invoiceRepo.MarkUnpaid(ctx, tx, inv.ID, []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusPendingVerification,
		}, now)
		return err
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	payment, err := s.reload(ctx, paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	log := s.logFor(ctx, payment)
	log.Info("payment.rejected", zap.String("actor", actor), zap.String("reason", reason))
	s.obsMetrics.RecordPaymentDecision(ctx, "rejected")

	balance := s.recompute(ctx, log, payment.MemberID)
	s.notify(ctx, log, payment, invoice, balance, false)
	return payment, nil
}

// Delete removes a payment. The invoice it settled or put into verification
// goes back to Unpaid first.
func (s *Service) Delete(ctx context.Context, paymentID snowflake.ID) error {
	now := s.clock.Now()
	var payment *paymentdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return paymentdomain.ErrNotFound
		}
		payment = p

		var from []invoicedomain.InvoiceStatus
		switch p.Status {
		case paymentdomain.StatusCompleted:
			from = []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusPaid}
		case paymentdomain.StatusPending:
			from = []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusPendingVerification}
		}
		if len(from) > 0 {
			if _, err := s.invoiceRepo.MarkUnpaid(ctx, tx, p.InvoiceID, from, now); err != nil {
				return fmt.Errorf("revert invoice: %w", err)
			}
		}

		deleted, err := s.repo.Delete(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return paymentdomain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	log := s.logFor(ctx, *payment)
	log.Info("payment.deleted", zap.String("status", string(payment.Status)))
	s.recompute(ctx, log, payment.MemberID)
	return nil
}

func (s *Service) loadPending(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) (*paymentdomain.Payment, *invoicedomain.Invoice, error) {
	payment, err := s.repo.FindByID(ctx, tx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, paymentdomain.ErrNotFound
	}
	if payment.Status.IsTerminal() {
		return nil, nil, paymentdomain.ErrInvalidTransition
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, tx, payment.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	if invoice == nil {
		return nil, nil, paymentdomain.ErrInvoiceNotFound
	}
	return payment, invoice, nil
}

func (s *Service) reload(ctx context.Context, paymentID snowflake.ID) (paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNotFound
	}
	return *payment, nil
}

// recompute refreshes the member balance. The payment transition has already
// committed, so a failure here is only logged.
func (s *Service) recompute(ctx context.Context, log *zap.Logger, memberID snowflake.ID) string {
	balance, err := s.balance.Recompute(ctx, memberID)
	if err != nil {
		if errors.Is(err, memberdomain.ErrNotFound) {
			log.Warn("payment.balance_member_missing")
		} else {
			log.Error("payment.balance_recompute_failed", zap.Error(err))
		}
		return ""
	}
	return balance
}

func (s *Service) notify(ctx context.Context, log *zap.Logger, payment paymentdomain.Payment, invoice *invoicedomain.Invoice, balance string, approved bool) {
	if s.mailer == nil || s.renderer == nil || s.settings == nil {
		return
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		log.Warn("payment.notify_settings_failed", zap.Error(err))
		return
	}
	if !settings.MailerConfigured() {
		log.Debug("payment.notify_skipped", zap.String("reason", "mailer_not_configured"))
		return
	}

	member, err := s.memberRepo.FindByID(ctx, s.db, payment.MemberID)
	if err != nil {
		log.Warn("payment.notify_member_failed", zap.Error(err))
		return
	}
	if member == nil || strings.TrimSpace(member.Email) == "" {
		log.Debug("payment.notify_skipped", zap.String("reason", "no_recipient"))
		return
	}

	data := email.PaymentData{
		MemberName: member.Name,
		Amount:     payment.Amount,
		Reason:     payment.RejectionReason,
		Balance:    balance,
	}
	if invoice != nil {
		data.Period = invoice.Period
	}

	var msg email.Message
	if approved {
		msg, err = s.renderer.PaymentApproved(member.Email, data)
	} else {
		msg, err = s.renderer.PaymentRejected(member.Email, data)
	}
	if err != nil {
		log.Error("payment.notify_render_failed", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.mailer(email.ConfigFromSettings(settings)).Send(sendCtx, msg); err != nil {
		log.Warn("payment.notify_failed", zap.Error(err))
		return
	}
	log.Info("payment.notified", zap.Bool("approved", approved))
}

func (s *Service) logFor(ctx context.Context, payment paymentdomain.Payment) *zap.Logger {
	ctx = obscontext.WithMemberID(ctx, payment.MemberID.String())
	return obslogger.WithContext(ctx, s.log).With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
	)
}
