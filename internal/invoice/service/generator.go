package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/duespay/internal/balance/domain"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	"github.com/smallbiznis/duespay/internal/invoice/format"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	obscontext "github.com/smallbiznis/duespay/internal/observability/context"
	obslogger "github.com/smallbiznis/duespay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duespay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duespay/internal/payment/domain"
	"github.com/smallbiznis/duespay/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
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
	Plans       *config.PlanConfigHolder
	MemberRepo  memberdomain.Repository
	InvoiceRepo invoicedomain.Repository
	PaymentRepo paymentdomain.Repository
	Balance     balancedomain.Calculator
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Generator struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	plans       *config.PlanConfigHolder
	memberRepo  memberdomain.Repository
	invoiceRepo invoicedomain.Repository
	paymentRepo paymentdomain.Repository
	balance     balancedomain.Calculator
	obsMetrics  *obsmetrics.Metrics
	tracer      trace.Tracer
}

func NewGenerator(p Params) invoicedomain.Generator {
	return &Generator{
		db:          p.DB,
		log:         p.Log.Named("invoice.generator"),
		genID:       p.GenID,
		clock:       p.Clock,
		plans:       p.Plans,
		memberRepo:  p.MemberRepo,
		invoiceRepo: p.InvoiceRepo,
		paymentRepo: p.PaymentRepo,
		balance:     p.Balance,
		obsMetrics:  p.ObsMetrics,
		tracer:      otel.Tracer("duespay/invoice"),
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
)

// GenerateDueInvoices creates the next invoice for every Active member whose
// last billing anchor is at least one period old and who has no open invoice.
// A failure for one member is recorded in the result and does not stop the run.
func (g *Generator) GenerateDueInvoices(ctx context.Context) (invoicedomain.GenerationResult, error) {
	ctx, span := g.tracer.Start(ctx, "invoice.generate_due")
	defer span.End()

	var result invoicedomain.GenerationResult
	log := obslogger.WithContext(ctx, g.log)

	members, err := g.memberRepo.ListByStatus(ctx, g.db, memberdomain.StatusActive)
	if err != nil {
		return result, fmt.Errorf("list active members: %w", err)
	}

	cfg := g.plans.Get()
	period := time.Duration(cfg.PeriodDays) * 24 * time.Hour
	now := g.clock.Now()

	for _, member := range members {
		if err := ctx.Err(); err != nil {
			g.record(ctx, result)
			return result, err
		}
		if member == nil {
			continue
		}

		res, err := g.processMember(ctx, member, now, period, cfg)
		if err != nil {
			result.Errors = append(result.Errors, invoicedomain.MemberError{MemberID: member.ID, Cause: err.Error()})
			log.Error("invoice.generate_member_failed",
				zap.String("member_id", member.ID.String()),
				zap.Error(err),
			)
			continue
		}
		switch res {
		case outcomeCreated:
			result.Created++
		default:
			result.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("invoices.created", result.Created),
		attribute.Int("invoices.skipped", result.Skipped),
		attribute.Int("invoices.errors", len(result.Errors)),
	)
	g.record(ctx, result)
	log.Info("invoice.generation_completed",
		zap.Int("members", len(members)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (g *Generator) record(ctx context.Context, result invoicedomain.GenerationResult) {
	g.obsMetrics.RecordInvoiceGeneration(ctx, result.Created, result.Skipped, len(result.Errors))
}

func (g *Generator) processMember(ctx context.Context, member *memberdomain.Member, now time.Time, period time.Duration, cfg config.BillingConfig) (outcome, error) {
	ctx = obscontext.WithMemberID(ctx, member.ID.String())
	log := obslogger.WithContext(ctx, g.log)

	open, err := g.invoiceRepo.CountByMemberAndStatus(ctx, g.db, member.ID, invoicedomain.OpenStatuses)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("count open invoices: %w", err)
	}
	if open > 0 {
		log.Debug("invoice.skip_open_invoice", zap.Int64("open", open))
		return outcomeSkipped, nil
	}

	anchor, err := g.Anchor(ctx, member)
	if err != nil {
		return outcomeSkipped, err
	}
	if now.Sub(anchor) < period {
		return outcomeSkipped, nil
	}

	plan, ok := cfg.PlanFor(member.SubscriptionType)
	if !ok {
		return outcomeSkipped, fmt.Errorf("%w: %q", invoicedomain.ErrUnknownPlan, member.SubscriptionType)
	}
	amount, err := format.ParseAmount(plan.Amount)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("%w: %w", invoicedomain.ErrInvalidAmount, err)
	}

	// Overlapping runs may both get past the open-invoice check above.
	exists, err := g.invoiceRepo.ExistsOpenForPeriod(ctx, g.db, member.ID, format.PeriodPrefix(now))
	if err != nil {
		return outcomeSkipped, fmt.Errorf("check period: %w", err)
	}
	if exists {
		log.Info("invoice.skip_period_exists", zap.String("period", format.PeriodPrefix(now)))
		return outcomeSkipped, nil
	}

	invoice := invoicedomain.Invoice{
		ID:        g.genID.Generate(),
		MemberID:  member.ID,
		Period:    format.PeriodLabel(now, plan.Label),
		Amount:    format.FormatAmount(amount),
		Status:    invoicedomain.InvoiceStatusUnpaid,
		Due:       now.Add(period),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.invoiceRepo.Insert(ctx, g.db, &invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			log.Info("invoice.skip_duplicate", zap.String("period", invoice.Period))
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("insert invoice: %w", err)
	}

	log.Info("invoice.generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("period", invoice.Period),
		zap.String("amount", invoice.Amount),
		zap.Time("anchor", anchor),
		zap.Time("due", invoice.Due),
	)

	// The invoice stands even when the balance write fails; the next
	// recompute on this member repairs it.
	if _, err := g.balance.Recompute(ctx, member.ID); err != nil {
		log.Warn("invoice.balance_recompute_failed", zap.Error(err))
	}
	return outcomeCreated, nil
}

// Anchor returns the time the member was last billed: the most recent
// completed payment, else the most recent invoice, else the start date, else
// when the member was created.
func (g *Generator) Anchor(ctx context.Context, member *memberdomain.Member) (time.Time, error) {
	payment, err := g.paymentRepo.LatestCompletedByMember(ctx, g.db, member.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest completed payment: %w", err)
	}
	if payment != nil && !payment.PaidAt.IsZero() {
		return payment.PaidAt, nil
	}

	invoice, err := g.invoiceRepo.LatestByMember(ctx, g.db, member.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest invoice: %w", err)
	}
	if invoice != nil && !invoice.CreatedAt.IsZero() {
		return invoice.CreatedAt, nil
	}

	if member.StartDate != nil && !member.StartDate.IsZero() {
		return *member.StartDate, nil
	}
	return member.CreatedAt, nil
}

// MarkOverdueInvoices moves Unpaid invoices past their due date to Overdue
// and recomputes the affected balances.
func (g *Generator) MarkOverdueInvoices(ctx context.Context) (invoicedomain.OverdueResult, error) {
	ctx, span := g.tracer.Start(ctx, "invoice.mark_overdue")
	defer span.End()

	var result invoicedomain.OverdueResult
	log := obslogger.WithContext(ctx, g.log)
	now := g.clock.Now()

	invoices, err := g.invoiceRepo.ListPastDue(ctx, g.db, now)
	if err != nil {
		return result, fmt.Errorf("list past due invoices: %w", err)
	}

	touched := make(map[snowflake.ID]struct{})
	order := make([]snowflake.ID, 0)
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		changed, err := g.invoiceRepo.MarkOverdue(ctx, g.db, inv.ID, now)
		if err != nil {
			result.Errors = append(result.Errors, invoicedomain.MemberError{MemberID: inv.MemberID, Cause: err.Error()})
			log.Error("invoice.mark_overdue_failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("member_id", inv.MemberID.String()),
				zap.Error(err),
			)
			continue
		}
		if !changed {
			continue
		}
		result.Marked++
		if _, seen := touched[inv.MemberID]; !seen {
			touched[inv.MemberID] = struct{}{}
			order = append(order, inv.MemberID)
		}
	}

	for _, memberID := range order {
		if _, err := g.balance.Recompute(ctx, memberID); err != nil && !errors.Is(err, memberdomain.ErrNotFound) {
			result.Errors = append(result.Errors, invoicedomain.MemberError{MemberID: memberID, Cause: err.Error()})
			log.Warn("invoice.balance_recompute_failed", zap.String("member_id", memberID.String()), zap.Error(err))
		}
	}

	g.obsMetrics.RecordOverdue(ctx, result.Marked)
	if result.Marked > 0 || len(result.Errors) > 0 {
		log.Info("invoice.overdue_sweep_completed",
			zap.Int("marked", result.Marked),
			zap.Int("errors", len(result.Errors)),
		)
	}
	return result, nil
}
