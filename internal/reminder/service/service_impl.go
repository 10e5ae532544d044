package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	balanceservice "github.com/smallbiznis/duespay/internal/balance/service"
	"github.com/smallbiznis/duespay/internal/clock"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	"github.com/smallbiznis/duespay/internal/invoice/format"
	memberdomain "github.com/smallbiznis/duespay/internal/member/domain"
	obscontext "github.com/smallbiznis/duespay/internal/observability/context"
	obslogger "github.com/smallbiznis/duespay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duespay/internal/observability/metrics"
	"github.com/smallbiznis/duespay/internal/providers/email"
	reminderdomain "github.com/smallbiznis/duespay/internal/reminder/domain"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        reminderdomain.Repository
	MemberRepo  memberdomain.Repository
	InvoiceRepo invoicedomain.Repository
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
	repo        reminderdomain.Repository
	memberRepo  memberdomain.Repository
	invoiceRepo invoicedomain.Repository
	settings    settingsdomain.Service
	mailer      email.Factory
	renderer    *email.Renderer
	obsMetrics  *obsmetrics.Metrics
	tracer      trace.Tracer
}

func NewService(p Params) reminderdomain.Dispatcher {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reminder.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		memberRepo:  p.MemberRepo,
		invoiceRepo: p.InvoiceRepo,
		settings:    p.Settings,
		mailer:      p.Mailer,
		renderer:    p.Renderer,
		obsMetrics:  p.ObsMetrics,
		tracer:      otel.Tracer("duespay/reminder"),
	}
}

// run carries what one dispatch needs once settings were resolved.
type run struct {
	settings settingsdomain.EmailSettings
	provider email.Provider
	trigger  reminderdomain.Trigger
	now      time.Time
}

type attempt int

const (
	attemptNone attempt = iota
	attemptGated
	attemptDelivered
	attemptFailed
)

// CheckAndSendReminders sends one reminder to every Active member with
// outstanding invoices whose last reminder is at least ReminderInterval whole
// days old. It does nothing when automation is off or no mailer is set up.
func (s *Service) CheckAndSendReminders(ctx context.Context) (reminderdomain.DispatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "reminder.check")
	defer span.End()

	var result reminderdomain.DispatchResult
	log := obslogger.WithContext(ctx, s.log)

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return result, err
	}
	if !settings.AutomationEnabled {
		result.SkipReason = reminderdomain.SkipReasonAutomationDisabled
		log.Info("reminder.check_skipped", zap.String("reason", string(result.SkipReason)))
		return result, nil
	}
	r, ok := s.begin(settings, reminderdomain.TriggerScheduled)
	if !ok {
		result.SkipReason = reminderdomain.SkipReasonMailerNotConfigured
		log.Warn("reminder.check_skipped", zap.String("reason", string(result.SkipReason)))
		return result, nil
	}

	members, err := s.memberRepo.ListByStatus(ctx, s.db, memberdomain.StatusActive)
	if err != nil {
		return result, fmt.Errorf("list active members: %w", err)
	}

	for _, member := range members {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if member == nil {
			continue
		}
		outcome, err := s.process(ctx, r, member, true)
		s.tally(&result, member.ID, outcome, err)
	}

	s.finish(ctx, span, log, r.trigger, result)
	return result, nil
}

// SendReminderTo sends a reminder to one member regardless of automation and
// of the interval gate. It reports whether the mail was delivered.
func (s *Service) SendReminderTo(ctx context.Context, memberID snowflake.ID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "reminder.send_member")
	defer span.End()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false, err
	}
	r, ok := s.begin(settings, reminderdomain.TriggerManual)
	if !ok {
		return false, reminderdomain.ErrMailerNotConfigured
	}

	member, err := s.memberRepo.FindByID(ctx, s.db, memberID)
	if err != nil {
		return false, err
	}
	if member == nil {
		return false, memberdomain.ErrNotFound
	}
	if member.Status != memberdomain.StatusActive {
		return false, reminderdomain.ErrMemberNotActive
	}

	outcome, err := s.process(ctx, r, member, false)
	if err != nil {
		return false, err
	}
	switch outcome {
	case attemptNone:
		return false, reminderdomain.ErrNothingOutstanding
	case attemptDelivered:
		return true, nil
	default:
		return false, nil
	}
}

// SendReminderToAllOutstanding sends a reminder to every Active member with
// outstanding invoices, ignoring the interval gate and the automation flag.
func (s *Service) SendReminderToAllOutstanding(ctx context.Context) (reminderdomain.DispatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "reminder.send_outstanding")
	defer span.End()

	var result reminderdomain.DispatchResult
	log := obslogger.WithContext(ctx, s.log)

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return result, err
	}
	r, ok := s.begin(settings, reminderdomain.TriggerOutstanding)
	if !ok {
		result.SkipReason = reminderdomain.SkipReasonMailerNotConfigured
		log.Warn("reminder.outstanding_skipped", zap.String("reason", string(result.SkipReason)))
		return result, nil
	}

	ids, err := s.invoiceRepo.ListMemberIDsWithStatus(ctx, s.db, invoicedomain.OutstandingStatuses)
	if err != nil {
		return result, fmt.Errorf("list members with outstanding invoices: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		member, err := s.memberRepo.FindByID(ctx, s.db, id)
		if err != nil {
			s.tally(&result, id, attemptNone, err)
			continue
		}
		if member == nil || member.Status != memberdomain.StatusActive {
			result.Skipped++
			continue
		}
		outcome, err := s.process(ctx, r, member, false)
		s.tally(&result, member.ID, outcome, err)
	}

	s.finish(ctx, span, log, r.trigger, result)
	return result, nil
}

func (s *Service) begin(settings settingsdomain.EmailSettings, trigger reminderdomain.Trigger) (run, bool) {
	if !settings.MailerConfigured() || s.mailer == nil || s.renderer == nil {
		return run{}, false
	}
	return run{
		settings: settings,
		provider: s.mailer(email.ConfigFromSettings(settings)),
		trigger:  trigger,
		now:      s.clock.Now(),
	}, true
}

func (s *Service) tally(result *reminderdomain.DispatchResult, memberID snowflake.ID, outcome attempt, err error) {
	if err != nil {
		result.Errors = append(result.Errors, reminderdomain.MemberError{MemberID: memberID, Cause: err.Error()})
		s.log.Error("reminder.member_failed", zap.String("member_id", memberID.String()), zap.Error(err))
	}
	if outcome != attemptNone {
		result.Eligible++
	}
	switch outcome {
	case attemptGated:
		result.Gated++
	case attemptDelivered:
		result.Delivered++
	case attemptFailed:
		result.Failed++
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, log *zap.Logger, trigger reminderdomain.Trigger, result reminderdomain.DispatchResult) {
	span.SetAttributes(
		attribute.String("reminder.trigger", string(trigger)),
		attribute.Int("reminder.eligible", result.Eligible),
		attribute.Int("reminder.delivered", result.Delivered),
		attribute.Int("reminder.failed", result.Failed),
		attribute.Int("reminder.skipped", result.Skipped),
	)
	log.Info("reminder.run_completed",
		zap.String("trigger", string(trigger)),
		zap.Int("eligible", result.Eligible),
		zap.Int("gated", result.Gated),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
}

// process handles one member. Every send attempt, delivered or not, appends
// exactly one log entry; a gated member gets none.
func (s *Service) process(ctx context.Context, r run, member *memberdomain.Member, gate bool) (attempt, error) {
	ctx = obscontext.WithMemberID(ctx, member.ID.String())
	log := obslogger.WithContext(ctx, s.log)

	invoices, err := s.invoiceRepo.ListByMemberAndStatus(ctx, s.db, member.ID, invoicedomain.OutstandingStatuses)
	if err != nil {
		return attemptNone, fmt.Errorf("list outstanding invoices: %w", err)
	}
	if len(invoices) == 0 {
		return attemptNone, nil
	}

	total, overdue, err := balanceservice.Summarize(invoices)
	if err != nil {
		return attemptNone, err
	}

	if gate {
		last, found, err := s.repo.MostRecent(ctx, s.db, member.ID)
		if err != nil {
			return attemptNone, fmt.Errorf("most recent reminder: %w", err)
		}
		if !reminderdomain.DueForReminder(last, found, r.now, r.settings.ReminderInterval) {
			log.Debug("reminder.gated",
				zap.Time("last_sent_at", last.SentAt),
				zap.Int("interval_days", r.settings.ReminderInterval),
			)
			return attemptGated, nil
		}
	}

	reminderType := reminderdomain.ReminderTypeUpcoming
	if overdue {
		reminderType = reminderdomain.ReminderTypeOverdue
	}
	totalDue := format.FormatAmount(total)

	sendErr := s.send(ctx, r, member, invoices, totalDue, overdue)

	entry := reminderdomain.LogEntry{
		ID:           s.genID.Generate(),
		MemberID:     member.ID,
		SentAt:       r.now,
		ReminderType: reminderType,
		Amount:       totalDue,
		InvoiceCount: len(invoices),
		Status:       reminderdomain.DeliveryStatusDelivered,
		Metadata:     metadataFor(r.trigger, member.Email, invoices),
	}
	if sendErr != nil {
		entry.Status = reminderdomain.DeliveryStatusFailed
		entry.Error = truncate(sendErr.Error(), 500)
	}
	s.obsMetrics.RecordReminder(ctx, string(r.trigger), sendErr == nil)

	if err := s.repo.Append(ctx, s.db, &entry); err != nil {
		return attemptNone, fmt.Errorf("append reminder log: %w", err)
	}

	if sendErr != nil {
		log.Warn("reminder.failed",
			zap.String("trigger", string(r.trigger)),
			zap.String("reminder_type", string(reminderType)),
			zap.Error(sendErr),
		)
		return attemptFailed, nil
	}
	log.Info("reminder.sent",
		zap.String("trigger", string(r.trigger)),
		zap.String("reminder_type", string(reminderType)),
		zap.String("amount", totalDue),
		zap.Int("invoice_count", len(invoices)),
	)
	return attemptDelivered, nil
}

func (s *Service) send(ctx context.Context, r run, member *memberdomain.Member, invoices []*invoicedomain.Invoice, totalDue string, overdue bool) error {
	to := strings.TrimSpace(member.Email)
	if to == "" {
		return email.ErrNoRecipient
	}

	data := email.ReminderData{
		MemberName:   member.Name,
		TotalDue:     totalDue,
		InvoiceCount: len(invoices),
		Overdue:      overdue,
		Invoices:     make([]email.InvoiceLine, 0, len(invoices)),
	}
	for _, inv := range invoices {
		data.Invoices = append(data.Invoices, email.InvoiceLine{
			Period: inv.Period,
			Amount: inv.Amount,
			Status: string(inv.Status),
			Due:    format.DueDate(inv.Due),
		})
	}

	msg, err := s.renderer.Reminder(to, data)
	if err != nil {
		return err
	}
	return r.provider.Send(ctx, msg)
}

func metadataFor(trigger reminderdomain.Trigger, to string, invoices []*invoicedomain.Invoice) datatypes.JSONMap {
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID.String())
	}
	return datatypes.JSONMap{
		"trigger":     string(trigger),
		"to":          to,
		"invoice_ids": ids,
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
