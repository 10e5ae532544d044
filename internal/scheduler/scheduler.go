package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/duespay/internal/clock"
	invoicedomain "github.com/smallbiznis/duespay/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/duespay/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/duespay/internal/reminder/domain"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	settingsservice "github.com/smallbiznis/duespay/internal/settings/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_scheduler_job")
	ErrJobLocked     = errors.New("scheduler_job_locked")
)

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config                       `optional:"true"`
	Generator invoicedomain.Generator
	Reminders reminderdomain.Dispatcher
	Settings  settingsdomain.Service
	Locker    Locker                       `optional:"true"`
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler owns the cron timers for invoice generation and reminder checks.
// Each job has at most one cron entry at any time.
type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	generator invoicedomain.Generator
	reminders reminderdomain.Dispatcher
	settings  settingsdomain.Service
	locker    Locker
	metrics   *obsmetrics.SchedulerMetrics
	tracer    trace.Tracer

	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	entries map[string]cron.EntryID
	specs   map[string]string
	running bool
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Generator == nil || p.Reminders == nil || p.Settings == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, cfg.Timezone, err)
	}
	if _, err := settingsservice.ParseScheduleTime(cfg.InvoiceTime); err != nil {
		return nil, fmt.Errorf("%w: invoice time %q: %v", ErrInvalidConfig, cfg.InvoiceTime, err)
	}

	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	cl := cronLogger{log: log}

	return &Scheduler{
		log:       log,
		cfg:       cfg,
		genID:     p.GenID,
		clock:     p.Clock,
		generator: p.Generator,
		reminders: p.Reminders,
		settings:  p.Settings,
		locker:    p.Locker,
		metrics:   metrics,
		tracer:    otel.Tracer("duespay/scheduler"),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		loc:     loc,
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}, nil
}

// Start registers the invoice job, schedules the reminder job from the stored
// settings and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.InvoiceJobEnabled {
		s.removeLocked(JobInvoiceGeneration)
		if err := s.addLocked(JobInvoiceGeneration, s.cfg.InvoiceTime); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load email settings: %w", err)
	}
	if err := s.Reschedule(settings); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	s.log.Info("scheduler.started",
		zap.String("timezone", s.loc.String()),
		zap.String("invoice_time", s.cfg.InvoiceTime),
		zap.Bool("invoice_job_enabled", s.cfg.InvoiceJobEnabled),
		zap.Bool("reminders_enabled", settings.AutomationEnabled),
		zap.Bool("lock_enabled", s.locker != nil),
	)
	return nil
}

// Stop prevents further fires and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.log.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler.stop_timeout", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Reschedule replaces the reminder timer. The old entry is always removed
// first and a new one is added only when automation is enabled, so calling it
// repeatedly never leaves two reminder entries. A run already in progress is
// not interrupted.
func (s *Scheduler) Reschedule(settings settingsdomain.EmailSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(JobReminderCheck)
	if !settings.AutomationEnabled {
		s.log.Info("scheduler.job.unscheduled",
			zap.String("job", JobReminderCheck),
			zap.String("reason", string(reminderdomain.SkipReasonAutomationDisabled)),
		)
		return nil
	}
	if err := s.addLocked(JobReminderCheck, settings.ScheduleTime); err != nil {
		return err
	}
	s.warnIfReminderPrecedesInvoices(settings.ScheduleTime)
	return nil
}

// warnIfReminderPrecedesInvoices flags a reminder time at or before the
// invoice job. Such a run reminds from the previous day's invoices and, in the
// same minute, races the generator.
func (s *Scheduler) warnIfReminderPrecedesInvoices(reminderTime string) {
	if !s.cfg.InvoiceJobEnabled {
		return
	}
	reminder, err := settingsservice.ParseScheduleTime(reminderTime)
	if err != nil {
		return
	}
	invoice, err := settingsservice.ParseScheduleTime(s.cfg.InvoiceTime)
	if err != nil {
		return
	}
	if invoice.Before(reminder) {
		return
	}
	s.log.Warn("scheduler.reminder_not_after_invoices",
		zap.String("reminder_time", reminderTime),
		zap.String("invoice_time", s.cfg.InvoiceTime),
	)
}

// RunNow runs a job immediately on the caller's goroutine through the same
// path as a timer fire.
func (s *Scheduler) RunNow(ctx context.Context, job string) error {
	return s.run(ctx, job, TriggerManual)
}

// Scheduled returns the cron spec registered for job.
func (s *Scheduler) Scheduled(job string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[job]
	return spec, ok
}

// NextRun returns the next fire time of job. It is zero until Start was called.
func (s *Scheduler) NextRun(job string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// EntryCount reports how many timers are registered with cron.
func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) addLocked(job, hhmm string) error {
	at, err := settingsservice.ParseScheduleTime(hhmm)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job, err)
	}
	spec := at.CronSpec()
	id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job, err)
	}
	s.entries[job] = id
	s.specs[job] = spec
	s.log.Info("scheduler.job.scheduled",
		zap.String("job", job),
		zap.String("at", hhmm),
		zap.String("spec", spec),
		zap.String("timezone", s.loc.String()),
	)
	return nil
}

func (s *Scheduler) removeLocked(job string) {
	id, ok := s.entries[job]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, job)
	delete(s.specs, job)
}

// fire runs job from a cron tick. Failures were already logged by runJob.
func (s *Scheduler) fire(job string) {
	if err := s.run(context.Background(), job, TriggerCron); errors.Is(err, ErrJobLocked) {
		s.log.Info("scheduler.job.skipped", zap.String("job", job), zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
	}
}

func (s *Scheduler) run(ctx context.Context, job, trigger string) error {
	var fn func(context.Context, *jobRun) error
	switch job {
	case JobInvoiceGeneration:
		fn = s.invoiceJob
	case JobReminderCheck:
		fn = s.reminderJob
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	return s.runJob(ctx, job, trigger, fn)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	trigger string,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx := parent
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.cfg.JobTimeout)
		defer cancel()
	}

	ctx, run := s.newJobRun(ctx, name, trigger)
	log := s.logger(ctx)

	if s.locker != nil {
		key := keyJobLock + name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		switch {
		case err != nil:
			// Decisions are idempotent, so a lost guard only costs duplicate work.
			log.Warn("scheduler.lock.unavailable", zap.Error(err))
		case !ok:
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
			return ErrJobLocked
		default:
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.locker.Release(releaseCtx, key, token); err != nil {
					log.Warn("scheduler.lock.release_failed", zap.Error(err))
				}
			}()
		}
	}

	ctx, span := s.tracer.Start(ctx, "scheduler."+name, trace.WithAttributes(
		attribute.String("scheduler.job", name),
		attribute.String("scheduler.trigger", trigger),
		attribute.String("scheduler.run_id", run.runID),
	))
	defer span.End()

	s.metrics.IncJobRun(name)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.AddErrors(1)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		s.metrics.MarkSuccess(name, s.clock.Now())
		return nil
	}

	s.logSchedulerError(ctx, span, run, err)

	// A deadline is a soft timeout: work already committed stays, the next
	// fire picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) {
		s.metrics.IncJobTimeout(name)
		s.metrics.IncJobError(name, err)
		return nil
	}
	s.metrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// invoiceJob generates due invoices and then sweeps past-due ones to Overdue.
func (s *Scheduler) invoiceJob(ctx context.Context, run *jobRun) error {
	generated, err := s.generator.GenerateDueInvoices(ctx)
	run.AddProcessed(generated.Created)
	run.AddErrors(len(generated.Errors))
	s.metrics.AddBatchProcessed(JobInvoiceGeneration, obsmetrics.ResourceInvoices, generated.Created)
	for _, memberErr := range generated.Errors {
		s.logger(ctx).Warn("scheduler.invoice.member_failed",
			zap.String("member_id", memberErr.MemberID.String()),
			zap.String("cause", memberErr.Cause),
		)
	}
	if err != nil {
		return fmt.Errorf("generate due invoices: %w", err)
	}

	overdue, err := s.generator.MarkOverdueInvoices(ctx)
	run.AddProcessed(overdue.Marked)
	run.AddErrors(len(overdue.Errors))
	s.metrics.AddBatchProcessed(JobInvoiceGeneration, obsmetrics.ResourceInvoices, overdue.Marked)
	if err != nil {
		return fmt.Errorf("mark overdue invoices: %w", err)
	}
	return nil
}

func (s *Scheduler) reminderJob(ctx context.Context, run *jobRun) error {
	result, err := s.reminders.CheckAndSendReminders(ctx)
	if result.SkipReason != reminderdomain.SkipReasonNone {
		s.metrics.IncJobSkipped(JobReminderCheck, string(result.SkipReason))
	}
	run.AddProcessed(result.Delivered + result.Failed)
	run.AddErrors(len(result.Errors))
	s.metrics.AddBatchProcessed(JobReminderCheck, obsmetrics.ResourceReminders, result.Delivered+result.Failed)
	if err != nil {
		return fmt.Errorf("check reminders: %w", err)
	}
	return nil
}
