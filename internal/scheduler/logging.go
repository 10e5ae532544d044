package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	obscontext "github.com/smallbiznis/duespay/internal/observability/context"
	obslogger "github.com/smallbiznis/duespay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duespay/internal/observability/metrics"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	trigger        string
	startedAt      time.Time
	processedCount int
	errorCount     int
}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) AddErrors(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.errorCount += count
}

func (s *Scheduler) newJobRun(ctx context.Context, job, trigger string) (context.Context, *jobRun) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		trigger:   trigger,
		startedAt: s.clock.Now(),
	}
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithRunID(ctx, run.runID)
	ctx = obscontext.WithJob(ctx, job)
	ctx, _ = obscontext.EnsureCorrelationID(ctx)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("trigger", run.trigger),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("trigger", run.trigger),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

// logSchedulerError marks the job span failed and logs the run's outcome.
// A timed-out run is a warning; whatever it committed stays.
func (s *Scheduler) logSchedulerError(ctx context.Context, span trace.Span, run *jobRun, err error) {
	if err == nil || run == nil {
		return
	}
	errorType := obsmetrics.ClassifySchedulerErrorType(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, errorType)

	fields := []zap.Field{
		zap.String("trigger", run.trigger),
		zap.String("error_type", errorType),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Int("processed_count", run.processedCount),
		zap.Error(err),
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger(ctx).Warn("scheduler.job.timeout", append(fields, zap.Duration("timeout", s.cfg.JobTimeout))...)
		return
	}
	s.logger(ctx).Error("scheduler.job.failed", fields...)
}

// cronLogger routes robfig/cron's own logging into zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("scheduler.cron."+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("scheduler.cron."+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
