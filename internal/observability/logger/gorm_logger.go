package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig controls which statements reach the log.
type QueryLogConfig struct {
	// Level is one of silent, error, warn or info. Info logs every statement at debug.
	Level         string
	SlowThreshold time.Duration
}

// QueryLogger routes gorm output through zap. Every line carries the job,
// run and member found on the query context, so a slow or failing statement
// can be traced back to the billing run and member it served.
type QueryLogger struct {
	base          *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewQueryLogger(base *zap.Logger, cfg QueryLogConfig) *QueryLogger {
	if base == nil {
		base = zap.L()
	}
	return &QueryLogger{
		base:          base.Named("db"),
		level:         parseQueryLogLevel(cfg.Level),
		slowThreshold: cfg.SlowThreshold,
	}
}

func parseQueryLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		WithContext(ctx, l.base).Info("db.message", zap.String("message", fmt.Sprintf(msg, data...)))
	}
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		WithContext(ctx, l.base).Warn("db.message", zap.String("message", fmt.Sprintf(msg, data...)))
	}
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		WithContext(ctx, l.base).Error("db.message", zap.String("message", fmt.Sprintf(msg, data...)))
	}
}

// Trace logs failed statements at error and slow ones at warn. Record-not-found
// is never logged: repositories translate it into a nil result.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	switch {
	case failed && l.level >= gormlogger.Error:
		l.queryLogger(ctx, fc, elapsed).Error("db.query_failed", zap.Error(err))
	case slow && l.level >= gormlogger.Warn:
		l.queryLogger(ctx, fc, elapsed).Warn("db.query_slow", zap.Duration("threshold", l.slowThreshold))
	case l.level >= gormlogger.Info:
		l.queryLogger(ctx, fc, elapsed).Debug("db.query")
	}
}

// ParamsFilter drops bound values; settings rows carry the SMTP password.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) queryLogger(ctx context.Context, fc func() (string, int64), elapsed time.Duration) *zap.Logger {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("operation", statementOperation(sql)),
		zap.String("table", statementTable(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return WithContext(ctx, l.base).With(fields...)
}

func statementOperation(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

// statementTable returns the first table named after FROM, INTO or UPDATE.
func statementTable(sql string) string {
	tokens := strings.Fields(sql)
	for i, token := range tokens {
		switch strings.ToUpper(token) {
		case "FROM", "INTO", "UPDATE":
			if i+1 < len(tokens) {
				return strings.Trim(tokens[i+1], "`\"();")
			}
		}
	}
	return ""
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
