// Package context carries correlation identifiers used by structured logging.
package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorTypeKey
	actorIDKey
	runIDKey
	correlationIDKey
	jobKey
	memberIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithActor records who triggered the current unit of work.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

// WithJob names the scheduler job a unit of work belongs to.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, strings.TrimSpace(job))
}

func JobFromContext(ctx context.Context) string {
	return stringValue(ctx, jobKey)
}

// WithMemberID scopes ctx to one member, so queries issued on their behalf are attributable.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, memberIDKey, strings.TrimSpace(memberID))
}

func MemberIDFromContext(ctx context.Context) string {
	return stringValue(ctx, memberIDKey)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// EnsureCorrelationID returns ctx carrying a correlation id, minting one when absent.
// Work started from a request or a scheduler run shares it with everything it triggers.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		return ctx, cid
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cid := ulid.Make().String()
	return context.WithValue(ctx, correlationIDKey, cid), cid
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
