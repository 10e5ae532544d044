package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/duespay/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per API call. The request and correlation
// ids set by the request logger travel as baggage, so spans opened by the
// invoice, reminder and payment services join the same trace.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("duespay/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ids := map[string]string{
			"request_id":     obscontext.RequestIDFromContext(ctx),
			"correlation_id": obscontext.CorrelationIDFromContext(ctx),
		}
		ctx = withBaggage(ctx, ids)
		for key, value := range ids {
			if value != "" {
				span.SetAttributes(attribute.String(key, value))
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		// Member and payment routes address one record by :id.
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attribute.String("duespay.resource_id", id))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func withBaggage(ctx context.Context, values map[string]string) context.Context {
	bag := baggage.FromContext(ctx)
	for key, value := range values {
		if value == "" {
			continue
		}
		member, err := baggage.NewMember(key, value)
		if err != nil {
			continue
		}
		if next, err := bag.SetMember(member); err == nil {
			bag = next
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
