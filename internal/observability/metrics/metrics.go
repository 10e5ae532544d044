package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing instruments exported over OTLP.
type Metrics struct {
	invoicesGenerated metric.Int64Counter
	invoicesSkipped   metric.Int64Counter
	invoiceErrors     metric.Int64Counter
	invoicesOverdue   metric.Int64Counter
	remindersSent     metric.Int64Counter
	remindersFailed   metric.Int64Counter
	paymentDecisions  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "duespay"
	}
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.invoicesGenerated, "duespay_invoices_generated_total"},
		{&m.invoicesSkipped, "duespay_invoices_skipped_total"},
		{&m.invoiceErrors, "duespay_invoice_generation_errors_total"},
		{&m.invoicesOverdue, "duespay_invoices_overdue_total"},
		{&m.remindersSent, "duespay_reminders_sent_total"},
		{&m.remindersFailed, "duespay_reminders_failed_total"},
		{&m.paymentDecisions, "duespay_payment_decisions_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordInvoiceGeneration records the outcome counts of one generation pass.
func (m *Metrics) RecordInvoiceGeneration(ctx context.Context, created, skipped, failed int) {
	if m == nil {
		return
	}
	if created > 0 {
		m.invoicesGenerated.Add(ctx, int64(created))
	}
	if skipped > 0 {
		m.invoicesSkipped.Add(ctx, int64(skipped))
	}
	if failed > 0 {
		m.invoiceErrors.Add(ctx, int64(failed))
	}
}

// RecordOverdue records invoices moved to Overdue by the sweep.
func (m *Metrics) RecordOverdue(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoicesOverdue.Add(ctx, int64(count))
}

// RecordReminder records a reminder delivery attempt.
func (m *Metrics) RecordReminder(ctx context.Context, trigger string, sent bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	if sent {
		m.remindersSent.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	m.remindersFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentDecision records an administrator decision on a payment.
func (m *Metrics) RecordPaymentDecision(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("decision", strings.TrimSpace(decision)))
	m.paymentDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"trigger":     {},
	"decision":    {},
	"job":         {},
	"status_code": {},
}

// FilterAttributes strips labels that would blow up cardinality, such as member ids.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
