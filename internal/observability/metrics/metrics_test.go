package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsMemberLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("trigger", "scheduled"),
		attribute.String("member_id", "m-1"),
		attribute.String("decision", "approve"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("trigger"), attrs[0].Key)
	assert.Equal(t, attribute.Key("decision"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInvoiceGeneration(context.Background(), 1, 1, 1)
		m.RecordReminder(context.Background(), "manual", true)
		m.RecordPaymentDecision(context.Background(), "reject")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordInvoiceGeneration(context.Background(), 2, 0, 1)
		m.RecordOverdue(context.Background(), 3)
	})
}
