package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("room_type", "ICU"),
		attribute.String("patient_id", "456"),
		attribute.String("outcome", "duplicate"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("room_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAdmission(ctx, "ICU")
		m.RecordDischarge(ctx, "ICU", 1)
		m.RecordPayment(ctx, "cash")
		m.RecordPaymentEvent(ctx, "stripe", "checkout.session.completed", "recorded")
		m.RecordConflict(ctx, "room")
		m.RecordInvoiceTransition(ctx, "PAID")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.RecordAdmission(context.Background(), "STANDARD") })
}
