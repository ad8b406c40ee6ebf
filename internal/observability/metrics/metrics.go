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

// Metrics exposes application-level instruments.
type Metrics struct {
	admissions   metric.Int64Counter
	discharges   metric.Int64Counter
	invoices     metric.Int64Counter
	payments     metric.Int64Counter
	paymentEvent metric.Int64Counter
	conflicts    metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "carebill"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.admissions, "carebill_admissions_total"},
		{&m.discharges, "carebill_discharges_total"},
		{&m.invoices, "carebill_invoice_transitions_total"},
		{&m.payments, "carebill_payments_total"},
		{&m.paymentEvent, "carebill_payment_events_total"},
		{&m.conflicts, "carebill_concurrency_conflicts_total"},
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

// RecordAdmission counts admissions by room type.
func (m *Metrics) RecordAdmission(ctx context.Context, roomType string) {
	if m == nil {
		return
	}
	m.admissions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("room_type", strings.TrimSpace(roomType)),
	)...))
}

// RecordDischarge counts completed discharges.
func (m *Metrics) RecordDischarge(ctx context.Context, roomType string, attempts int) {
	if m == nil {
		return
	}
	m.discharges.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("room_type", strings.TrimSpace(roomType)),
		attribute.Int("attempts", attempts),
	)...))
}

// RecordInvoiceTransition counts invoice status changes.
func (m *Metrics) RecordInvoiceTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.invoices.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
	)...))
}

// RecordPayment counts persisted payments by method.
func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.payments.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
	)...))
}

// RecordPaymentEvent counts provider events by outcome.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvent.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

// RecordConflict counts optimistic-lock conflicts.
func (m *Metrics) RecordConflict(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("entity", strings.TrimSpace(entity)),
	)...))
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
	"room_type":  {},
	"attempts":   {},
	"status":     {},
	"method":     {},
	"provider":   {},
	"event_type": {},
	"outcome":    {},
	"entity":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
