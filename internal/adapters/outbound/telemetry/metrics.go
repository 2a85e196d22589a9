package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.MetricsRecorder.
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	cacheLookups metric.Int64Counter
	proofChecks  metric.Int64Counter
	checkLatency metric.Float64Histogram
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a recorder on provider.
func NewMetricsWithProvider(provider metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := provider.Meter(meterName)

	lookups, err := meter.Int64Counter(
		"cache_lookups_total",
		metric.WithDescription("Cache lookups by cache name and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_lookups_total counter: %w", err)
	}

	checks, err := meter.Int64Counter(
		"proof_checks_total",
		metric.WithDescription("Proof checks by platform and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof_checks_total counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"proof_check_duration_seconds",
		metric.WithDescription("Time taken to fetch and check published content"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof_check_duration_seconds histogram: %w", err)
	}

	return &Metrics{
		cacheLookups: lookups,
		proofChecks:  checks,
		checkLatency: latency,
	}, nil
}

// RecordCacheLookup counts a lookup against cache.
func (m *Metrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	))
}

// RecordProofCheck counts a proof check and records its duration.
func (m *Metrics) RecordProofCheck(ctx context.Context, platform entity.Platform, result entity.VerifyResult, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("result", string(result)),
	)
	m.proofChecks.Add(ctx, 1, attrs)
	m.checkLatency.Record(ctx, duration.Seconds(), attrs)
}
