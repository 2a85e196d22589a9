package outbound

import (
	"context"
	"time"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordCacheLookup records a cache lookup; hit is false when a fetch was issued.
	RecordCacheLookup(ctx context.Context, cache string, hit bool)

	// RecordProofCheck records the outcome and duration of one proof check.
	RecordProofCheck(ctx context.Context, platform entity.Platform, result entity.VerifyResult, duration time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordCacheLookup(context.Context, string, bool) {}
func (NopMetrics) RecordProofCheck(context.Context, entity.Platform, entity.VerifyResult, time.Duration) {
}
