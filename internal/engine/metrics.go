package engine

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/monban/internal/telemetry"
)

// RegisterMetrics registers observable OTEL gauges for engine health
// monitoring. Called once after telemetry.Init has installed the global
// meter provider.
func (e *Engine) RegisterMetrics() {
	meter := telemetry.Meter("monban/engine")

	_, _ = meter.Int64ObservableGauge("monban.interviews.active",
		metric.WithDescription("Interviews currently in progress"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.ActiveInterviews()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("monban.locks.held",
		metric.WithDescription("Player names locked by an in-progress interview"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.LockedNames()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("monban.cooldowns.active",
		metric.WithDescription("Retry cooldowns currently in force"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.ActiveCooldowns()))
			return nil
		}),
	)
}
