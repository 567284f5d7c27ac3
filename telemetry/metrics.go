// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PassesTotal      *prometheus.CounterVec // outcome=ok|aborted
	ChannelEdits     *prometheus.CounterVec // kind=category|position
	ChannelSkips     *prometheus.CounterVec // reason=fetch|edit|delete|capability
	ArchiveCommands  prometheus.Counter
	OverridesCleared prometheus.Counter
	PersistFailures  prometheus.Counter
	TriggerDeletions prometheus.Counter

	// Histograms (seconds)
	PassDuration prometheus.Observer

	// Gauges
	OverrideGauge prometheus.Gauge
	LastPassGauge prometheus.Gauge // unix seconds of the last completed pass
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tender_passes_total", Help: "Reconciliation passes by outcome"}, []string{"outcome"})
		ChannelEdits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tender_channel_edits_total", Help: "Channel edits issued, by what changed"}, []string{"kind"})
		ChannelSkips = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tender_channel_skips_total", Help: "Channels skipped during a pass, by failing step"}, []string{"reason"})
		ArchiveCommands = promauto.NewCounter(prometheus.CounterOpts{Name: "tender_archive_commands_total", Help: "Archive commands honored"})
		OverridesCleared = promauto.NewCounter(prometheus.CounterOpts{Name: "tender_overrides_superseded_total", Help: "Overrides removed because newer activity arrived"})
		PersistFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "tender_override_persist_failures_total", Help: "Failed writes of the override table"})
		TriggerDeletions = promauto.NewCounter(prometheus.CounterOpts{Name: "tender_trigger_deletions_total", Help: "Archive trigger messages deleted"})
		PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tender_pass_duration_seconds", Help: "Reconciliation pass duration seconds", Buckets: prometheus.DefBuckets})
		OverrideGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tender_overrides", Help: "Current number of stored archive overrides"})
		LastPassGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "tender_last_pass_timestamp_seconds", Help: "Unix time of the last completed pass"})
	})
}

// SetOverrideCount records the current override table size.
func SetOverrideCount(n int) {
	if OverrideGauge != nil {
		OverrideGauge.Set(float64(n))
	}
}

// IncPersistFailure counts a failed override write.
func IncPersistFailure() {
	if PersistFailures != nil {
		PersistFailures.Inc()
	}
}

// IncPass counts a finished pass with the given outcome.
func IncPass(outcome string) {
	if PassesTotal != nil {
		PassesTotal.WithLabelValues(outcome).Inc()
	}
	if outcome == "ok" && LastPassGauge != nil {
		LastPassGauge.Set(float64(time.Now().Unix()))
	}
}

// IncEdit counts an issued channel edit.
func IncEdit(kind string) {
	if ChannelEdits != nil {
		ChannelEdits.WithLabelValues(kind).Inc()
	}
}

// IncSkip counts a channel skipped for the given reason.
func IncSkip(reason string) {
	if ChannelSkips != nil {
		ChannelSkips.WithLabelValues(reason).Inc()
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
