package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/arbor/pkg/domain"
)

// Metrics holds the collectors fed by the model hooks.
type Metrics struct {
	events    *prometheus.CounterVec
	applyTime *prometheus.HistogramVec
	loads     *prometheus.CounterVec
	loadTime  *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	gatherer  prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsWith(reg)
	if err != nil {
		return nil, err
	}
	m.gatherer = reg
	return m, nil
}

// NewMetricsWith registers the collectors on reg. Handler then serves the
// default gatherer unless reg is also a Gatherer.
func NewMetricsWith(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_events_applied_total",
			Help: "Events fully applied to the tree.",
		}, []string{"kind", "contributor"}),
		applyTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_event_apply_seconds",
			Help:    "Time spent applying one event on the executor.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_loads_total",
			Help: "Lazy children loads by result.",
		}, []string{"contributor", "result"}),
		loadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "arbor_load_seconds",
			Help: "Duration of lazy children loads.",
		}, []string{"contributor"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_provider_failures_total",
			Help: "Contributor calls that failed or panicked.",
		}, []string{"contributor", "op"}),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, c := range []prometheus.Collector{m.events, m.applyTime, m.loads, m.loadTime, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEventApplied: func(ctx context.Context, e *domain.AppliedEvent) {
			kind := string(e.Event.Kind)
			m.events.WithLabelValues(kind, e.Event.Contributor).Inc()
			m.applyTime.WithLabelValues(kind).Observe(e.Duration.Seconds())
		},
		OnLoad: func(ctx context.Context, e *domain.LoadEvent) {
			result := "ok"
			if e.Err != nil {
				result = "error"
			}
			m.loads.WithLabelValues(e.Contributor, result).Inc()
			m.loadTime.WithLabelValues(e.Contributor).Observe(e.Duration.Seconds())
		},
		OnProviderFailure: func(ctx context.Context, e *domain.ProviderError) {
			m.failures.WithLabelValues(e.Contributor, e.Op).Inc()
		},
	}
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// LogHooks returns hooks that log every lifecycle event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEventApplied: func(ctx context.Context, e *domain.AppliedEvent) {
			logger.DebugContext(ctx, "event_applied",
				"event", e.Event.String(),
				"duration", e.Duration,
			)
		},
		OnLoad: func(ctx context.Context, e *domain.LoadEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "load_failed", "item", e.ItemID, "contributor", e.Contributor, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "load",
				"item", e.ItemID,
				"contributor", e.Contributor,
				"children", e.Children,
				"duration", e.Duration,
			)
		},
		OnProviderFailure: func(ctx context.Context, e *domain.ProviderError) {
			logger.WarnContext(ctx, "provider_failure", "contributor", e.Contributor, "op", e.Op, "err", e.Err)
		},
	}
}

// Combine fans every hook out to each set in order. Nil hooks are skipped.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, s := range sets {
		if f := s.OnEventApplied; f != nil {
			prev := out.OnEventApplied
			out.OnEventApplied = func(ctx context.Context, e *domain.AppliedEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				f(ctx, e)
			}
		}
		if f := s.OnLoad; f != nil {
			prev := out.OnLoad
			out.OnLoad = func(ctx context.Context, e *domain.LoadEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				f(ctx, e)
			}
		}
		if f := s.OnProviderFailure; f != nil {
			prev := out.OnProviderFailure
			out.OnProviderFailure = func(ctx context.Context, e *domain.ProviderError) {
				if prev != nil {
					prev(ctx, e)
				}
				f(ctx, e)
			}
		}
	}
	return out
}
