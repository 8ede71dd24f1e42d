package oauth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes flow, refresh and throttling counters. A nil *Metrics
// records nothing.
type Metrics struct {
	flows     *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	upstream  *prometheus.HistogramVec
	throttled *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Collectors that are
// already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthcore",
			Name:      "flows_total",
			Help:      "Completed OAuth callback flows by provider and result.",
		}, []string{"provider", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthcore",
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by provider and result.",
		}, []string{"provider", "result"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oauthcore",
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauthcore",
			Name:      "throttled_total",
			Help:      "Requests rejected by rate limits.",
		}, []string{"scope"}),
	}

	var err error
	if m.flows, err = register(reg, m.flows); err != nil {
		return nil, err
	}
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.upstream, err = register(reg, m.upstream); err != nil {
		return nil, err
	}
	if m.throttled, err = register(reg, m.throttled); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) flow(provider, result string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) refresh(provider, result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) observe(provider, operation string, started time.Time) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) throttle(scope string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(scope).Inc()
}
