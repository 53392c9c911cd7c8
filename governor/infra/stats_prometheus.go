package infra

import (
	"context"

	"filevault-client/governor/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe os eventos do governor como métricas.
//
// Labels: kind, state e class (todas de cardinalidade fixa). OpID nunca vira label.
type PrometheusStatsStore struct {
	events     *prometheus.CounterVec
	retryDelay *prometheus.HistogramVec
}

type prometheusConfig struct {
	namespace string
	subsystem string
}

type PrometheusOption func(*prometheusConfig)

func WithNamespace(ns string) PrometheusOption {
	return func(c *prometheusConfig) { c.namespace = ns }
}

func WithSubsystem(sub string) PrometheusOption {
	return func(c *prometheusConfig) { c.subsystem = sub }
}

// NewPrometheusStatsStore cria e registra os coletores em reg.
func NewPrometheusStatsStore(reg prometheus.Registerer, opts ...PrometheusOption) (*PrometheusStatsStore, error) {
	cfg := prometheusConfig{namespace: "filevault", subsystem: "governor"}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &PrometheusStatsStore{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Subsystem: cfg.subsystem,
			Name:      "events_total",
			Help:      "Governed operation state transitions.",
		}, []string{"kind", "state", "class"}),
		retryDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Subsystem: cfg.subsystem,
			Name:      "retry_delay_seconds",
			Help:      "Wait before each scheduled retry.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{s.events, s.retryDelay} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	class := ""
	if ev.State == domain.StateRetryScheduled || ev.State == domain.StateFailed {
		class = ev.Class.String()
	}
	s.events.WithLabelValues(string(ev.Kind), string(ev.State), class).Inc()

	if ev.State == domain.StateRetryScheduled {
		s.retryDelay.WithLabelValues(string(ev.Kind)).Observe(ev.Delay.Seconds())
	}
	return nil
}
