package infra

import (
	"context"

	"ipfilter-gateway/middleware/ipfilter/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStatsStore expõe as decisões como counters.
// Identidade não vira label (cardinalidade); só outcome e método.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	return &PrometheusStatsStore{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfilter_decisions_total",
				Help: "Total number of ip filter decisions by outcome",
			},
			[]string{"outcome", "method"},
		),
	}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(string(ev.Outcome), ev.Method).Inc()
	return nil
}
