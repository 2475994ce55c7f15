package infra

import (
	"context"
	"fmt"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricRequests  = "app_rate_limit_requests_total"
	metricCacheSize = "app_rate_limit_bucket_cache_size"
	metricEvictions = "app_rate_limit_bucket_evictions_total"
)

// PrometheusStats exporta os contadores do limiter:
//   - app_rate_limit_requests_total{outcome="allowed"|"blocked"}
//   - app_rate_limit_bucket_cache_size (gauge com o número de chaves)
//   - app_rate_limit_bucket_evictions_total{reason="capacity"|"idle"}
//
// Nenhum label carrega a chave do cliente (cardinalidade baixa).
type PrometheusStats struct {
	requests  *prometheus.CounterVec
	evictions *prometheus.CounterVec
}

var _ domain.StatsRecorder = (*PrometheusStats)(nil)

// NewPrometheusStats registra as métricas em reg. size é lido a cada scrape.
func NewPrometheusStats(reg prometheus.Registerer, size func() int) (*PrometheusStats, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusStats{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricRequests,
				Help: "Requests evaluated by the IP rate limiter by outcome",
			},
			[]string{"outcome"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricEvictions,
				Help: "Buckets removed from the rate limiter cache by reason",
			},
			[]string{"reason"},
		),
	}

	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricCacheSize,
			Help: "Number of client keys currently tracked by the rate limiter",
		},
		func() float64 {
			if size == nil {
				return 0
			}
			return float64(size())
		},
	)

	for _, c := range []prometheus.Collector{p.requests, p.evictions, gauge} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register rate limit metrics: %w", err)
		}
	}

	// séries com zero desde o início
	p.requests.WithLabelValues(domain.OutcomeAllowed)
	p.requests.WithLabelValues(domain.OutcomeBlocked)
	p.evictions.WithLabelValues(string(EvictCapacity))
	p.evictions.WithLabelValues(string(EvictIdle))

	return p, nil
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	p.requests.WithLabelValues(ev.Outcome()).Inc()
	return nil
}

// ObserveEviction tem a assinatura de WithEvictionListener.
func (p *PrometheusStats) ObserveEviction(_ domain.Key, reason EvictReason) {
	p.evictions.WithLabelValues(string(reason)).Inc()
}
