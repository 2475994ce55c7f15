package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisStatsStore acumula os contadores allowed/blocked em hashes do Redis.
//
// Layout das chaves (prefix padrão "ratelimit:stats"):
//
//	<prefix>:total               allowed / blocked (cumulativo, sem TTL)
//	<prefix>:minute:YYYYMMDDhhmm série por minuto (com TTL)
//	<prefix>:route               "<METHOD> <path>:<outcome>"
//	<prefix>:key:<key>           por chave (opcional, com TTL)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool

	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

var _ domain.StatsRecorder = (*RedisStatsStore)(nil)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

// WithStatsTimeout limita cada pipeline. O go-redis só respeita o prazo do
// contexto com redis.Options.ContextTimeoutEnabled; sem isso valem os
// ReadTimeout/WriteTimeout do cliente. No caminho da requisição use
// AsyncStats por cima deste store.
func WithStatsTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.timeout = d }
}

// WithStatsBreaker troca as configurações do circuit breaker.
// Com o circuito aberto Record falha imediatamente, sem tocar no Redis.
func WithStatsBreaker(st gobreaker.Settings) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if st.Name == "" {
			st.Name = "ratelimit-stats-redis"
		}
		s.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:     rdb,
		prefix:  "ratelimit:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
		timeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings())
	}
	return s
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:     "ratelimit-stats-redis",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// BreakerState expõe o estado do circuito (útil em health checks).
func (s *RedisStatsStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return nil, s.exec(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) exec(ctx context.Context, ev domain.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := ev.Outcome()
	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", routeField+":"+field, 1)
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
