package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// TokenBucket é um token bucket com refill "intervally": a cada RefillInterval
// completo um bloco fixo de RefillAmount tokens é creditado de uma vez
// (não há gotejamento contínuo). O saldo nunca passa de Capacity.
type TokenBucket struct {
	mu sync.Mutex

	capacity     int64
	refillAmount int64
	interval     time.Duration

	available    int64
	lastRefillAt time.Time
}

var _ domain.Bucket = (*TokenBucket)(nil)

// NewTokenBucket cria um bucket cheio ancorado em `now`.
func NewTokenBucket(capacity, refillAmount int64, interval time.Duration, now time.Time) (*TokenBucket, error) {
	switch {
	case capacity <= 0:
		return nil, &domain.ConfigurationError{Field: "capacity", Reason: "must be > 0"}
	case refillAmount <= 0:
		return nil, &domain.ConfigurationError{Field: "refillAmount", Reason: "must be > 0"}
	case interval <= 0:
		return nil, &domain.ConfigurationError{Field: "refillInterval", Reason: "must be > 0"}
	}

	return &TokenBucket{
		capacity:     capacity,
		refillAmount: refillAmount,
		interval:     interval,
		available:    capacity,
		lastRefillAt: now,
	}, nil
}

// NewBucketFactory devolve a factory usada pelo AdmissionController.
// Capacity, RefillAmount e RefillInterval são validados aqui: a factory
// nunca produz um bucket com intervalo zero.
func NewBucketFactory(l domain.Limits) (func(now time.Time) domain.Bucket, error) {
	if _, err := NewTokenBucket(l.Capacity, l.RefillAmount, l.RefillInterval, time.Time{}); err != nil {
		return nil, err
	}
	return func(now time.Time) domain.Bucket {
		return &TokenBucket{
			capacity:     l.Capacity,
			refillAmount: l.RefillAmount,
			interval:     l.RefillInterval,
			available:    l.Capacity,
			lastRefillAt: now,
		}
	}, nil
}

// TryConsume aplica os intervalos vencidos e consome 1 token se houver.
// Na negação o único efeito colateral é o crédito do refill.
func (b *TokenBucket) TryConsume(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.available >= 1 {
		b.available--
		return true
	}
	return false
}

// Available retorna o saldo em `now` (aplicando refill, sem consumir).
func (b *TokenBucket) Available(now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	return b.available
}

// Capacity retorna a capacidade máxima do bucket.
func (b *TokenBucket) Capacity() int64 { return b.capacity }

// refill DEVE ser chamado com b.mu travado.
// Relógio voltando no tempo conta como zero intervalos.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefillAt)
	if elapsed < b.interval {
		return
	}

	intervals := int64(elapsed / b.interval)
	b.lastRefillAt = b.lastRefillAt.Add(time.Duration(intervals) * b.interval)

	// compara em intervalos para não estourar intervals*refillAmount
	// após longos períodos ociosos
	missing := b.capacity - b.available
	needed := missing / b.refillAmount
	if missing%b.refillAmount != 0 {
		needed++
	}
	if intervals >= needed {
		b.available = b.capacity
		return
	}
	b.available += intervals * b.refillAmount
}
