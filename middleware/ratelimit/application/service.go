package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog/log"
)

// AdmissionController concentra a regra de aplicação do rate limit.
//
// Ele não guarda estado mutável próprio: resolve/cria o bucket da chave no
// BucketStore, consome uma unidade e registra o resultado. Negar é um
// resultado normal, não um erro.
type AdmissionController struct {
	limits    domain.Limits
	store     domain.BucketStore
	newBucket func(now time.Time) domain.Bucket
	clock     domain.Clock
	stats     domain.StatsRecorder
}

type Option func(*AdmissionController)

func WithClock(c domain.Clock) Option {
	return func(a *AdmissionController) {
		if c != nil {
			a.clock = c
		}
	}
}

func WithStats(r domain.StatsRecorder) Option {
	return func(a *AdmissionController) { a.stats = r }
}

// NewAdmissionController valida os limites e falha com *domain.ConfigurationError
// se algum for inválido. newBucket cria um bucket cheio ancorado em `now`.
func NewAdmissionController(limits domain.Limits, store domain.BucketStore, newBucket func(now time.Time) domain.Bucket, opts ...Option) (*AdmissionController, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, &domain.ConfigurationError{Field: "store", Reason: "is required"}
	}
	if newBucket == nil {
		return nil, &domain.ConfigurationError{Field: "bucketFactory", Reason: "is required"}
	}

	a := &AdmissionController{
		limits:    limits,
		store:     store,
		newBucket: newBucket,
		clock:     domain.SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *AdmissionController) Limits() domain.Limits { return a.limits }

// Admit decide se a chave pode passar agora.
func (a *AdmissionController) Admit(ctx context.Context, key domain.Key) domain.Decision {
	return a.AdmitRequest(ctx, key, "", "")
}

// AdmitRequest é Admit com método/rota anexados ao evento de estatística.
func (a *AdmissionController) AdmitRequest(ctx context.Context, key domain.Key, method, path string) domain.Decision {
	now := a.clock.Now()

	bucket := a.store.GetOrCreate(key, func() domain.Bucket { return a.newBucket(now) })
	dec := domain.Decision{Allowed: bucket.TryConsume(now), Key: key}

	if a.stats != nil {
		err := a.stats.Record(ctx, domain.StatsEvent{
			Key:     key,
			Allowed: dec.Allowed,
			Method:  method,
			Path:    path,
			At:      now,
		})
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("rate limit stats not recorded")
		}
	}
	return dec
}

// String resume a configuração para logs de inicialização.
func (a *AdmissionController) String() string {
	l := a.limits
	return fmt.Sprintf("capacity=%d refill=%d/%s maxEntries=%d idleExpiry=%s",
		l.Capacity, l.RefillAmount, l.RefillInterval, l.MaxEntries, l.IdleExpiry)
}
