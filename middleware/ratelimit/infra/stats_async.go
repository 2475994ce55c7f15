package infra

import (
	"context"
	"errors"
	"sync/atomic"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog/log"
)

// ErrStatsDropped indica que o buffer do AsyncStats estava cheio e o evento
// foi descartado.
var ErrStatsDropped = errors.New("rate limit stats buffer full, event dropped")

const defaultAsyncBuffer = 1024

// AsyncStats tira um recorder lento (ex.: Redis) do caminho da requisição.
//
// Record só enfileira num canal limitado; uma única goroutine entrega os
// eventos ao recorder interno. Com o buffer cheio o evento é descartado
// em vez de bloquear a decisão de admissão.
type AsyncStats struct {
	inner   domain.StatsRecorder
	events  chan domain.StatsEvent
	dropped atomic.Int64
	done    chan struct{}
}

var _ domain.StatsRecorder = (*AsyncStats)(nil)

// NewAsyncStats inicia o worker, que vive até ctx ser cancelado.
// buffer <= 0 usa 1024.
func NewAsyncStats(ctx context.Context, inner domain.StatsRecorder, buffer int) *AsyncStats {
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	a := &AsyncStats{
		inner:  inner,
		events: make(chan domain.StatsEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

// Record nunca bloqueia. O ctx da requisição não é repassado: o worker usa o
// próprio contexto, já que a requisição pode ter terminado antes da entrega.
func (a *AsyncStats) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case <-a.done:
		return nil
	default:
	}

	select {
	case a.events <- ev:
		return nil
	default:
		a.dropped.Add(1)
		return ErrStatsDropped
	}
}

// Dropped retorna quantos eventos foram descartados por buffer cheio.
func (a *AsyncStats) Dropped() int64 { return a.dropped.Load() }

// Done fecha quando o worker termina.
func (a *AsyncStats) Done() <-chan struct{} { return a.done }

func (a *AsyncStats) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			if a.inner == nil {
				continue
			}
			if err := a.inner.Record(ctx, ev); err != nil {
				log.Debug().Err(err).Msg("async rate limit stats not recorded")
			}
		}
	}
}
