package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// OutcomeCounts conta decisões por rótulo de resultado ("allowed"/"blocked"),
// os mesmos campos usados nos hashes do Redis e no label do Prometheus.
type OutcomeCounts map[string]int64

func (c OutcomeCounts) Allowed() int64 { return c[domain.OutcomeAllowed] }
func (c OutcomeCounts) Blocked() int64 { return c[domain.OutcomeBlocked] }

type dimension uint8

const (
	dimTotal dimension = iota
	dimRoute
	dimKey
)

type statKey struct {
	dim     dimension
	value   string
	outcome string
}

// MemoryStatsStore guarda os contadores num único mapa indexado por
// (dimensão, valor, resultado). Serve a testes e ao example-server.
//
// Não expira nada; com trackKeys=true a cardinalidade cresce com as chaves.
type MemoryStatsStore struct {
	mu     sync.Mutex
	counts map[statKey]int64

	trackKeys bool
}

var _ domain.StatsRecorder = (*MemoryStatsStore)(nil)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{counts: make(map[statKey]int64)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[statKey{dim: dimTotal, outcome: outcome}]++
	if ev.Method != "" || ev.Path != "" {
		s.counts[statKey{dim: dimRoute, value: ev.Method + " " + ev.Path, outcome: outcome}]++
	}
	if s.trackKeys {
		s.counts[statKey{dim: dimKey, value: string(ev.Key), outcome: outcome}]++
	}
	return nil
}

// Total devolve os contadores globais. O mapa é uma cópia.
func (s *MemoryStatsStore) Total() OutcomeCounts {
	return s.collect(dimTotal)[""]
}

// ByRoute agrupa por "<METHOD> <path>".
func (s *MemoryStatsStore) ByRoute() map[string]OutcomeCounts {
	return s.collect(dimRoute)
}

// ByKey só tem dados com WithTrackKeys(true).
func (s *MemoryStatsStore) ByKey() map[string]OutcomeCounts {
	return s.collect(dimKey)
}

func (s *MemoryStatsStore) collect(dim dimension) map[string]OutcomeCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]OutcomeCounts)
	if dim == dimTotal {
		out[""] = OutcomeCounts{}
	}
	for k, n := range s.counts {
		if k.dim != dim {
			continue
		}
		c, ok := out[k.value]
		if !ok {
			c = OutcomeCounts{}
			out[k.value] = c
		}
		c[k.outcome] = n
	}
	return out
}
