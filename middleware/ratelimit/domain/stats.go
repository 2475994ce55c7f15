package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// Outcome devolve o label usado pelos sinks ("allowed" ou "blocked").
func (ev StatsEvent) Outcome() string {
	if ev.Allowed {
		return OutcomeAllowed
	}
	return OutcomeBlocked
}

const (
	OutcomeAllowed = "allowed"
	OutcomeBlocked = "blocked"
)

// StatsRecorder é a estratégia de transporte dos contadores do rate limit.
//
// Implementações podem enviar para Prometheus, Redis, memória, etc.
// Quem chama trata erro como best-effort (não derruba request).
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}
