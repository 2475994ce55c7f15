package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig é a sentinela de todos os erros de configuração.
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// ConfigurationError indica uma configuração inválida do limiter.
// É fatal na inicialização. errors.Is(err, ErrInvalidConfig) é verdadeiro.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

// RateLimitExceeded é o sinal de controle produzido quando uma requisição é
// negada. Não é uma falha do sistema: resulta em uma única requisição rejeitada.
type RateLimitExceeded struct {
	ClientKey Key
}

func (e *RateLimitExceeded) Error() string {
	return "rate limit exceeded"
}
