package domain

import "time"

// Limits reúne os parâmetros do token bucket e do cache de buckets.
type Limits struct {
	// Capacity é o máximo de tokens por bucket.
	Capacity int64
	// RefillAmount é o bloco de tokens creditado a cada RefillInterval.
	RefillAmount int64
	// RefillInterval é o intervalo entre refills (refill "intervally").
	RefillInterval time.Duration
	// MaxEntries é o número máximo de chaves rastreadas.
	MaxEntries int
	// IdleExpiry é o tempo sem acesso após o qual a chave pode ser removida.
	IdleExpiry time.Duration
}

// Validate retorna *ConfigurationError para o primeiro campo inválido.
func (l Limits) Validate() error {
	switch {
	case l.Capacity <= 0:
		return &ConfigurationError{Field: "capacity", Reason: "must be > 0"}
	case l.RefillAmount <= 0:
		return &ConfigurationError{Field: "refillAmount", Reason: "must be > 0"}
	case l.RefillInterval <= 0:
		return &ConfigurationError{Field: "refillInterval", Reason: "must be > 0"}
	case l.MaxEntries <= 0:
		return &ConfigurationError{Field: "maxEntries", Reason: "must be > 0"}
	case l.IdleExpiry <= 0:
		return &ConfigurationError{Field: "idleExpiry", Reason: "must be > 0"}
	}
	return nil
}
