package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica o principal limitado (normalmente o IP do cliente).
// Igualdade é comparação exata de string, sem normalização.
type Key string

// Bucket representa o estado de refill/consumo de uma chave.
//
// TryConsume aplica o refill devido até `now` e tenta consumir exatamente
// uma unidade. As duas etapas são uma operação indivisível.
type Bucket interface {
	TryConsume(now time.Time) bool
}

// BucketFactory cria um bucket cheio para uma chave vista pela primeira vez.
type BucketFactory func() Bucket

// BucketStore mantém no máximo um Bucket vivo por chave.
//
// GetOrCreate devolve o bucket existente (e renova o acesso) ou cria um novo
// via factory, atomicamente mesmo sob corrida no primeiro acesso.
// Len é usado como gauge de monitoramento.
type BucketStore interface {
	GetOrCreate(key Key, factory BucketFactory) Bucket
	Len() int
}

// Decision é o resultado transitório de uma checagem de admissão.
type Decision struct {
	Allowed bool
	Key     Key
}

// Clock abstrai o relógio para permitir testes determinísticos.
type Clock interface {
	Now() time.Time
}

// SystemClock usa time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
