package infra

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/jellydator/ttlcache/v3"
)

// EvictReason diz por que uma chave saiu do cache.
type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictIdle     EvictReason = "idle"
)

// BucketStore é o cache limitado de buckets por chave, sobre ttlcache.
//
// Duas regras de remoção independentes:
//   - capacidade: acima de maxEntries sai a chave acessada há mais tempo (LRU);
//   - ociosidade: o TTL é renovado a cada acesso (expire-after-access); uma
//     entrada vencida é removida no próximo acesso a qualquer chave ausente
//     ou na próxima passada do janitor.
//
// Remover uma chave destrói o saldo acumulado: ela volta com bucket cheio.
type BucketStore struct {
	cache *ttlcache.Cache[domain.Key, domain.Bucket]

	maxEntries   int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	onEvict      func(domain.Key, EvictReason)
}

var _ domain.BucketStore = (*BucketStore)(nil)

type StoreOption func(*BucketStore)

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

// WithEvictionListener registra um callback chamado a cada remoção por
// capacidade ou ociosidade. Não deve chamar de volta o BucketStore.
func WithEvictionListener(fn func(domain.Key, EvictReason)) StoreOption {
	return func(s *BucketStore) { s.onEvict = fn }
}

func NewBucketStore(maxEntries int, idleTTL time.Duration, opts ...StoreOption) (*BucketStore, error) {
	if maxEntries <= 0 {
		return nil, &domain.ConfigurationError{Field: "maxEntries", Reason: "must be > 0"}
	}
	if idleTTL <= 0 {
		return nil, &domain.ConfigurationError{Field: "idleExpiry", Reason: "must be > 0"}
	}

	s := &BucketStore{
		maxEntries:   maxEntries,
		idleTTL:      idleTTL,
		cleanupEvery: defaultCleanupEvery(idleTTL),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cache = ttlcache.New[domain.Key, domain.Bucket](
		ttlcache.WithTTL[domain.Key, domain.Bucket](idleTTL),
		ttlcache.WithCapacity[domain.Key, domain.Bucket](uint64(maxEntries)),
	)
	if s.onEvict != nil {
		s.cache.OnEviction(s.evicted)
	}
	return s, nil
}

func defaultCleanupEvery(idleTTL time.Duration) time.Duration {
	d := idleTTL / 2
	if d > time.Minute {
		d = time.Minute
	}
	if d <= 0 {
		d = idleTTL
	}
	return d
}

func (s *BucketStore) MaxEntries() int { return s.maxEntries }
func (s *BucketStore) IdleTTL() time.Duration { return s.idleTTL }
func (s *BucketStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// GetOrCreate implementa domain.BucketStore.
//
// O acerto renova o TTL e a recência. Na falta, as entradas vencidas saem
// primeiro (para não contarem na capacidade) e GetOrSet insere sob o lock do
// cache: corredores no primeiro acesso recebem todos o mesmo bucket.
func (s *BucketStore) GetOrCreate(key domain.Key, factory domain.BucketFactory) domain.Bucket {
	if item := s.cache.Get(key); item != nil {
		return item.Value()
	}

	s.cache.DeleteExpired()
	item, _ := s.cache.GetOrSet(key, factory())
	return item.Value()
}

// Len retorna o número de chaves rastreadas (inclui entradas ociosas ainda
// não varridas).
func (s *BucketStore) Len() int {
	return s.cache.Len()
}

// Cleanup remove as entradas ociosas e retorna quantas saíram.
func (s *BucketStore) Cleanup() int {
	before := s.cache.Len()
	s.cache.DeleteExpired()
	if n := before - s.cache.Len(); n > 0 {
		return n
	}
	return 0
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *BucketStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

func (s *BucketStore) evicted(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[domain.Key, domain.Bucket]) {
	switch reason {
	case ttlcache.EvictionReasonCapacityReached:
		s.onEvict(item.Key(), EvictCapacity)
	case ttlcache.EvictionReasonExpired:
		s.onEvict(item.Key(), EvictIdle)
	}
}
