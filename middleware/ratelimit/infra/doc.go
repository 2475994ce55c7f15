// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - TokenBucket: token bucket com refill em blocos por intervalo
//   - BucketStore: cache limitado (LRU + expiração por ociosidade) de buckets por chave
//   - PrometheusStats / RedisStatsStore / MemoryStatsStore: sinks dos contadores
package infra
