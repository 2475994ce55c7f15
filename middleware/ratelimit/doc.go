// Package ratelimit é o adapter HTTP (net/http) do rate limit por IP.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: AdmissionController, decisão allow/deny sem net/http
//   - infra: token bucket com refill por intervalo, cache LRU de buckets, sinks de estatística
//   - config: Properties (defaults, YAML, APP_RATE_LIMIT_*)
//   - ratelimit (este pacote): Filter, bypass por rota/método, extração de chave
//
// Fluxo por requisição:
//
//  1. Se método/rota casam com a BypassPolicy (ou o filtro está desligado), segue direto
//  2. Extrai a chave do cliente (primeiro X-Forwarded-For, RemoteAddr ou "unknown")
//  3. Pede a decisão ao AdmissionController
//  4. Se negado, entrega *domain.RateLimitExceeded ao ErrorHandler (ex.: problem+json 429)
//  5. Se permitido, chama o próximo handler
package ratelimit
