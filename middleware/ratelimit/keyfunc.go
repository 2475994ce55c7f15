package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownKey é a chave usada quando não há como identificar o cliente.
const UnknownKey = "unknown"

type KeyFunc func(r *http.Request) string

// DefaultKeyFunc resolve o IP do cliente: primeiro valor do X-Forwarded-For
// (se trustXFF), senão o host do RemoteAddr, senão "unknown".
// Nunca devolve string vazia.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return UnknownKey
	}
}

// HeaderKeyFunc usa o valor do header quando presente e cai em fallback.
func HeaderKeyFunc(header string, fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return fallback(r)
	}
}
