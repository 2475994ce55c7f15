// Package problem escreve respostas de erro RFC 7807 (application/problem+json).
package problem

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
)

const ContentType = "application/problem+json"

// DefaultRateLimitType é o "type" padrão do problema de rate limit.
const DefaultRateLimitType = "https://example.com/problems/rate-limit-exceeded"

// Details é o documento de problema. ClientIP é uma extensão usada no 429.
type Details struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	ClientIP string `json:"clientIp,omitempty"`
}

// Write serializa d com o status de d.Status (500 se vazio).
func Write(w http.ResponseWriter, d Details) {
	if d.Status == 0 {
		d.Status = http.StatusInternalServerError
	}
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}

	body, err := json.Marshal(d)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(d.Status)
	_, _ = w.Write(append(body, '\n'))
}

type RateLimitOption func(*RateLimitHandler)

// WithRetryAfter adiciona Retry-After (segundos, arredondado para cima).
func WithRetryAfter(d time.Duration) RateLimitOption {
	return func(h *RateLimitHandler) { h.retryAfter = d }
}

// RateLimitHandler traduz *domain.RateLimitExceeded em 429 problem+json.
// Satisfaz ratelimit.ErrorHandler.
type RateLimitHandler struct {
	typeURI    string
	retryAfter time.Duration
}

func NewRateLimitHandler(typeURI string, opts ...RateLimitOption) *RateLimitHandler {
	if typeURI == "" {
		typeURI = DefaultRateLimitType
	}
	h := &RateLimitHandler{typeURI: typeURI}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RateLimitHandler) HandleRateLimit(w http.ResponseWriter, r *http.Request, err *domain.RateLimitExceeded) {
	if h.retryAfter > 0 {
		secs := int64((h.retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	d := Details{
		Type:     h.typeURI,
		Title:    "Rate limit exceeded",
		Status:   http.StatusTooManyRequests,
		Detail:   "Too many requests",
		Instance: r.URL.Path,
	}
	if err != nil {
		d.ClientIP = string(err.ClientKey)
	}
	Write(w, d)
}

// NotFound responde 404 problem+json; usado como NotFoundHandler do router.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, Details{Status: http.StatusNotFound, Detail: "No handler for " + r.Method + " " + r.URL.Path, Instance: r.URL.Path})
}

// Recover converte panic em 500 problem+json.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				zerolog.Ctx(r.Context()).Error().Interface("panic", v).Str("path", r.URL.Path).Msg("unhandled panic")
				Write(w, Details{Status: http.StatusInternalServerError, Detail: "Unexpected error", Instance: r.URL.Path})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
