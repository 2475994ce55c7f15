package ratelimit

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Admitter é o que o filtro precisa do AdmissionController.
type Admitter interface {
	AdmitRequest(ctx context.Context, key domain.Key, method, path string) domain.Decision
}

// State é o resultado da avaliação de uma requisição pelo filtro.
type State int

const (
	// Continue: token consumido, segue para o próximo handler.
	Continue State = iota
	// Bypassed: rota/método isento ou filtro desligado; nenhum token consumido.
	Bypassed
	// Rejected: sem token; a requisição termina com 429.
	Rejected
)

func (s State) String() string {
	switch s {
	case Continue:
		return "continue"
	case Bypassed:
		return "bypassed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Outcome struct {
	State State
	Key   domain.Key
}

// ErrorHandler escreve a resposta de uma requisição negada.
type ErrorHandler interface {
	HandleRateLimit(w http.ResponseWriter, r *http.Request, err *domain.RateLimitExceeded)
}

type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err *domain.RateLimitExceeded)

func (f ErrorHandlerFunc) HandleRateLimit(w http.ResponseWriter, r *http.Request, err *domain.RateLimitExceeded) {
	f(w, r, err)
}

// PlainErrorHandler responde 429 com corpo texto simples.
var PlainErrorHandler = ErrorHandlerFunc(func(w http.ResponseWriter, _ *http.Request, _ *domain.RateLimitExceeded) {
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
})

type Options struct {
	// Disabled desliga o filtro: tudo passa como Bypassed. O valor zero
	// mantém o limiter ativo.
	Disabled     bool
	Bypass       BypassPolicy
	KeyFn        KeyFunc
	ErrorHandler ErrorHandler
	Logger       *zerolog.Logger

	// DenyLogEvery limita o WARN de negação a uma linha por intervalo.
	// 0 usa 1s; negativo loga todas.
	DenyLogEvery time.Duration
}

// Filter é o adapter entre a requisição HTTP e o AdmissionController.
type Filter struct {
	admitter Admitter
	enabled  bool
	bypass   BypassPolicy
	keyFn    KeyFunc
	onReject ErrorHandler
	logger   *zerolog.Logger

	denyLog    *rate.Sometimes
	suppressed atomic.Int64
}

func NewFilter(admitter Admitter, opts Options) *Filter {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(true)
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = PlainErrorHandler
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}

	f := &Filter{
		admitter: admitter,
		enabled:  !opts.Disabled && admitter != nil,
		bypass:   opts.Bypass,
		keyFn:    opts.KeyFn,
		onReject: opts.ErrorHandler,
		logger:   opts.Logger,
	}
	switch {
	case opts.DenyLogEvery == 0:
		f.denyLog = &rate.Sometimes{First: 1, Interval: time.Second}
	case opts.DenyLogEvery > 0:
		f.denyLog = &rate.Sometimes{First: 1, Interval: opts.DenyLogEvery}
	}
	return f
}

// Bypassed diz se a requisição não passa pelo limiter.
func (f *Filter) Bypassed(method, path string) bool {
	return !f.enabled || f.bypass.Matches(method, path)
}

// Evaluate aplica o filtro a uma requisição já resolvida em (método, rota, chave).
// Requisições isentas nunca chegam ao AdmissionController.
func (f *Filter) Evaluate(ctx context.Context, method, path string, key domain.Key) Outcome {
	if f.Bypassed(method, path) {
		return Outcome{State: Bypassed, Key: key}
	}
	return f.admit(ctx, method, path, key)
}

func (f *Filter) admit(ctx context.Context, method, path string, key domain.Key) Outcome {
	dec := f.admitter.AdmitRequest(ctx, key, method, path)
	if dec.Allowed {
		return Outcome{State: Continue, Key: key}
	}
	f.logDenied(ctx, method, path, key)
	return Outcome{State: Rejected, Key: key}
}

func (f *Filter) logDenied(ctx context.Context, method, path string, key domain.Key) {
	if f.denyLog == nil {
		f.warn(ctx, method, path, key, 0)
		return
	}
	logged := false
	f.denyLog.Do(func() {
		logged = true
		f.warn(ctx, method, path, key, f.suppressed.Swap(0))
	})
	if !logged {
		f.suppressed.Add(1)
	}
}

func (f *Filter) warn(ctx context.Context, method, path string, key domain.Key, suppressed int64) {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = f.logger
	}
	ev := l.Warn().Str("key", string(key)).Str("method", method).Str("path", path)
	if suppressed > 0 {
		ev = ev.Int64("suppressed", suppressed)
	}
	ev.Msg("rate limit exceeded")
}

// Middleware instala o filtro na frente de next.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.Bypassed(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := domain.Key(f.keyFn(r))
		out := f.admit(r.Context(), r.Method, r.URL.Path, key)
		if out.State == Rejected {
			f.onReject.HandleRateLimit(w, r, &domain.RateLimitExceeded{ClientKey: key})
			return
		}

		next.ServeHTTP(w, r)
	})
}
