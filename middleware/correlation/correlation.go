// Package correlation propaga X-Request-Id e anexa um logger zerolog com
// requestId/serviceInstanceId ao contexto de cada requisição.
package correlation

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const HeaderRequestID = "X-Request-Id"

type ctxKey struct{}

// RequestID devolve o id da requisição guardado pelo Middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// InstanceID resolve o id da instância: configured, SERVICE_INSTANCE_ID,
// HOSTNAME ou um uuid aleatório, nessa ordem.
func InstanceID(configured string) string {
	return instanceID(configured, os.Getenv)
}

func instanceID(configured string, getenv func(string) string) string {
	for _, v := range []string{configured, getenv("SERVICE_INSTANCE_ID"), getenv("HOSTNAME")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return uuid.NewString()
}

type Options struct {
	InstanceID string
	// Skip marca requisições sem log de entrada/saída (probes, preflight).
	Skip     ratelimit.BypassPolicy
	ClientIP ratelimit.KeyFunc
	Logger   *zerolog.Logger
}

func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.ClientIP == nil {
		opts.ClientIP = ratelimit.DefaultKeyFunc(true)
	}
	if opts.Logger == nil {
		opts.Logger = &log.Logger
	}
	base := opts.Logger.With().Str("serviceInstanceId", opts.InstanceID).Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skip.Matches(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r.WithContext(base.WithContext(r.Context())))
				return
			}

			start := time.Now()
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			l := base.With().Str("requestId", requestID).Logger()
			ctx := context.WithValue(l.WithContext(r.Context()), ctxKey{}, requestID)

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", opts.ClientIP(r)).
				Msg("Incoming request")

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				l.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", rw.status).
					Dur("took", time.Since(start)).
					Msg("Completed request")
			}()
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

// statusRecorder captura o status para o log de saída.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap expõe o writer original para http.ResponseController (flush do proxy).
func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
