package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/problem"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/config"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// Exemplo: injetando o filtro diretamente no seu webserver (sem proxy)
	props, err := config.Load(os.Getenv("RATE_LIMIT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats := infra.NewMemoryStatsStore()
	h, store, err := newHandler(props, stats)
	if err != nil {
		log.Fatal().Err(err).Msg("rate limit setup error")
	}
	store.StartJanitor(ctx)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Int64("capacity", props.Capacity).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

// newHandler monta ServeMux + filtro; /stats fica isento e mostra os contadores em memória.
func newHandler(props config.Properties, stats *infra.MemoryStatsStore) (http.Handler, *infra.BucketStore, error) {
	limits := props.Limits()
	store, err := infra.NewBucketStore(limits.MaxEntries, limits.IdleExpiry)
	if err != nil {
		return nil, nil, err
	}
	newBucket, err := infra.NewBucketFactory(limits)
	if err != nil {
		return nil, nil, err
	}
	controller, err := application.NewAdmissionController(limits, store, newBucket, application.WithStats(stats))
	if err != nil {
		return nil, nil, err
	}

	filter := ratelimit.NewFilter(controller, ratelimit.Options{
		Disabled: !props.Enabled,
		Bypass: ratelimit.BypassPolicy{
			ExemptPaths:   append([]string{"/stats"}, props.ExemptPaths...),
			ExemptMethods: props.ExemptMethods,
		},
		KeyFn:        ratelimit.HeaderKeyFunc("X-Api-Key", ratelimit.DefaultKeyFunc(true)), // ou só DefaultKeyFunc para usar IP
		ErrorHandler: problem.NewRateLimitHandler(""),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":   stats.Total(),
			"byRoute": stats.ByRoute(),
			"buckets": store.Len(),
		})
	})

	return filter.Middleware(mux), store, nil
}
