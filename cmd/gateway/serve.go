package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"admission-gateway/middleware/correlation"
	"admission-gateway/middleware/problem"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/config"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveConfig struct {
	listenAddr  string
	upstreamURL string
	trustXFF    bool
	metricsPath string
	instanceID  string
	problemType string
	retryAfter  bool

	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
}

func newServeCmd() *cobra.Command {
	var (
		cfg serveConfig
		lf  limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (reverse proxy to --upstream, or the demo API)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			props, err := lf.load(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, props)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.listenAddr, "listen", getenvDefault("LISTEN_ADDR", ":8080"), "listen address")
	fs.StringVar(&cfg.upstreamURL, "upstream", getenvDefault("UPSTREAM_URL", ""), "upstream URL to proxy to (empty serves the demo API)")
	fs.BoolVar(&cfg.trustXFF, "trust-xff", getenvBoolDefault("TRUST_XFF", true), "use the first X-Forwarded-For value as client IP")
	fs.StringVar(&cfg.metricsPath, "metrics-path", getenvDefault("METRICS_PATH", "/actuator/prometheus"), "prometheus scrape path")
	fs.StringVar(&cfg.instanceID, "instance-id", "", "service instance id (falls back to SERVICE_INSTANCE_ID, HOSTNAME, uuid)")
	fs.StringVar(&cfg.problemType, "problem-type", getenvDefault("RATE_LIMIT_PROBLEM_TYPE", problem.DefaultRateLimitType), "type URI of the 429 problem document")
	fs.BoolVar(&cfg.retryAfter, "retry-after", getenvBoolDefault("RATE_LIMIT_RETRY_AFTER", false), "send Retry-After (refill interval) on 429")

	fs.StringVar(&cfg.rateStatsRedisAddr, "stats-redis-addr", getenvDefault("RATE_STATS_REDIS_ADDR", ""), "redis address for allowed/blocked counters (empty disables)")
	fs.StringVar(&cfg.rateStatsRedisPassword, "stats-redis-password", getenvDefault("RATE_STATS_REDIS_PASSWORD", ""), "redis password")
	fs.IntVar(&cfg.rateStatsRedisDB, "stats-redis-db", getenvIntDefault("RATE_STATS_REDIS_DB", 0), "redis db")
	fs.StringVar(&cfg.rateStatsPrefix, "stats-prefix", getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats"), "redis key prefix")
	fs.DurationVar(&cfg.rateStatsTTL, "stats-ttl", getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour), "ttl of bucketed redis counters")
	fs.StringVar(&cfg.rateStatsBucket, "stats-bucket", getenvDefault("RATE_STATS_BUCKET", "minute"), "redis counter bucket (minute or empty)")
	fs.BoolVar(&cfg.rateStatsTrackKeys, "stats-track-keys", getenvBoolDefault("RATE_STATS_TRACK_KEYS", false), "keep per-key counters in redis (high cardinality)")

	lf.register(fs)
	return cmd
}

// gateway agrupa o que runServe monta; separado para os testes usarem o mesmo wiring.
type gateway struct {
	store      *infra.BucketStore
	controller *application.AdmissionController
	filter     *ratelimit.Filter
	registry   *prometheus.Registry
}

func newGateway(props config.Properties, trustXFF bool, problemHandler ratelimit.ErrorHandler, extra ...domain.StatsRecorder) (*gateway, error) {
	limits := props.Limits()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	g := &gateway{registry: reg}
	promStats, err := infra.NewPrometheusStats(reg, func() int {
		if g.store == nil {
			return 0
		}
		return g.store.Len()
	})
	if err != nil {
		return nil, err
	}

	g.store, err = infra.NewBucketStore(limits.MaxEntries, limits.IdleExpiry, infra.WithEvictionListener(promStats.ObserveEviction))
	if err != nil {
		return nil, err
	}

	stats := append(infra.MultiStats{promStats}, extra...)
	newBucket, err := infra.NewBucketFactory(limits)
	if err != nil {
		return nil, err
	}
	g.controller, err = application.NewAdmissionController(limits, g.store, newBucket, application.WithStats(stats))
	if err != nil {
		return nil, err
	}

	g.filter = ratelimit.NewFilter(g.controller, ratelimit.Options{
		Disabled:     !props.Enabled,
		Bypass:       ratelimit.BypassPolicy{ExemptPaths: props.ExemptPaths, ExemptMethods: props.ExemptMethods},
		KeyFn:        ratelimit.DefaultKeyFunc(trustXFF),
		ErrorHandler: problemHandler,
	})
	return g, nil
}

func newProxy(rawURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid --upstream %q", rawURL)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Ctx(r.Context()).Error().Err(err).Str("upstream", target.String()).Msg("proxy error")
		problem.Write(w, problem.Details{Status: http.StatusBadGateway, Detail: "Upstream unavailable", Instance: r.URL.Path})
	}
	return proxy, nil
}

func runServe(ctx context.Context, cfg serveConfig, props config.Properties) error {
	var upstream http.Handler
	if cfg.upstreamURL != "" {
		proxy, err := newProxy(cfg.upstreamURL)
		if err != nil {
			return err
		}
		upstream = proxy
	}

	var extra []domain.StatsRecorder
	if addr := strings.TrimSpace(cfg.rateStatsRedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,

			// sem isso o go-redis ignora o prazo do contexto
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
		extra = append(extra, infra.NewAsyncStats(ctx, redisStats, 4096))
	}

	var handlerOpts []problem.RateLimitOption
	if cfg.retryAfter {
		handlerOpts = append(handlerOpts, problem.WithRetryAfter(props.RefillDuration.Std()))
	}

	g, err := newGateway(props, cfg.trustXFF, problem.NewRateLimitHandler(cfg.problemType, handlerOpts...), extra...)
	if err != nil {
		return err
	}
	g.store.StartJanitor(ctx)

	instanceID := correlation.InstanceID(cfg.instanceID)
	router := newRouter(routerDeps{
		filter:      g.filter,
		props:       props,
		instanceID:  instanceID,
		gatherer:    g.registry,
		metricsPath: cfg.metricsPath,
		upstream:    upstream,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	target := "demo api"
	if upstream != nil {
		target = cfg.upstreamURL
	}
	log.Info().Str("listen", cfg.listenAddr).Str("target", target).Str("instanceId", instanceID).Msg("gateway listening")
	log.Info().
		Bool("enabled", props.Enabled).
		Str("limits", g.controller.String()).
		Strs("exemptPaths", props.ExemptPaths).
		Strs("exemptMethods", props.ExemptMethods).
		Bool("trustXFF", cfg.trustXFF).
		Dur("cleanupEvery", g.store.CleanupEvery()).
		Msg("rate limit configured")
	log.Info().
		Bool("redis", len(extra) > 0).
		Str("bucket", cfg.rateStatsBucket).
		Dur("ttl", cfg.rateStatsTTL).
		Bool("trackKeys", cfg.rateStatsTrackKeys).
		Msg("rate limit stats")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
