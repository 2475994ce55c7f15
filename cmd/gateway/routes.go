package main

import (
	"encoding/json"
	"net/http"

	"admission-gateway/middleware/correlation"
	"admission-gateway/middleware/problem"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/config"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routerDeps struct {
	filter      *ratelimit.Filter
	props       config.Properties
	instanceID  string
	gatherer    prometheus.Gatherer
	metricsPath string
	// upstream nil serve a API de demonstração.
	upstream http.Handler
}

// newRouter monta: correlation -> recover -> rate limit -> handlers.
// Toda rota passa pelos middlewares; o catch-all final garante isso também
// para caminhos desconhecidos.
func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	r.Use(correlation.Middleware(correlation.Options{
		InstanceID: d.instanceID,
		Skip:       ratelimit.BypassPolicy{ExemptPaths: []string{"/actuator/**"}, ExemptMethods: []string{http.MethodOptions}},
	}))
	r.Use(problem.Recover)
	r.Use(d.filter.Middleware)

	r.HandleFunc("/actuator/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/actuator/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"app":        appName,
			"version":    version,
			"instanceId": d.instanceID,
			"rateLimit":  d.props,
		})
	}).Methods(http.MethodGet)

	r.Handle(d.metricsPath, promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/v3/api-docs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, apiDocs(d.upstream != nil))
	}).Methods(http.MethodGet)

	if d.upstream != nil {
		r.PathPrefix("/").Handler(d.upstream)
		return r
	}

	r.HandleFunc("/api/v1/cryptos/supported", supportedCryptos).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(problem.NotFound)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func supportedCryptos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []string{"BTC", "ETH", "SOL", "ADA", "XRP"})
}

func apiDocs(proxied bool) map[string]any {
	paths := map[string]any{}
	if !proxied {
		paths["/api/v1/cryptos/supported"] = map[string]any{
			"get": map[string]any{
				"summary": "List supported crypto symbols",
				"responses": map[string]any{
					"200": map[string]any{"description": "symbols"},
					"429": map[string]any{"description": "Rate limit exceeded (application/problem+json)"},
				},
			},
		}
	}
	return map[string]any{
		"openapi": "3.0.1",
		"info":    map[string]string{"title": appName, "version": version},
		"paths":   paths,
	}
}
