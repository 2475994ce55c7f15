package main

import (
	"os"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/config"
)

// Helpers de ambiente usados como default das flags. Valor malformado cai no
// default; a configuração do limiter em si é validada por config.Load.

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// aceita "24h" e também ISO-8601 ("PT24H")
func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := config.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
