// Package config carrega a configuração do IP rate limiter.
//
// Ordem de precedência: Defaults() < arquivo YAML < variáveis de ambiente
// APP_RATE_LIMIT_* < flags do binário (aplicadas pelo cmd).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "APP_RATE_LIMIT_"

// Properties espelha a superfície de configuração do limiter.
type Properties struct {
	Enabled                 bool     `yaml:"enabled" json:"enabled"`
	Capacity                int64    `yaml:"capacity" json:"capacity"`
	RefillTokens            int64    `yaml:"refill-tokens" json:"refill-tokens"`
	RefillDuration          Duration `yaml:"refill-duration" json:"refill-duration"`
	MaxBuckets              int      `yaml:"max-buckets" json:"max-buckets"`
	BucketExpireAfterAccess Duration `yaml:"bucket-expire-after-access" json:"bucket-expire-after-access"`

	// ExemptPaths usa padrões estilo Ant: "?", "*" (um segmento) e "**".
	ExemptPaths   []string `yaml:"exempt-paths" json:"exempt-paths"`
	ExemptMethods []string `yaml:"exempt-methods" json:"exempt-methods"`
}

// Defaults reproduz os valores padrão do serviço.
//
// capacity=12 com refill de 120 tokens/min parece invertido (refill maior que
// a capacidade), mas é o comportamento configurado e é mantido como está.
func Defaults() Properties {
	return Properties{
		Enabled:                 true,
		Capacity:                12,
		RefillTokens:            120,
		RefillDuration:          Duration(time.Minute),
		MaxBuckets:              10_000,
		BucketExpireAfterAccess: Duration(15 * time.Minute),
		ExemptPaths:             []string{"/actuator/**", "/swagger-ui/**", "/v3/api-docs/**"},
		ExemptMethods:           []string{"OPTIONS"},
	}
}

// Load aplica defaults, o arquivo YAML (se path != "") e o ambiente, e valida.
func Load(path string) (Properties, error) {
	p := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Properties{}, &domain.ConfigurationError{Reason: fmt.Sprintf("read config file: %v", err)}
		}
		if err := decodeStrict(data, &p); err != nil {
			return Properties{}, &domain.ConfigurationError{Reason: fmt.Sprintf("parse config file %s: %v", path, err)}
		}
	}

	if err := p.applyEnv(os.LookupEnv); err != nil {
		return Properties{}, err
	}
	if err := p.Validate(); err != nil {
		return Properties{}, err
	}
	return p, nil
}

// decodeStrict recusa chaves desconhecidas ("capcity" não vira default em
// silêncio). Arquivo vazio é aceito.
func decodeStrict(data []byte, p *Properties) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv falha em valor malformado em vez de cair no default silenciosamente.
func (p *Properties) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	bad := func(name, v string, err error) error {
		return &domain.ConfigurationError{Field: EnvPrefix + name, Reason: fmt.Sprintf("has invalid value %q: %v", v, err)}
	}

	if v, ok := get("ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return bad("ENABLED", v, err)
		}
		p.Enabled = b
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"CAPACITY", &p.Capacity},
		{"REFILL_TOKENS", &p.RefillTokens},
	}
	for _, it := range ints {
		if v, ok := get(it.name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return bad(it.name, v, err)
			}
			*it.dst = n
		}
	}

	if v, ok := get("MAX_BUCKETS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return bad("MAX_BUCKETS", v, err)
		}
		p.MaxBuckets = n
	}

	durations := []struct {
		name string
		dst  *Duration
	}{
		{"REFILL_DURATION", &p.RefillDuration},
		{"BUCKET_EXPIRE_AFTER_ACCESS", &p.BucketExpireAfterAccess},
	}
	for _, it := range durations {
		if v, ok := get(it.name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return bad(it.name, v, err)
			}
			*it.dst = Duration(d)
		}
	}

	if v, ok := get("EXEMPT_PATHS"); ok {
		p.ExemptPaths = splitList(v)
	}
	if v, ok := get("EXEMPT_METHODS"); ok {
		p.ExemptMethods = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate retorna *domain.ConfigurationError; vários problemas são unidos.
func (p Properties) Validate() error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &domain.ConfigurationError{Field: field, Reason: reason})
	}

	if p.Capacity <= 0 {
		add("capacity", "must be > 0")
	}
	if p.RefillTokens <= 0 {
		add("refillTokens", "must be > 0")
	}
	if p.RefillDuration <= 0 {
		add("refillDuration", "must be > 0")
	}
	if p.MaxBuckets <= 0 {
		add("maxBuckets", "must be > 0")
	}
	if p.BucketExpireAfterAccess <= 0 {
		add("bucketExpireAfterAccess", "must be > 0")
	}
	for _, pat := range p.ExemptPaths {
		if !strings.HasPrefix(pat, "/") {
			add("exemptPaths", fmt.Sprintf("pattern %q must start with /", pat))
		}
	}
	return errors.Join(errs...)
}

// Limits converte para os limites do AdmissionController.
func (p Properties) Limits() domain.Limits {
	return domain.Limits{
		Capacity:       p.Capacity,
		RefillAmount:   p.RefillTokens,
		RefillInterval: p.RefillDuration.Std(),
		MaxEntries:     p.MaxBuckets,
		IdleExpiry:     p.BucketExpireAfterAccess.Std(),
	}
}
