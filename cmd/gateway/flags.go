package main

import (
	"fmt"

	"admission-gateway/middleware/ratelimit/config"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/spf13/pflag"
)

// limiterFlags sobrepõe arquivo/ambiente apenas quando a flag foi passada.
type limiterFlags struct {
	configPath string

	enabled                 bool
	capacity                int64
	refillTokens            int64
	refillDuration          string
	maxBuckets              int
	bucketExpireAfterAccess string
	exemptPaths             []string
	exemptMethods           []string
}

func (f *limiterFlags) register(fs *pflag.FlagSet) {
	d := config.Defaults()
	fs.StringVarP(&f.configPath, "config", "c", getenvDefault("RATE_LIMIT_CONFIG", ""), "YAML file with rate limit properties")
	fs.BoolVar(&f.enabled, "rate-limit-enabled", d.Enabled, "enable the IP rate limit filter")
	fs.Int64Var(&f.capacity, "capacity", d.Capacity, "bucket capacity (burst)")
	fs.Int64Var(&f.refillTokens, "refill-tokens", d.RefillTokens, "tokens credited per refill interval")
	fs.StringVar(&f.refillDuration, "refill-duration", d.RefillDuration.String(), "refill interval (PT1M or 1m)")
	fs.IntVar(&f.maxBuckets, "max-buckets", d.MaxBuckets, "max tracked client keys")
	fs.StringVar(&f.bucketExpireAfterAccess, "bucket-expire-after-access", d.BucketExpireAfterAccess.String(), "idle time before a key is forgotten (PT15M or 15m)")
	fs.StringSliceVar(&f.exemptPaths, "exempt-paths", d.ExemptPaths, "Ant-style paths never rate limited")
	fs.StringSliceVar(&f.exemptMethods, "exempt-methods", d.ExemptMethods, "HTTP methods never rate limited")
}

// load aplica defaults < arquivo < ambiente < flags e valida o resultado.
func (f *limiterFlags) load(fs *pflag.FlagSet) (config.Properties, error) {
	p, err := config.Load(f.configPath)
	if err != nil {
		return config.Properties{}, err
	}
	if err := f.apply(fs, &p); err != nil {
		return config.Properties{}, err
	}
	if err := p.Validate(); err != nil {
		return config.Properties{}, err
	}
	return p, nil
}

func (f *limiterFlags) apply(fs *pflag.FlagSet, p *config.Properties) error {
	if fs.Changed("rate-limit-enabled") {
		p.Enabled = f.enabled
	}
	if fs.Changed("capacity") {
		p.Capacity = f.capacity
	}
	if fs.Changed("refill-tokens") {
		p.RefillTokens = f.refillTokens
	}
	if fs.Changed("max-buckets") {
		p.MaxBuckets = f.maxBuckets
	}
	if fs.Changed("exempt-paths") {
		p.ExemptPaths = f.exemptPaths
	}
	if fs.Changed("exempt-methods") {
		p.ExemptMethods = f.exemptMethods
	}

	durations := []struct {
		flag string
		v    string
		dst  *config.Duration
	}{
		{"refill-duration", f.refillDuration, &p.RefillDuration},
		{"bucket-expire-after-access", f.bucketExpireAfterAccess, &p.BucketExpireAfterAccess},
	}
	for _, it := range durations {
		if !fs.Changed(it.flag) {
			continue
		}
		d, err := config.ParseDuration(it.v)
		if err != nil {
			return &domain.ConfigurationError{Field: "--" + it.flag, Reason: fmt.Sprintf("has invalid value: %v", err)}
		}
		*it.dst = config.Duration(d)
	}
	return nil
}
