package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratelimit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	p := Defaults()
	require.NoError(t, p.Validate())

	assert.True(t, p.Enabled)
	assert.Equal(t, domain.Limits{
		Capacity:       12,
		RefillAmount:   120,
		RefillInterval: time.Minute,
		MaxEntries:     10_000,
		IdleExpiry:     15 * time.Minute,
	}, p.Limits())
	assert.Equal(t, []string{"OPTIONS"}, p.ExemptMethods)
	assert.Contains(t, p.ExemptPaths, "/actuator/**")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestLoad_FileOverridesOnlyGivenFields(t *testing.T) {
	path := writeFile(t, `
capacity: 2
refill-tokens: 2
refill-duration: PT1M
bucket-expire-after-access: PT5M
exempt-paths:
  - /health
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(2), p.Capacity)
	assert.Equal(t, int64(2), p.RefillTokens)
	assert.Equal(t, 5*time.Minute, p.BucketExpireAfterAccess.Std())
	assert.Equal(t, 10_000, p.MaxBuckets)
	assert.Equal(t, []string{"/health"}, p.ExemptPaths)
	assert.True(t, p.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "capacity: 2\n")
	t.Setenv("APP_RATE_LIMIT_CAPACITY", "60")
	t.Setenv("APP_RATE_LIMIT_REFILL_TOKENS", "60")
	t.Setenv("APP_RATE_LIMIT_REFILL_DURATION", "PT30S")
	t.Setenv("APP_RATE_LIMIT_MAX_BUCKETS", "500")
	t.Setenv("APP_RATE_LIMIT_BUCKET_EXPIRE_AFTER_ACCESS", "10m")
	t.Setenv("APP_RATE_LIMIT_ENABLED", "false")
	t.Setenv("APP_RATE_LIMIT_EXEMPT_METHODS", "OPTIONS, HEAD")
	t.Setenv("APP_RATE_LIMIT_EXEMPT_PATHS", "/actuator/**,/docs/*")

	p, err := Load(path)
	require.NoError(t, err)

	assert.False(t, p.Enabled)
	assert.Equal(t, domain.Limits{
		Capacity:       60,
		RefillAmount:   60,
		RefillInterval: 30 * time.Second,
		MaxEntries:     500,
		IdleExpiry:     10 * time.Minute,
	}, p.Limits())
	assert.Equal(t, []string{"OPTIONS", "HEAD"}, p.ExemptMethods)
	assert.Equal(t, []string{"/actuator/**", "/docs/*"}, p.ExemptPaths)
}

func TestLoad_MalformedEnvIsConfigurationError(t *testing.T) {
	t.Setenv("APP_RATE_LIMIT_CAPACITY", "lots")

	_, err := Load("")
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "APP_RATE_LIMIT_CAPACITY", cfgErr.Field)
}

func TestLoad_InvalidValuesFailValidation(t *testing.T) {
	path := writeFile(t, "capacity: 0\nrefill-duration: PT0S\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "capacity")
	assert.Contains(t, err.Error(), "refillDuration")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "capacity: [\n")
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoad_UnknownKeyIsConfigurationError(t *testing.T) {
	path := writeFile(t, "capcity: 5\n")
	_, err := Load(path)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "capcity")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeFile(t, "")
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestValidate_ReportsEveryField(t *testing.T) {
	err := Properties{ExemptPaths: []string{"actuator/**"}}.Validate()
	require.Error(t, err)

	for _, field := range []string{"capacity", "refillTokens", "refillDuration", "maxBuckets", "bucketExpireAfterAccess", "exemptPaths"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestApplyEnv_IgnoresBlankValues(t *testing.T) {
	p := Defaults()
	lookup := func(k string) (string, bool) {
		if k == EnvPrefix+"CAPACITY" {
			return "  ", true
		}
		return "", false
	}
	require.NoError(t, p.applyEnv(lookup))
	assert.Equal(t, int64(12), p.Capacity)
}
