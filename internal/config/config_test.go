package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  binance:
    enabled: true
    symbols: ["BTCUSDT"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	ex := cfg.Exchanges["binance"]
	require.Equal(t, 200, ex.RateLimit.MinIntervalMS)
	require.Equal(t, 2, ex.RateLimit.MaxConcurrent)
	require.Equal(t, 5, ex.Retry.Attempts)
	require.Equal(t, []string{"1m"}, ex.Timeframes)
	require.Equal(t, ":9090", cfg.Metrics.ListenAddr)
	require.Equal(t, 10_000, cfg.Cache.QueueMaxLen)
}

func TestLoadRejectsEnabledExchangeWithoutSymbols(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  kraken:
    enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadDisabledExchangeNeedsNoSymbols(t *testing.T) {
	path := writeConfig(t, `
exchanges:
  okx:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Exchanges["okx"].Enabled)
}

type stubResolver struct {
	dsn   string
	redis string
}

func (s stubResolver) ResolveDSN(ctx context.Context, fallback string) string {
	if s.dsn != "" {
		return s.dsn
	}
	return fallback
}

func (s stubResolver) ResolveRedisAddr(ctx context.Context, fallback string) string {
	if s.redis != "" {
		return s.redis
	}
	return fallback
}

func TestApplySecretsOverridesDSNAndRedisAddr(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://plaintext@localhost/ingestd"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.ApplySecrets(context.Background(), stubResolver{dsn: "postgres://vault@db/ingestd", redis: "redis:6379"})

	require.Equal(t, "postgres://vault@db/ingestd", cfg.Storage.DSN)
	require.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
}

func TestApplySecretsKeepsFallbackWhenUnresolved(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://plaintext@localhost/ingestd"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.ApplySecrets(context.Background(), stubResolver{})

	require.Equal(t, "postgres://plaintext@localhost/ingestd", cfg.Storage.DSN)
}
