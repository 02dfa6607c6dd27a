package secrets

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestResolverFallsBackWhenEnvUnset(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	got := r.Resolve(context.Background(), "database_dsn", "postgres://fallback/db")
	require.Equal(t, "postgres://fallback/db", got)
}

func TestResolverPrefersEnvOverFallback(t *testing.T) {
	require.NoError(t, os.Setenv("INGESTD_DATABASE_DSN", "postgres://from-env/db"))
	defer os.Unsetenv("INGESTD_DATABASE_DSN")

	r := NewResolver(zerolog.Nop())
	got := r.ResolveDSN(context.Background(), "postgres://fallback/db")
	require.Equal(t, "postgres://from-env/db", got)
}

func TestResolverRedisAddrFallsBack(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	got := r.ResolveRedisAddr(context.Background(), "")
	require.Equal(t, "", got)
}
