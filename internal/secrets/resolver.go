package secrets

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Resolver overrides plaintext configuration values (Postgres DSN, Redis
// address) with values pulled from a secret provider, so operators can keep
// connection strings out of the YAML config file checked into source
// control. Environment variables are tried first; a Kubernetes secret mount
// is used as a fallback when SECRETS_MOUNT_PATH is set, matching how the
// ingestion pipeline's other ambient infra (cache, config) defaults safely
// when unconfigured.
type Resolver struct {
	manager *Manager
	log     zerolog.Logger
}

// NewResolver builds a Resolver with the environment provider as primary and,
// when SECRETS_MOUNT_PATH is set, a Kubernetes file-mount provider as
// fallback.
func NewResolver(log zerolog.Logger) *Resolver {
	providers := map[string]SecretProvider{
		"env": NewEnvProvider("INGESTD"),
	}
	primary := "env"
	var fallback []string
	if mount := os.Getenv("SECRETS_MOUNT_PATH"); mount != "" {
		providers["k8s"] = NewK8sProvider(mount, os.Getenv("POD_NAMESPACE"))
		fallback = append(fallback, "k8s")
	}

	return &Resolver{
		manager: NewManager(primary, providers).WithFallback(fallback...),
		log:     log.With().Str("component", "secrets").Logger(),
	}
}

// Resolve returns the named secret's value, or fallback if no provider has
// it. Lookup failures are logged at debug level — a missing secret is
// expected whenever the caller intends to use the YAML-configured fallback.
func (r *Resolver) Resolve(ctx context.Context, key, fallback string) string {
	secret, err := r.manager.GetSecret(ctx, key)
	if err != nil {
		r.log.Debug().Str("key", key).Msg("secret not found, using configured fallback")
		return fallback
	}
	return secret.String()
}

// ResolveDSN overrides the Postgres DSN with the "database_dsn" secret, if
// present.
func (r *Resolver) ResolveDSN(ctx context.Context, fallback string) string {
	return r.Resolve(ctx, "database_dsn", fallback)
}

// ResolveRedisAddr overrides the Redis address with the "redis_addr" secret,
// if present.
func (r *Resolver) ResolveRedisAddr(ctx context.Context, fallback string) string {
	return r.Resolve(ctx, "redis_addr", fallback)
}
