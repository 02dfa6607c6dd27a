package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvProvider resolves secrets from environment variables named
// <PREFIX>_<KEY>, upper-cased. It is the primary provider for every
// deployment — even a Kubernetes one, since env vars sourced from a
// Secret are the common case; K8sProvider only covers the file-mount case.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-variable secret provider. An empty
// prefix looks up the bare upper-cased key.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// GetSecret retrieves a secret from the environment.
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	envKey := p.buildEnvKey(key)
	value := os.Getenv(envKey)
	if value == "" {
		return nil, &SecretNotFoundError{Key: key, Provider: "environment"}
	}

	return &Secret{
		Key:       key,
		Value:     []byte(value),
		CreatedAt: time.Now(),
		Metadata:  map[string]string{"source": "environment", "env_key": envKey},
	}, nil
}

func (p *EnvProvider) buildEnvKey(key string) string {
	if p.prefix == "" {
		return strings.ToUpper(key)
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(p.prefix), strings.ToUpper(key))
}
