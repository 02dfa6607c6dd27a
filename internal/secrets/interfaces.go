package secrets

import (
	"context"
	"fmt"
	"time"
)

// SecretProvider resolves a single secret by key. This is the narrow surface
// Resolver actually needs: a lookup, nothing else — no write path, no
// listing, no health probe, since this service never manages its own
// secrets, only reads them at startup.
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (*Secret, error)
}

// Secret holds a resolved secret value plus where it came from.
type Secret struct {
	Key       string
	Value     []byte
	Metadata  map[string]string
	CreatedAt time.Time
}

// String returns the secret value as a string.
func (s *Secret) String() string {
	return string(s.Value)
}

// Manager resolves a secret by trying a primary provider, then each
// configured fallback provider in order.
type Manager struct {
	providers map[string]SecretProvider
	primary   string
	fallback  []string
}

// NewManager creates a secret manager backed by the given named providers.
func NewManager(primary string, providers map[string]SecretProvider) *Manager {
	return &Manager{providers: providers, primary: primary}
}

// WithFallback configures fallback providers in order of preference.
func (m *Manager) WithFallback(providers ...string) *Manager {
	m.fallback = providers
	return m
}

// GetSecret tries the primary provider, then each fallback in order.
func (m *Manager) GetSecret(ctx context.Context, key string) (*Secret, error) {
	if provider, ok := m.providers[m.primary]; ok {
		if secret, err := provider.GetSecret(ctx, key); err == nil {
			return secret, nil
		}
	}
	for _, name := range m.fallback {
		provider, ok := m.providers[name]
		if !ok {
			continue
		}
		if secret, err := provider.GetSecret(ctx, key); err == nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("secret not found in any provider: %s", key)
}

// SecretNotFoundError reports a provider-specific lookup miss.
type SecretNotFoundError struct {
	Key      string
	Provider string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found in provider %q", e.Key, e.Provider)
}
