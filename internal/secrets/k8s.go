package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// K8sProvider resolves secrets from files mounted from a Kubernetes Secret
// volume, one file per key, as configured via SECRETS_MOUNT_PATH. This is
// the fallback provider for deployments that mount secrets as files rather
// than injecting them as environment variables.
type K8sProvider struct {
	mountPath string
	namespace string
}

// NewK8sProvider creates a Kubernetes secret-volume provider.
func NewK8sProvider(mountPath, namespace string) *K8sProvider {
	return &K8sProvider{mountPath: mountPath, namespace: namespace}
}

// GetSecret reads the file named key under the mount path.
func (p *K8sProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	secretPath := filepath.Join(p.mountPath, key)

	info, err := os.Stat(secretPath)
	if os.IsNotExist(err) {
		return nil, &SecretNotFoundError{Key: key, Provider: "kubernetes"}
	}
	if err != nil {
		return nil, fmt.Errorf("stat secret file %s: %w", secretPath, err)
	}

	value, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("read secret file %s: %w", secretPath, err)
	}

	return &Secret{
		Key:       key,
		Value:     []byte(strings.TrimSpace(string(value))), // k8s secret mounts often trail a newline
		CreatedAt: info.ModTime(),
		Metadata:  map[string]string{"source": "kubernetes", "namespace": p.namespace},
	}, nil
}
