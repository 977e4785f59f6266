// internal/platform/di/secret_provider_sm.go
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrSecretNotConfigured = errors.New("secret_provider: not configured")
	ErrSecretNotFound      = errors.New("secret_provider: secret not found")
)

// secretAccessor is the part of *secretmanager.Client the provider uses.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretProviderSM reads the latest version of a secret.
// secretID may be a bare id or a full "projects/.../secrets/..." resource name.
type SecretProviderSM struct {
	Client    secretAccessor
	ProjectID string
}

func NewSecretProviderSM(client *secretmanager.Client, projectID string) *SecretProviderSM {
	p := &SecretProviderSM{ProjectID: strings.TrimSpace(projectID)}
	if client != nil {
		p.Client = client
	}
	return p
}

func (p *SecretProviderSM) Get(ctx context.Context, secretID string) (string, error) {
	if p == nil || p.Client == nil {
		return "", ErrSecretNotConfigured
	}
	name, err := p.resourceName(secretID)
	if err != nil {
		return "", err
	}

	res, err := p.Client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("secret_provider: access %s: %w", name, err)
	}
	if res == nil || res.Payload == nil {
		return "", fmt.Errorf("%w: %s (empty payload)", ErrSecretNotFound, name)
	}

	s := strings.TrimSpace(string(res.Payload.Data))
	if s == "" {
		return "", fmt.Errorf("%w: %s (empty payload)", ErrSecretNotFound, name)
	}
	return s, nil
}

func (p *SecretProviderSM) resourceName(secretID string) (string, error) {
	id := strings.TrimSpace(secretID)
	if id == "" {
		return "", fmt.Errorf("%w: secret id is empty", ErrSecretNotConfigured)
	}
	if strings.HasPrefix(id, "projects/") {
		if !strings.Contains(id, "/versions/") {
			id += "/versions/latest"
		}
		return id, nil
	}
	if p.ProjectID == "" {
		return "", fmt.Errorf("%w: projectID is empty", ErrSecretNotConfigured)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.ProjectID, id), nil
}
