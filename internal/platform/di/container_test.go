package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"solare/internal/adapters/out/memory"
	appcfg "solare/internal/infra/config"
	firestoreinfra "solare/internal/infra/firestore"
)

func memoryConfig(t *testing.T) *appcfg.Config {
	return &appcfg.Config{
		Backend:               appcfg.BackendMemory,
		LocalStoreDir:         t.TempDir(),
		AllowedOrigin:         "https://shop.example",
		ReadyTimeout:          time.Second,
		SessionLookupAttempts: 1,
		SessionLookupInterval: time.Millisecond,
	}
}

func TestMemoryContainerServesState(t *testing.T) {
	ctx := context.Background()
	inf, err := NewInfra(ctx, memoryConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inf.Close() })
	assert.Nil(t, inf.FirebaseAuth)

	c, err := NewContainer(ctx, inf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, isMemory := c.sessions.(*memory.SessionSource)
	assert.True(t, isMemory)
	assert.True(t, c.Manager.Auth().IsReady())

	h := c.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"token":"u1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Auth struct {
			Identity string `json:"identity"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user:u1", body.Auth.Identity)
}

func TestNewContainerRequiresInfra(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewInfraFirestoreNeedsProject(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Backend = appcfg.BackendFirestore
	_, err := NewInfra(context.Background(), cfg)
	assert.ErrorIs(t, err, firestoreinfra.ErrNoProject)
}

type fakeSecrets struct {
	names []string
	data  map[string]string
}

func (f *fakeSecrets) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.names = append(f.names, req.GetName())
	v, ok := f.data[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "no such secret")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(v)},
	}, nil
}

func TestSecretProviderSM(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSecrets{data: map[string]string{
		"projects/p1/secrets/db-password/versions/latest": " hunter2\n",
		"projects/p2/secrets/other/versions/3":             "x",
	}}
	p := &SecretProviderSM{Client: fake, ProjectID: "p1"}

	v, err := p.Get(ctx, "db-password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	v, err = p.Get(ctx, "projects/p2/secrets/other/versions/3")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = p.Get(ctx, "projects/p1/secrets/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "projects/p1/secrets/missing/versions/latest", fake.names[len(fake.names)-1])

	_, err = p.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrSecretNotConfigured)

	var nilProvider *SecretProviderSM
	_, err = nilProvider.Get(ctx, "db-password")
	assert.ErrorIs(t, err, ErrSecretNotConfigured)

	_, err = NewSecretProviderSM(nil, "p1").Get(ctx, "db-password")
	assert.ErrorIs(t, err, ErrSecretNotConfigured)
}
