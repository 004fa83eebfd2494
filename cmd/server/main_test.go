package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── mock key store ─────────────────────────────────────────────────────────

type testKeyStore struct {
	userErr   error
	createErr error
	created   []*models.APIKey
}

func (s *testKeyStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return &models.User{ID: id, DisplayName: "default"}, nil
}

func (s *testKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, key)
	return nil
}

var _ keyCreator = (*store.PostgresStore)(nil)

// ─── bootstrapAdminKey ──────────────────────────────────────────────────────

func TestBootstrapAdminKey_PrintsUsableKey(t *testing.T) {
	s := &testKeyStore{}
	var out bytes.Buffer

	require.NoError(t, bootstrapAdminKey(context.Background(), s, &out))
	require.Len(t, s.created, 1)

	raw := strings.TrimSpace(out.String())
	key := s.created[0]

	assert.Equal(t, store.DefaultUserID, key.UserID)
	assert.ElementsMatch(t, []string{mw.ScopeTrain, mw.ScopeAdmin}, key.Scopes)
	assert.Equal(t, raw[:mw.KeyPrefixLen], key.KeyPrefix)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)))
	assert.NotContains(t, key.KeyHash, raw)
}

func TestBootstrapAdminKey_MissingDefaultUser(t *testing.T) {
	s := &testKeyStore{userErr: store.ErrNotFound}
	var out bytes.Buffer

	err := bootstrapAdminKey(context.Background(), s, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, out.String())
	assert.Empty(t, s.created)
}

func TestBootstrapAdminKey_CreateFails(t *testing.T) {
	s := &testKeyStore{createErr: errors.New("db down")}
	var out bytes.Buffer

	err := bootstrapAdminKey(context.Background(), s, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create api key")
	assert.Empty(t, out.String())
}

// ─── run ────────────────────────────────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	clearConfigEnv(t)

	err := run(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	t.Setenv("MINIO_SECRET_KEY", "minioadmin")

	err := run(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

func TestRun_BootstrapFailsOnInvalidDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	t.Setenv("MINIO_SECRET_KEY", "minioadmin")

	err := run(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}

// ─── helper: clear env ──────────────────────────────────────────────────────

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	} {
		t.Setenv(key, "")
	}
}
