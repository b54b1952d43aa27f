package ikv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

func setupVault(t *testing.T, records map[string]map[string]string) *httptest.Server {
	t.Helper()

	t.Setenv("IKV_TENANT", "")
	t.Setenv("IKV_VAULT_URL", "")
	t.Setenv("IKV_API_KEY", "")
	t.Setenv("IKV_MASTER_KEY", "")
	t.Setenv("IKV_RECORD", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/api/v1/env/")
		vars, ok := records[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"variables": vars})
	}))
	t.Cleanup(server.Close)

	// Keep the OS keyring and real home directory out of the test.
	store := tokenstore.NewWithBackend(nil, filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, store.Put("acme", tokenstore.Token{
		AccessToken: "sdk-token",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Tenant:      "acme",
	}))
	orig := newTokenStore
	newTokenStore = func() (*tokenstore.Store, error) { return store, nil }
	t.Cleanup(func() { newTokenStore = orig })

	return server
}

func TestOpen_EagerLoad(t *testing.T) {
	server := setupVault(t, map[string]map[string]string{
		"prod-api": {"DATABASE_URL": "postgres://prod/db", "API_KEY": "k1"},
	})

	ctx := context.Background()
	secrets, err := Open(ctx, Options{
		Tenant:   "acme",
		VaultURL: server.URL,
		Record:   "prod-api",
	})
	require.NoError(t, err)
	defer secrets.Close()

	assert.Equal(t, "prod-api", secrets.Record())
	assert.Equal(t, "acme", secrets.Tenant())

	v, err := secrets.Get(ctx, "DATABASE_URL")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prod/db", v)

	keys, err := secrets.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_KEY", "DATABASE_URL"}, keys)
}

func TestOpen_LazyRecordFromEnv(t *testing.T) {
	server := setupVault(t, map[string]map[string]string{
		"staging": {"API_KEY": "k2"},
	})
	t.Setenv("IKV_RECORD", "staging")

	ctx := context.Background()
	secrets, err := Open(ctx, Options{Tenant: "acme", VaultURL: server.URL})
	require.NoError(t, err)
	defer secrets.Close()

	// No record named yet; the first accessor triggers the fetch.
	assert.Equal(t, "", secrets.Record())

	v, err := secrets.Get(ctx, "API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "k2", v)
	assert.Equal(t, "staging", secrets.Record())
}

func TestOpen_TenantFromEnv(t *testing.T) {
	server := setupVault(t, map[string]map[string]string{
		"prod-api": {"API_KEY": "k1"},
	})
	t.Setenv("IKV_TENANT", "acme")

	ctx := context.Background()
	secrets, err := Open(ctx, Options{VaultURL: server.URL, Record: "prod-api"})
	require.NoError(t, err)
	defer secrets.Close()

	assert.Equal(t, "acme", secrets.Tenant())
}

func TestOpen_NoVaultURL(t *testing.T) {
	setupVault(t, nil)

	_, err := Open(context.Background(), Options{
		Tenant:     "acme",
		ConfigPath: filepath.Join(t.TempDir(), "config.json"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No vault URL configured")
}

func TestSecrets_Lookup(t *testing.T) {
	server := setupVault(t, map[string]map[string]string{
		"prod-api": {"API_KEY": "k1"},
	})

	ctx := context.Background()
	secrets, err := Open(ctx, Options{Tenant: "acme", VaultURL: server.URL, Record: "prod-api"})
	require.NoError(t, err)
	defer secrets.Close()

	v, err := secrets.Lookup(ctx, "MISSING", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	ok, err := secrets.Has(ctx, "API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
}
