package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ironkeyvault/ikv-secrets/internal/config"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

// newTestApp builds an App with throwaway config and token files and the
// IKV_* environment cleared so ambient shell state cannot leak into tests.
func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()

	t.Setenv("IKV_TENANT", "")
	t.Setenv("IKV_VAULT_URL", "")
	t.Setenv("IKV_API_KEY", "")
	t.Setenv("IKV_MASTER_KEY", "")

	dir := t.TempDir()
	var logBuf bytes.Buffer

	app := &App{
		Config: &config.Config{Path: filepath.Join(dir, "config.json")},
		Tokens: tokenstore.NewWithBackend(nil, filepath.Join(dir, "tokens.json")),
		Logger: logging.NewWithWriter(&logBuf, false, true),
	}
	return app, &logBuf
}

// loginTenant registers a tenant pointing at the given vault URL and
// stores a token for it that expires an hour from now.
func loginTenant(t *testing.T, app *App, tenant, vaultURL string) {
	t.Helper()

	require.NoError(t, app.Config.SaveTenant(tenant, vaultURL, ""))
	require.NoError(t, app.Tokens.Put(tenant, tokenstore.Token{
		AccessToken: "test-token-" + tenant,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Tenant:      tenant,
	}))
}

// fakeVault serves the record endpoints with bearer auth, backed by a
// static map of record name to variables.
func fakeVault(t *testing.T, records map[string]map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if r.URL.Path == "/api/v1/env" {
			type record struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				UpdatedAt string `json:"updated_at"`
			}
			var out struct {
				Records []record `json:"records"`
			}
			for name := range records {
				out.Records = append(out.Records, record{
					ID:        "rec-" + name,
					Name:      name,
					UpdatedAt: "2026-01-01T00:00:00Z",
				})
			}
			_ = json.NewEncoder(w).Encode(out)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/api/v1/env/")
		vars, ok := records[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "record not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"variables": vars})
	}))
	t.Cleanup(server.Close)
	return server
}

// execute runs a command with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
