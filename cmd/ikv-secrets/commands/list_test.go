package commands

import (
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCommand(t *testing.T) {
	app, _ := newTestApp(t)
	server := fakeVault(t, map[string]map[string]string{
		"prod-api": {"DATABASE_URL": "postgres://prod/db"},
	})
	loginTenant(t, app, "acme", server.URL)

	out, err := execute(t, NewListCommand(app))
	require.NoError(t, err)
	assert.Contains(t, out, "rec-prod-api")
	assert.Contains(t, out, "prod-api")
}

func TestListCommand_Empty(t *testing.T) {
	app, _ := newTestApp(t)
	server := fakeVault(t, map[string]map[string]string{})
	loginTenant(t, app, "acme", server.URL)

	out, err := execute(t, NewListCommand(app))
	require.NoError(t, err)
	assert.Contains(t, out, "No env records found.")
}

func TestListCommand_PrivateCAVault(t *testing.T) {
	app, _ := newTestApp(t)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records": [{"id": "1", "name": "prod-api", "updated_at": "2026-01-01T00:00:00Z"}]}`)
	}))
	t.Cleanup(server.Close)

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: server.Certificate().Raw,
	})
	require.NoError(t, os.WriteFile(bundle, pemBytes, 0o600))

	app.CACert = bundle
	loginTenant(t, app, "acme", server.URL)

	out, err := execute(t, NewListCommand(app))
	require.NoError(t, err)
	assert.Contains(t, out, "prod-api")
}

func TestListCommand_NoTenant(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := execute(t, NewListCommand(app))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tenant name is required")
}
