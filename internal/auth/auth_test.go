package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironkeyvault/ikv-secrets/internal/config"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

func newTestFlow(t *testing.T) *Flow {
	t.Helper()
	dir := t.TempDir()
	return &Flow{
		Config: &config.Config{Path: filepath.Join(dir, "config.json")},
		Tokens: tokenstore.NewWithBackend(nil, filepath.Join(dir, "tokens.json")),
		Logger: logging.New(false, true),
	}
}

// fetchingBrowser simulates a user whose browser follows the vault's
// redirect back to the localhost callback.
func fetchingBrowser(t *testing.T) func(string) error {
	t.Helper()
	return func(url string) error {
		go func() {
			resp, err := http.Get(url)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

// fakeVault serves the two endpoints the browser flow touches. mangle
// lets tests corrupt the redirect back to the CLI.
func fakeVault(t *testing.T, mangle func(q map[string]string)) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth/start", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		require.NotEmpty(t, query.Get("redirect_uri"))
		require.NotEmpty(t, query.Get("state"))
		require.NotEmpty(t, query.Get("device_fingerprint"))

		params := map[string]string{
			"code":  "auth-code-123",
			"state": query.Get("state"),
		}
		if mangle != nil {
			mangle(params)
		}

		target := query.Get("redirect_uri") + "?"
		for k, v := range params {
			target += fmt.Sprintf("&%s=%s", k, v)
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.HandleFunc("/auth/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code        string `json:"code"`
			RedirectURI string `json:"redirect_uri"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Code != "auth-code-123" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error_description": "unknown authorization code"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token": "browser-token", "expires_at": %d}`,
			time.Now().Add(4*time.Hour).Unix())
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestStateToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		state, err := stateToken()
		require.NoError(t, err)

		// 16 random bytes as unpadded URL-safe base64
		assert.Len(t, state, 22)
		_, err = base64.RawURLEncoding.DecodeString(state)
		assert.NoError(t, err)

		assert.False(t, seen[state], "state %q repeated", state)
		seen[state] = true
	}
}

func TestBrowserLogin(t *testing.T) {
	t.Setenv("IKV_VAULT_URL", "")
	server := fakeVault(t, nil)

	flow := newTestFlow(t)
	flow.OpenBrowser = fetchingBrowser(t)

	tok, err := flow.Login(context.Background(), LoginOptions{
		Tenant:   "acme",
		VaultURL: server.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "browser-token", tok.AccessToken)
	assert.Equal(t, "acme", tok.Tenant)
	assert.False(t, tok.Expired())

	// Token was persisted
	stored, err := flow.Tokens.Get("acme")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "browser-token", stored.AccessToken)

	// Tenant URL was recorded for later commands
	url, err := flow.Config.TenantURL("acme")
	require.NoError(t, err)
	assert.Equal(t, server.URL, url)
}

func TestBrowserLoginStateMismatch(t *testing.T) {
	server := fakeVault(t, func(params map[string]string) {
		params["state"] = "forged-state"
	})

	flow := newTestFlow(t)
	flow.OpenBrowser = fetchingBrowser(t)

	_, err := flow.Login(context.Background(), LoginOptions{
		Tenant:   "acme",
		VaultURL: server.URL,
	})
	var authErr ikverrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "state mismatch")
}

func TestBrowserLoginErrorCallback(t *testing.T) {
	server := fakeVault(t, func(params map[string]string) {
		delete(params, "code")
		params["error"] = "access_denied"
		params["error_description"] = "MFA+challenge+failed"
	})

	flow := newTestFlow(t)
	flow.OpenBrowser = fetchingBrowser(t)

	_, err := flow.Login(context.Background(), LoginOptions{
		Tenant:   "acme",
		VaultURL: server.URL,
	})
	var authErr ikverrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "authentication failed")
}

func TestBrowserLoginTimeout(t *testing.T) {
	server := fakeVault(t, nil)

	flow := newTestFlow(t)
	flow.OpenBrowser = func(string) error { return nil } // user never completes login

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := flow.Login(ctx, LoginOptions{Tenant: "acme", VaultURL: server.URL})
	var authErr ikverrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "timed out")
}

func TestServiceAccountLogin(t *testing.T) {
	expiresAt := time.Now().Add(4 * time.Hour).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/service-account", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Tenant    string `json:"tenant"`
			APIKey    string `json:"api_key"`
			MasterKey string `json:"master_key"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme", req.Tenant)
		assert.Equal(t, "svc-key", req.APIKey)
		assert.Equal(t, "master-pw", req.MasterKey)

		fmt.Fprintf(w, `{"access_token": "svc-token", "expires_at": %d}`, expiresAt)
	}))
	defer server.Close()

	flow := newTestFlow(t)

	tok, err := flow.Login(context.Background(), LoginOptions{
		Tenant:    "acme",
		VaultURL:  server.URL,
		APIKey:    "svc-key",
		MasterKey: "master-pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "svc-token", tok.AccessToken)
	assert.Equal(t, expiresAt, tok.ExpiresAt)

	stored, err := flow.Tokens.Get("acme")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "svc-token", stored.AccessToken)
}

func TestServiceAccountLoginRejections(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantMsg string
	}{
		{"invalid credentials", http.StatusUnauthorized, "invalid service account credentials"},
		{"tier restriction", http.StatusForbidden, "Enterprise tier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			flow := newTestFlow(t)

			_, err := flow.Login(context.Background(), LoginOptions{
				Tenant:    "acme",
				VaultURL:  server.URL,
				APIKey:    "bad",
				MasterKey: "bad",
			})
			var authErr ikverrors.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Contains(t, authErr.Error(), tt.wantMsg)
		})
	}
}

func TestServiceAccountLoginDefaultExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No expires_at and no expires_in
		fmt.Fprint(w, `{"access_token": "svc-token"}`)
	}))
	defer server.Close()

	flow := newTestFlow(t)

	tok, err := flow.Login(context.Background(), LoginOptions{
		Tenant:    "acme",
		VaultURL:  server.URL,
		APIKey:    "k",
		MasterKey: "m",
	})
	require.NoError(t, err)

	want := time.Now().Add(tokenstore.DefaultTTL).Unix()
	assert.InDelta(t, want, tok.ExpiresAt, 5)
}

func TestLoginRequiresTenant(t *testing.T) {
	flow := newTestFlow(t)

	_, err := flow.Login(context.Background(), LoginOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tenant name is required")
}

func TestLogoutSingleTenant(t *testing.T) {
	flow := newTestFlow(t)
	require.NoError(t, flow.Tokens.Put("acme", tokenstore.Token{
		AccessToken: "x", ExpiresAt: time.Now().Add(time.Hour).Unix(), Tenant: "acme",
	}))

	require.NoError(t, flow.Logout("acme"))

	tok, err := flow.Tokens.Get("acme")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestLogoutAllTenants(t *testing.T) {
	flow := newTestFlow(t)
	for _, tenant := range []string{"acme", "beta"} {
		require.NoError(t, flow.Config.SaveTenant(tenant, "https://"+tenant+".example", ""))
		require.NoError(t, flow.Tokens.Put(tenant, tokenstore.Token{
			AccessToken: "x", ExpiresAt: time.Now().Add(time.Hour).Unix(), Tenant: tenant,
		}))
	}

	require.NoError(t, flow.Logout(""))

	for _, tenant := range []string{"acme", "beta"} {
		tok, err := flow.Tokens.Get(tenant)
		require.NoError(t, err)
		assert.Nil(t, tok, "token for %s should be gone", tenant)
	}
}
