// Package auth implements the two IronKeyVault login flows: the
// interactive browser flow (authorization code over a localhost
// callback) and the non-interactive service-account flow for CI/CD.
package auth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/ironkeyvault/ikv-secrets/internal/config"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

// LoginTimeout bounds how long the browser flow waits for the user to
// finish logging in.
const LoginTimeout = 5 * time.Minute

// Flow runs login and logout against one vault.
type Flow struct {
	Config *config.Config
	Tokens *tokenstore.Store
	Logger *logging.Logger

	// InsecureSkipVerify disables TLS verification for the token
	// exchange. Local dev vaults run with self-signed certificates.
	InsecureSkipVerify bool

	// OpenBrowser opens the login URL; defaults to the system browser.
	// Tests point it at the fake vault's consent endpoint.
	OpenBrowser func(url string) error
}

// LoginOptions carries the parameters of one login attempt.
type LoginOptions struct {
	Tenant    string
	VaultURL  string
	APIKey    string
	MasterKey string
	Force     bool
}

// Login authenticates a tenant and persists the resulting token and
// tenant configuration. Both credentials present selects the
// service-account flow; otherwise the browser flow runs.
func (f *Flow) Login(ctx context.Context, opts LoginOptions) (*tokenstore.Token, error) {
	if opts.Tenant == "" {
		return nil, ikverrors.UserError{
			Message:    "Tenant name is required",
			Suggestion: "Use --tenant <name>",
		}
	}

	vaultURL := strings.TrimSuffix(opts.VaultURL, "/")
	if vaultURL == "" {
		stored, err := f.Config.TenantURL(opts.Tenant)
		if err != nil {
			return nil, err
		}
		vaultURL = stored
	}
	if vaultURL == "" {
		vaultURL = config.DefaultVaultURL
		f.Logger.Info("Using default vault URL: %s", vaultURL)
	}

	if opts.APIKey != "" && opts.MasterKey != "" {
		return f.serviceAccountLogin(ctx, opts.Tenant, vaultURL, opts.APIKey, opts.MasterKey)
	}

	return f.browserLogin(ctx, opts.Tenant, vaultURL, opts.Force)
}

// Logout removes the stored token for a tenant. An empty tenant logs
// out of every configured tenant.
func (f *Flow) Logout(tenant string) error {
	if tenant != "" {
		return f.Tokens.Delete(tenant)
	}

	names, err := f.Config.Tenants()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := f.Tokens.Delete(name); err != nil {
			f.Logger.Debug("failed to delete token for %s: %v", name, err)
		}
	}
	return nil
}

// serviceAccountLogin exchanges CI/CD credentials for a token.
func (f *Flow) serviceAccountLogin(ctx context.Context, tenant, vaultURL, apiKey, masterKey string) (*tokenstore.Token, error) {
	payload, err := json.Marshal(map[string]string{
		"tenant":     tenant,
		"api_key":    apiKey,
		"master_key": masterKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		vaultURL+"/api/v1/auth/service-account", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, ikverrors.Simplify(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ikverrors.AuthError{
			Tenant:  tenant,
			Message: "invalid service account credentials",
		}
	case http.StatusForbidden:
		return nil, ikverrors.AuthError{
			Tenant:  tenant,
			Message: "service accounts require Enterprise tier",
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service account login failed with status %d", resp.StatusCode)
	}

	tok, err := f.tokenFromResponse(tenant, body)
	if err != nil {
		return nil, err
	}
	return tok, f.persist(tenant, vaultURL, tok)
}

// tokenFromResponse decodes a token payload. Servers send expires_at;
// older ones send expires_in; absent both, the default lifetime applies.
func (f *Flow) tokenFromResponse(tenant string, body []byte) (*tokenstore.Token, error) {
	var data struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid login response: %w", err)
	}
	if data.AccessToken == "" {
		return nil, ikverrors.AuthError{
			Tenant:  tenant,
			Message: "login response carried no access token",
		}
	}

	expiresAt := data.ExpiresAt
	if expiresAt == 0 {
		ttl := time.Duration(data.ExpiresIn) * time.Second
		if ttl == 0 {
			ttl = tokenstore.DefaultTTL
		}
		expiresAt = time.Now().Add(ttl).Unix()
	}

	return &tokenstore.Token{
		AccessToken: data.AccessToken,
		ExpiresAt:   expiresAt,
		Tenant:      tenant,
	}, nil
}

func (f *Flow) persist(tenant, vaultURL string, tok *tokenstore.Token) error {
	if err := f.Tokens.Put(tenant, *tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if err := f.Config.SaveTenant(tenant, vaultURL, ""); err != nil {
		return fmt.Errorf("failed to save tenant config: %w", err)
	}
	return nil
}

func (f *Flow) httpClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: f.InsecureSkipVerify},
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

func (f *Flow) openBrowser(url string) error {
	if f.OpenBrowser != nil {
		return f.OpenBrowser(url)
	}
	// Silence the "Opening in existing browser session" chatter some
	// browsers print on stdout.
	browser.Stdout = os.Stderr
	return browser.OpenURL(url)
}
