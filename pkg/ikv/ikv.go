// Package ikv is the embeddable client for IronKeyVault env records.
// It resolves a tenant the same way the CLI does (explicit options,
// IKV_* environment variables, then config.json), fetches a record on
// first use, and serves variables from a sealed in-process cache.
//
// Typical application startup:
//
//	secrets, err := ikv.Open(ctx, ikv.Options{Record: "prod-api"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer secrets.Close()
//
//	dsn, err := secrets.Get(ctx, "DATABASE_URL")
package ikv

import (
	"context"
	"os"

	"github.com/ironkeyvault/ikv-secrets/internal/config"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/secretenv"
	"github.com/ironkeyvault/ikv-secrets/internal/secure"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
	"github.com/ironkeyvault/ikv-secrets/internal/vault"
)

// Options configures Open. The zero value resolves everything from the
// IKV_* environment and config.json, matching the CLI's precedence.
type Options struct {
	// Tenant overrides IKV_TENANT and the sole-configured-tenant fallback.
	Tenant string
	// VaultURL overrides IKV_VAULT_URL and the configured tenant URL.
	VaultURL string
	// Record is loaded eagerly by Open. Empty defers to the first
	// accessor call, which reads IKV_RECORD.
	Record string
	// Inject mirrors loaded variables into the process environment.
	Inject bool
	// ConfigPath overrides the default config.json location.
	ConfigPath string
	// CACertPath points at a PEM bundle for vaults behind a private CA.
	CACertPath string
	// InsecureSkipVerify disables TLS certificate verification for
	// self-hosted vaults with self-signed certificates.
	InsecureSkipVerify bool
	// Debug enables debug logging to stderr.
	Debug bool
}

// test seam; tests substitute a file-backed store so the OS keyring and
// the real home directory stay untouched.
var newTokenStore = tokenstore.New

// Secrets is a handle on one tenant's env records.
type Secrets struct {
	env    *secretenv.Env
	client *vault.Client
}

// Open builds a vault client for the resolved tenant and, when
// opts.Record is set, fetches that record immediately.
func Open(ctx context.Context, opts Options) (*Secrets, error) {
	cfg := &config.Config{Path: opts.ConfigPath}

	tenant, err := cfg.ResolveTenant(opts.Tenant)
	if err != nil {
		return nil, err
	}

	baseURL := opts.VaultURL
	if baseURL == "" {
		baseURL, err = cfg.TenantURL(tenant)
		if err != nil {
			return nil, err
		}
	}
	if baseURL == "" {
		return nil, ikverrors.UserError{
			Message:    "No vault URL configured for tenant '" + tenant + "'",
			Suggestion: ikverrors.LoginSuggestion(tenant),
		}
	}

	tokens, err := newTokenStore()
	if err != nil {
		return nil, err
	}

	client, err := vault.New(vault.Options{
		BaseURL:            baseURL,
		Tenant:             tenant,
		APIKey:             os.Getenv("IKV_API_KEY"),
		MasterKey:          os.Getenv("IKV_MASTER_KEY"),
		CACert:             opts.CACertPath,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		Tokens:             tokens,
		Logger:             logging.New(opts.Debug, true),
	})
	if err != nil {
		return nil, err
	}

	s := &Secrets{
		env:    secretenv.New(client),
		client: client,
	}

	if opts.Record != "" {
		if err := s.env.Load(ctx, opts.Record, opts.Inject); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load fetches a record, replacing any previously cached one.
func (s *Secrets) Load(ctx context.Context, record string, inject bool) error {
	return s.env.Load(ctx, record, inject)
}

// Get returns a variable's value. A missing key is an error naming the
// loaded record.
func (s *Secrets) Get(ctx context.Context, key string) (string, error) {
	return s.env.Get(ctx, key)
}

// Lookup returns a variable's value, or def when the key is absent.
func (s *Secrets) Lookup(ctx context.Context, key, def string) (string, error) {
	return s.env.Lookup(ctx, key, def)
}

// Has reports whether the loaded record defines a key.
func (s *Secrets) Has(ctx context.Context, key string) (bool, error) {
	return s.env.Has(ctx, key)
}

// Keys returns the loaded record's variable names, sorted.
func (s *Secrets) Keys(ctx context.Context) ([]string, error) {
	return s.env.Keys(ctx)
}

// Map returns a copy of the loaded record's variables.
func (s *Secrets) Map(ctx context.Context) (map[string]string, error) {
	return s.env.Map(ctx)
}

// Record returns the name of the loaded record, or "" before any load.
func (s *Secrets) Record() string {
	return s.env.Record()
}

// Tenant returns the tenant this handle is bound to.
func (s *Secrets) Tenant() string {
	return s.client.Tenant()
}

// Close drops the cached record and wipes the process's sealed buffers.
func (s *Secrets) Close() {
	s.env.Clear()
	secure.Purge()
}
