package commands

import (
	"os"

	"github.com/ironkeyvault/ikv-secrets/internal/config"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
	"github.com/ironkeyvault/ikv-secrets/internal/vault"
)

// App bundles the shared state every command needs. main() fills it in
// during PersistentPreRun once the global flags are parsed.
type App struct {
	Config   *config.Config
	Tokens   *tokenstore.Store
	Logger   *logging.Logger
	CACert   string
	Insecure bool
}

// client builds a vault client for the effective tenant, resolving the
// tenant name and URL the way every record-reading command does.
func (app *App) client(tenantFlag string) (*vault.Client, error) {
	tenant, err := app.Config.ResolveTenant(tenantFlag)
	if err != nil {
		return nil, err
	}

	url, err := app.Config.TenantURL(tenant)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, ikverrors.UserError{
			Message:    "No vault URL configured for tenant '" + tenant + "'",
			Suggestion: ikverrors.LoginSuggestion(tenant),
		}
	}

	return vault.New(vault.Options{
		BaseURL:            url,
		Tenant:             tenant,
		APIKey:             os.Getenv("IKV_API_KEY"),
		MasterKey:          os.Getenv("IKV_MASTER_KEY"),
		CACert:             app.CACert,
		InsecureSkipVerify: app.Insecure,
		Tokens:             app.Tokens,
		Logger:             app.Logger,
	})
}
