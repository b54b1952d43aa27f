package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ironkeyvault/ikv-secrets/internal/auth"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
)

func NewLoginCommand(app *App) *cobra.Command {
	var (
		tenant    string
		vaultURL  string
		apiKey    string
		masterKey string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to IronKeyVault",
		Long: `Authenticate to IronKeyVault and store the session token.

Without service-account credentials this opens your browser for the
normal login flow (including MFA). For CI/CD, pass an API key and
master password to use the non-interactive service-account flow.

Examples:
  ikv-secrets login --tenant acme
  ikv-secrets login --tenant acme --url https://vault.acme.example
  ikv-secrets login --tenant acme --api-key "$IKV_API_KEY" --master-key "$IKV_MASTER_KEY"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				tenant = os.Getenv("IKV_TENANT")
			}
			if tenant == "" {
				return ikverrors.UserError{
					Message:    "Tenant name is required",
					Suggestion: "Use --tenant <name> or set IKV_TENANT",
				}
			}
			if apiKey == "" {
				apiKey = os.Getenv("IKV_API_KEY")
			}
			if masterKey == "" {
				masterKey = os.Getenv("IKV_MASTER_KEY")
			}

			// Skip the whole flow when a valid token already exists.
			if !force {
				existing, err := app.Tokens.Get(tenant)
				if err == nil && existing != nil && !existing.Expired() {
					minutes := int(existing.ExpiresIn().Minutes())
					app.Logger.Info("Already logged in to '%s' (expires in %d minutes)", tenant, minutes)
					app.Logger.Info("Use --force to re-login")
					return nil
				}
			}

			// An API key without a master key gets a hidden prompt when
			// a human is attached; in CI that is a configuration error.
			if apiKey != "" && masterKey == "" {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return ikverrors.UserError{
						Message:    "Master key is required for service account login",
						Suggestion: "Pass --master-key or set IKV_MASTER_KEY",
					}
				}
				fmt.Fprint(os.Stderr, "Master password: ")
				entered, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return fmt.Errorf("failed to read master password: %w", err)
				}
				masterKey = string(entered)
			}

			flow := &auth.Flow{
				Config:             app.Config,
				Tokens:             app.Tokens,
				Logger:             app.Logger,
				InsecureSkipVerify: app.Insecure,
			}

			tok, err := flow.Login(cmd.Context(), auth.LoginOptions{
				Tenant:    tenant,
				VaultURL:  vaultURL,
				APIKey:    apiKey,
				MasterKey: masterKey,
				Force:     force,
			})
			if err != nil {
				return err
			}

			app.Logger.Info("Logged in to '%s' (expires in %d minutes)", tenant, int(tok.ExpiresIn().Minutes()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant name (required)")
	cmd.Flags().StringVarP(&vaultURL, "url", "u", "", "Vault URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Service account API key (env: IKV_API_KEY)")
	cmd.Flags().StringVar(&masterKey, "master-key", "", "Master password (env: IKV_MASTER_KEY)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force re-login even if already logged in")

	return cmd
}
