package commands

import (
	"github.com/spf13/cobra"

	"github.com/ironkeyvault/ikv-secrets/internal/auth"
)

func NewLogoutCommand(app *App) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		Long: `Delete stored session tokens.

Without --tenant, tokens for every configured tenant are removed.

Examples:
  ikv-secrets logout --tenant acme
  ikv-secrets logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flow := &auth.Flow{
				Config: app.Config,
				Tokens: app.Tokens,
				Logger: app.Logger,
			}

			if err := flow.Logout(tenant); err != nil {
				return err
			}

			if tenant != "" {
				app.Logger.Info("Logged out from '%s'", tenant)
			} else {
				app.Logger.Info("Logged out from all tenants")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant to logout from (all if not specified)")

	return cmd
}
