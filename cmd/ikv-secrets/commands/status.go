package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatusCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  `Show the login state of every configured tenant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := app.Config.Tenants()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(tenants) == 0 {
				fmt.Fprintln(out, "No tenants configured. Run 'ikv-secrets login --tenant <name>' first.")
				return nil
			}

			for _, name := range tenants {
				settings, _ := app.Config.Tenant(name)
				url := settings.URL
				if url == "" {
					url = "unknown"
				}

				tok, err := app.Tokens.Get(name)
				switch {
				case err == nil && tok != nil && !tok.Expired():
					minutes := int(tok.ExpiresIn().Minutes())
					fmt.Fprintf(out, "✓ %s: logged in (expires in %dm) - %s\n", name, minutes, url)
				case err == nil && tok != nil:
					fmt.Fprintf(out, "✗ %s: token expired - %s\n", name, url)
				default:
					fmt.Fprintf(out, "○ %s: not logged in - %s\n", name, url)
				}
			}
			return nil
		},
	}

	return cmd
}
