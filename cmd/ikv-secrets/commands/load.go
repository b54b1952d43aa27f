package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironkeyvault/ikv-secrets/internal/format"
)

func NewLoadCommand(app *App) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "load <record>",
		Short: "Print export lines for an env record",
		Long: `Fetch an env record and print shell export lines for eval.

Examples:
  eval "$(ikv-secrets load prod-api)"
  eval "$(ikv-secrets load staging --tenant acme)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record := args[0]

			client, err := app.client(tenant)
			if err != nil {
				return err
			}

			vars, err := client.FetchRecord(cmd.Context(), record)
			if err != nil {
				return err
			}

			exporter, _ := format.Get(format.FormatShell)
			out, err := exporter.Export(vars)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), out)
			app.Logger.Debug("loaded %d variables from '%s'", len(vars), record)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant name (env: IKV_TENANT)")

	return cmd
}
