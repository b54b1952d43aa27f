package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewListCommand(app *App) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available env records",
		Long: `List the env records the tenant can fetch.

Examples:
  ikv-secrets list
  ikv-secrets list --tenant acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.client(tenant)
			if err != nil {
				return err
			}

			records, err := client.ListRecords(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(records) == 0 {
				fmt.Fprintln(out, "No env records found.")
				return nil
			}

			for _, record := range records {
				fmt.Fprintf(out, "  %6s  %s\n", record.ID, record.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant name (env: IKV_TENANT)")

	return cmd
}
