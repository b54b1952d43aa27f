package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/format"
)

func NewExportCommand(app *App) *cobra.Command {
	var (
		tenant     string
		formatName string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export <record>",
		Short: "Export an env record to a file or stdout",
		Long: fmt.Sprintf(`Fetch an env record and serialize it in the chosen format.

Supported formats: %s

Examples:
  ikv-secrets export prod-api > .env
  ikv-secrets export prod-api --format json
  ikv-secrets export prod-api --format docker --out prod.env`,
			strings.Join(format.Names(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record := args[0]

			exporter, err := format.Get(format.Format(formatName))
			if err != nil {
				return ikverrors.UserError{
					Message:    err.Error(),
					Suggestion: "use --format with one of: " + strings.Join(format.Names(), ", "),
				}
			}

			client, err := app.client(tenant)
			if err != nil {
				return err
			}

			vars, err := client.FetchRecord(cmd.Context(), record)
			if err != nil {
				return err
			}

			out, err := exporter.Export(vars)
			if err != nil {
				return err
			}

			if outPath != "" {
				// Exported files hold plaintext secrets, keep them owner-only.
				if err := os.WriteFile(outPath, []byte(out), 0600); err != nil {
					return ikverrors.UserError{
						Message: fmt.Sprintf("cannot write '%s'", outPath),
						Details: err.Error(),
					}
				}
				app.Logger.Info("Exported %d variables from '%s' to %s", len(vars), record, outPath)
				return nil
			}

			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant name (env: IKV_TENANT)")
	cmd.Flags().StringVarP(&formatName, "format", "f", "dotenv",
		"Output format: "+strings.Join(format.Names(), ", "))
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout (mode 0600)")

	return cmd
}
