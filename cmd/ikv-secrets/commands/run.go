package commands

import (
	"time"

	"github.com/spf13/cobra"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/execenv"
)

func NewRunCommand(app *App) *cobra.Command {
	var (
		tenant    string
		timeout   time.Duration
		printVars bool
	)

	cmd := &cobra.Command{
		Use:   "run <record> -- <command> [args...]",
		Short: "Run a command with an env record injected",
		Long: `Fetch an env record and run a command with its variables in the
environment. The child's exit code becomes this command's exit code.

Examples:
  ikv-secrets run prod-api -- npm start
  ikv-secrets run staging -- env | grep DATABASE_URL`,
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 1 || len(args) < 2 {
				return ikverrors.UserError{
					Message:    "expected a record and a command",
					Suggestion: "ikv-secrets run <record> -- <command> [args...]",
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			record := args[0]
			command := args[1:]

			client, err := app.client(tenant)
			if err != nil {
				return err
			}

			vars, err := client.FetchRecord(cmd.Context(), record)
			if err != nil {
				return err
			}

			executor := execenv.New(app.Logger)
			code, err := executor.Run(cmd.Context(), execenv.Options{
				Command:   command,
				Variables: vars,
				Timeout:   timeout,
				PrintVars: printVars,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return ikverrors.ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant name (env: IKV_TENANT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the command after this duration (e.g. 30s)")
	cmd.Flags().BoolVar(&printVars, "print-vars", false, "Log injected variable names (never values)")

	return cmd
}
