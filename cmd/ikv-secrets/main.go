package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironkeyvault/ikv-secrets/cmd/ikv-secrets/commands"
	"github.com/ironkeyvault/ikv-secrets/internal/config"
	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
	"github.com/ironkeyvault/ikv-secrets/internal/secure"
	"github.com/ironkeyvault/ikv-secrets/internal/tokenstore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	code := run()
	secure.Purge()
	os.Exit(code)
}

func run() int {
	// Global flags
	var (
		configFile string
		caCert     string
		noColor    bool
		debug      bool
		insecure   bool
	)

	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "ikv-secrets",
		Short: "IronKeyVault secrets client - env records for your shell and CI",
		Long: `ikv-secrets pulls env records from your IronKeyVault tenant and
exports them as environment variables, files, or a child process
environment.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize shared state with parsed flags
			app.Logger = logging.New(debug, noColor)
			app.Config = &config.Config{Path: configFile}
			app.CACert = caCert
			app.Insecure = insecure

			tokens, err := tokenstore.New()
			if err != nil {
				return err
			}
			app.Tokens = tokens
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default ~/.config/ikv-secrets/config.json)")
	rootCmd.PersistentFlags().StringVar(&caCert, "ca-cert", "", "PEM bundle for vaults behind a private CA")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (self-hosted vaults)")

	rootCmd.AddCommand(
		commands.NewLoginCommand(app),
		commands.NewLogoutCommand(app),
		commands.NewStatusCommand(app),
		commands.NewListCommand(app),
		commands.NewLoadCommand(app),
		commands.NewExportCommand(app),
		commands.NewRunCommand(app),
		commands.NewCompletionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		err = ikverrors.Simplify(err)
		// A child process already reported its own failure; only print
		// errors the user has not seen yet.
		var exitErr ikverrors.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return ikverrors.ExitCode(err)
	}
	return ikverrors.ExitOK
}
