// Package execenv runs a child command with a fetched record's
// variables layered over the inherited environment. Secrets reach the
// child process without ever touching disk.
package execenv

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/logging"
)

// Executor launches commands with ephemeral environment variables.
type Executor struct {
	logger *logging.Logger
}

// New creates an executor.
func New(logger *logging.Logger) *Executor {
	return &Executor{logger: logger}
}

// Options configures one run.
type Options struct {
	Command    []string          // command and arguments
	Variables  map[string]string // record variables to inject
	WorkingDir string
	Timeout    time.Duration // zero means no timeout
	PrintVars  bool          // log injected names (never values)
}

// Run executes the command and returns its exit code. A non-zero child
// exit is not an error; failures to start the command are.
func (e *Executor) Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return 0, ikverrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., ikv-secrets run prod-api -- npm start)",
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	name := opts.Command[0]
	if _, err := exec.LookPath(name); err != nil {
		return 0, ikverrors.UserError{
			Message:    "Command not found: " + name,
			Suggestion: "Make sure '" + name + "' is installed and in your PATH",
			Err:        err,
		}
	}

	if opts.PrintVars {
		names := make([]string, 0, len(opts.Variables))
		for k := range opts.Variables {
			names = append(names, k)
		}
		sort.Strings(names)
		e.logger.Info("Injecting %d variables: %s", len(names), strings.Join(names, ", "))
	}

	cmd := exec.CommandContext(ctx, name, opts.Command[1:]...)
	cmd.Env = mergeEnv(os.Environ(), opts.Variables)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}

	e.logger.Debug("executing: %s", strings.Join(opts.Command, " "))

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return 0, ikverrors.UserError{
			Message:    "Command timed out",
			Suggestion: "Increase --timeout or investigate the command",
			Err:        err,
		}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		// Preserve the child's exit code for the caller to report.
		return exitErr.ExitCode(), nil
	}

	return 0, ikverrors.UserError{
		Message: "Failed to run command",
		Details: err.Error(),
		Err:     err,
	}
}

// mergeEnv overlays record variables on the inherited environment.
// Record values win over inherited ones of the same name.
func mergeEnv(inherited []string, vars map[string]string) []string {
	merged := make(map[string]string, len(inherited)+len(vars))

	for _, entry := range inherited {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) == 2 {
			merged[parts[0]] = parts[1]
		}
	}
	for k, v := range vars {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
