package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes reported by the CLI. Success is 0; everything else maps an
// error category to a stable code so scripts and CI pipelines can branch
// on the failure class.
const (
	ExitOK       = 0
	ExitGeneral  = 1
	ExitAuth     = 2
	ExitTier     = 3
	ExitNotFound = 4
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// AuthError indicates a failed or missing authentication: no stored token,
// an expired token, rejected service-account credentials, or a 401 from
// the vault.
type AuthError struct {
	Tenant     string
	Message    string
	Suggestion string
	Err        error
}

func (e AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "authentication failed"
	}
	if e.Tenant != "" {
		msg = fmt.Sprintf("%s (tenant '%s')", msg, e.Tenant)
	}
	if e.Suggestion != "" {
		msg += "\n  💡 Try: " + e.Suggestion
	}
	return msg
}

func (e AuthError) Unwrap() error {
	return e.Err
}

// LoginSuggestion builds the canonical re-login hint for a tenant.
func LoginSuggestion(tenant string) string {
	if tenant == "" {
		return "ikv-secrets login --tenant <name>"
	}
	return fmt.Sprintf("ikv-secrets login --tenant %s", tenant)
}

// TierError indicates the vault rejected an operation because the tenant's
// subscription tier does not include it.
type TierError struct {
	Message      string
	RequiredTier string
	CurrentTier  string
}

func (e TierError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "feature requires a higher tier"
	}
	if e.RequiredTier != "" {
		msg += fmt.Sprintf(" (requires %s, you have %s)", e.RequiredTier, e.CurrentTier)
	}
	return msg
}

// NotFoundError indicates the named record does not exist in the vault.
type NotFoundError struct {
	Record string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("env record '%s' not found", e.Record)
}

// ExitError carries an explicit exit code, used when a child process
// run by the CLI exits non-zero and its code must be preserved.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error chain to the CLI exit code for its category.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var exitErrPtr *ExitError
	if errors.As(err, &exitErrPtr) {
		return exitErrPtr.Code
	}

	var authErr AuthError
	if errors.As(err, &authErr) {
		return ExitAuth
	}
	var tierErr TierError
	if errors.As(err, &tierErr) {
		return ExitTier
	}
	var nfErr NotFoundError
	if errors.As(err, &nfErr) {
		return ExitNotFound
	}

	return ExitGeneral
}

// IsRetryable reports whether an error looks like a transient network
// failure that may succeed on retry. Vault API rejections (4xx) are
// never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var authErr AuthError
	var tierErr TierError
	var nfErr NotFoundError
	if errors.As(err, &authErr) || errors.As(err, &tierErr) || errors.As(err, &nfErr) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"connection refused",
		"broken pipe",
		"rate limit",
		"too many requests",
		"service unavailable",
		"bad gateway",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Simplify converts low-level error text into user-friendly errors where
// a common cause is recognizable. Unrecognized errors pass through.
func Simplify(err error) error {
	if err == nil {
		return nil
	}

	switch err.(type) {
	case UserError, ConfigError, AuthError, TierError, NotFoundError:
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return UserError{
			Message:    "Cannot connect to the vault",
			Suggestion: "Check the vault URL and your network connection",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions on ~/.config/ikv-secrets",
			Err:        err,
		}
	}

	return err
}
