// Package config manages the tenant configuration file at
// ~/.config/ikv-secrets/config.json. The file records which tenants the
// user has logged in to and the vault URL for each, so later commands
// can resolve a tenant name to its vault without flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
)

// DefaultVaultURL is used for local development when a tenant has no
// configured URL.
const DefaultVaultURL = "https://localhost:5001"

const (
	configDirName  = "ikv-secrets"
	configFileName = "config.json"
)

// Tenant holds per-tenant settings.
type Tenant struct {
	URL           string `json:"url"`
	DefaultRecord string `json:"default_record,omitempty"`
}

// Document is the on-disk config.json structure.
type Document struct {
	Tenants map[string]Tenant `json:"tenants"`
}

// Config provides access to the tenant configuration file.
type Config struct {
	// Path overrides the default config file location (--config flag, tests).
	Path string

	doc *Document
}

// Dir returns the configuration directory, creating it (0700) if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", configDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

func (c *Config) path() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads config.json. A missing file yields an empty configuration;
// a malformed or schema-invalid file is an error.
func (c *Config) Load() error {
	path, err := c.path()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.doc = &Document{Tenants: map[string]Tenant{}}
			return nil
		}
		return ikverrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check permissions on " + path,
			Err:        err,
		}
	}

	if err := validateDocument(data); err != nil {
		return ikverrors.ConfigError{
			Field:      "config.json",
			Message:    err.Error(),
			Suggestion: "Fix " + path + " or delete it and log in again",
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return ikverrors.ConfigError{
			Field:      "config.json",
			Message:    "invalid JSON: " + err.Error(),
			Suggestion: "Fix " + path + " or delete it and log in again",
		}
	}
	if doc.Tenants == nil {
		doc.Tenants = map[string]Tenant{}
	}

	c.doc = &doc
	return nil
}

// Save writes the configuration with owner-only permissions.
func (c *Config) Save() error {
	if c.doc == nil {
		c.doc = &Document{Tenants: map[string]Tenant{}}
	}

	path, err := c.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	data = append(data, '\n')

	// Write-then-rename so a crash never leaves a truncated config behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// SaveTenant records a tenant's vault URL (and optional default record)
// and persists the config. Called after every successful login.
func (c *Config) SaveTenant(name, vaultURL, defaultRecord string) error {
	if c.doc == nil {
		if err := c.Load(); err != nil {
			return err
		}
	}

	t := Tenant{URL: strings.TrimSuffix(vaultURL, "/")}
	if defaultRecord != "" {
		t.DefaultRecord = defaultRecord
	} else if existing, ok := c.doc.Tenants[name]; ok {
		t.DefaultRecord = existing.DefaultRecord
	}
	c.doc.Tenants[name] = t

	return c.Save()
}

// TenantURL resolves the vault URL for a tenant. Precedence: IKV_VAULT_URL
// environment variable, then config.json, then empty.
func (c *Config) TenantURL(name string) (string, error) {
	if url := os.Getenv("IKV_VAULT_URL"); url != "" {
		return strings.TrimSuffix(url, "/"), nil
	}

	if c.doc == nil {
		if err := c.Load(); err != nil {
			return "", err
		}
	}

	t, ok := c.doc.Tenants[name]
	if !ok || t.URL == "" {
		return "", nil
	}
	return strings.TrimSuffix(t.URL, "/"), nil
}

// Tenant returns the stored settings for a tenant.
func (c *Config) Tenant(name string) (Tenant, bool) {
	if c.doc == nil {
		if err := c.Load(); err != nil {
			return Tenant{}, false
		}
	}
	t, ok := c.doc.Tenants[name]
	return t, ok
}

// Tenants returns all configured tenant names, sorted.
func (c *Config) Tenants() ([]string, error) {
	if c.doc == nil {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(c.doc.Tenants))
	for name := range c.doc.Tenants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ResolveTenant picks the effective tenant name: the explicit flag value,
// then IKV_TENANT, then the sole configured tenant.
func (c *Config) ResolveTenant(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("IKV_TENANT"); env != "" {
		return env, nil
	}

	names, err := c.Tenants()
	if err != nil {
		return "", err
	}
	if len(names) == 1 {
		return names[0], nil
	}

	return "", ikverrors.UserError{
		Message:    "Tenant name is required",
		Suggestion: "Use --tenant <name> or set IKV_TENANT",
	}
}
