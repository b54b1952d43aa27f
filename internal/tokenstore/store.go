// Package tokenstore persists login tokens per tenant. Tokens live in the
// OS keyring where one is available; headless machines (CI, servers, SSH
// sessions without a secret service) fall back to an owner-only
// tokens.json under ~/.config/ikv-secrets.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name under which tokens are stored in
// the OS keyring; the account name is the tenant.
const KeyringService = "ikv-secrets"

const tokensFileName = "tokens.json"

// ErrNotFound is returned by Keyring implementations when no entry
// exists for the requested account.
var ErrNotFound = errors.New("token not found")

// Keyring abstracts the OS keyring so tests can substitute a fake.
type Keyring interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// systemKeyring adapts zalando/go-keyring to the Keyring interface.
type systemKeyring struct{}

func (systemKeyring) Get(service, account string) (string, error) {
	v, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (systemKeyring) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (systemKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Store reads and writes per-tenant tokens.
type Store struct {
	ring     Keyring
	filePath string

	probeOnce sync.Once
	useFile   bool
}

// New creates a store backed by the OS keyring with the default file
// fallback location.
func New() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return &Store{
		ring:     systemKeyring{},
		filePath: filepath.Join(home, ".config", "ikv-secrets", tokensFileName),
	}, nil
}

// NewWithBackend creates a store with an explicit keyring and fallback
// file path. Used by tests.
func NewWithBackend(ring Keyring, filePath string) *Store {
	return &Store{ring: ring, filePath: filePath}
}

// fileFallback probes the keyring once and remembers whether it works.
func (s *Store) fileFallback() bool {
	s.probeOnce.Do(func() {
		if s.ring == nil {
			s.useFile = true
			return
		}
		_, err := s.ring.Get(KeyringService, "__probe__")
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.useFile = true
		}
	})
	return s.useFile
}

// Get returns the stored token for a tenant, or nil when none exists.
func (s *Store) Get(tenant string) (*Token, error) {
	var raw string

	if s.fileFallback() {
		tokens, err := s.loadFile()
		if err != nil {
			return nil, err
		}
		tok, ok := tokens[tenant]
		if !ok {
			return nil, nil
		}
		return &tok, nil
	}

	raw, err := s.ring.Get(KeyringService, tenant)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring read failed: %w", err)
	}

	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		// An unreadable entry is as good as no entry.
		return nil, nil
	}
	return &tok, nil
}

// Put stores a token for a tenant.
func (s *Store) Put(tenant string, tok Token) error {
	if s.fileFallback() {
		tokens, err := s.loadFile()
		if err != nil {
			return err
		}
		tokens[tenant] = tok
		return s.saveFile(tokens)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.ring.Set(KeyringService, tenant, string(data)); err != nil {
		return fmt.Errorf("keyring write failed: %w", err)
	}
	return nil
}

// Delete removes a tenant's token. Deleting a missing token is not an error.
func (s *Store) Delete(tenant string) error {
	if s.fileFallback() {
		tokens, err := s.loadFile()
		if err != nil {
			return err
		}
		if _, ok := tokens[tenant]; !ok {
			return nil
		}
		delete(tokens, tenant)
		return s.saveFile(tokens)
	}

	err := s.ring.Delete(KeyringService, tenant)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("keyring delete failed: %w", err)
	}
	return nil
}

// loadFile reads tokens.json. Missing or corrupt files yield an empty map
// so a damaged fallback file never locks the user out of re-login.
func (s *Store) loadFile() (map[string]Token, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Token{}, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokens map[string]Token
	if err := json.Unmarshal(data, &tokens); err != nil || tokens == nil {
		return map[string]Token{}, nil
	}
	return tokens, nil
}

func (s *Store) saveFile(tokens map[string]Token) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	// WriteFile perm is masked by umask on existing files; enforce it.
	return os.Chmod(s.filePath, 0o600)
}
