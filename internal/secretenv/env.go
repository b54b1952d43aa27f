// Package secretenv exposes a fetched env record through a memoizing
// accessor. The first access triggers a single network fetch; after
// that, reads come from a sealed in-memory copy. This is the SDK
// surface applications embed instead of shelling out to the CLI.
package secretenv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	ikverrors "github.com/ironkeyvault/ikv-secrets/internal/errors"
	"github.com/ironkeyvault/ikv-secrets/internal/secure"
)

// Fetcher is the part of the vault client secretenv needs.
type Fetcher interface {
	FetchRecord(ctx context.Context, record string) (map[string]string, error)
}

// Env lazily loads one env record and caches it sealed in memory.
type Env struct {
	mu      sync.Mutex
	fetcher Fetcher
	buf     *secure.Buffer
	record  string
	keys    []string
	loaded  bool
}

// New creates an Env backed by the given vault client.
func New(fetcher Fetcher) *Env {
	return &Env{fetcher: fetcher}
}

// Load fetches a record and seals its variables. With inject=true the
// variables are also written into the process environment, for code
// that reads os.Getenv directly.
func (e *Env) Load(ctx context.Context, record string, inject bool) error {
	vars, err := e.fetcher.FetchRecord(ctx, record)
	if err != nil {
		return err
	}

	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.mu.Lock()
	if e.buf != nil {
		e.buf.Destroy()
	}
	e.buf = secure.Seal(data)
	e.record = record
	e.keys = keys
	e.loaded = true
	e.mu.Unlock()

	if inject {
		for k, v := range vars {
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("failed to set %s: %w", k, err)
			}
		}
	}
	return nil
}

// ensureLoaded triggers the lazy fetch on first access. The record name
// comes from IKV_RECORD when Load was never called explicitly.
func (e *Env) ensureLoaded(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return nil
	}

	record := os.Getenv("IKV_RECORD")
	if record == "" {
		return ikverrors.UserError{
			Message:    "No env record loaded",
			Suggestion: "Call Load with a record name or set IKV_RECORD",
		}
	}
	return e.Load(ctx, record, false)
}

// open unmarshals the sealed variables for the duration of f.
func (e *Env) open(f func(vars map[string]string) error) error {
	e.mu.Lock()
	buf := e.buf
	e.mu.Unlock()

	if buf == nil {
		return f(map[string]string{})
	}

	return buf.With(func(data []byte) error {
		vars := map[string]string{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &vars); err != nil {
				return fmt.Errorf("sealed record is corrupt: %w", err)
			}
		}
		return f(vars)
	})
}

// Get returns a variable's value. Missing keys are an error listing
// what is available.
func (e *Env) Get(ctx context.Context, key string) (string, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return "", err
	}

	var value string
	found := false
	err := e.open(func(vars map[string]string) error {
		value, found = vars[key]
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ikverrors.UserError{
			Message:    fmt.Sprintf("Environment variable '%s' not found in record '%s'", key, e.Record()),
			Suggestion: "Check available names with Keys()",
		}
	}
	return value, nil
}

// Lookup returns a variable's value, or the default when absent.
func (e *Env) Lookup(ctx context.Context, key, def string) (string, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return "", err
	}

	value := def
	err := e.open(func(vars map[string]string) error {
		if v, ok := vars[key]; ok {
			value = v
		}
		return nil
	})
	return value, err
}

// Has reports whether the record contains a variable.
func (e *Env) Has(ctx context.Context, key string) (bool, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}

	found := false
	err := e.open(func(vars map[string]string) error {
		_, found = vars[key]
		return nil
	})
	return found, err
}

// Keys returns the variable names of the loaded record, sorted. Names
// are not treated as secret; values are.
func (e *Env) Keys(ctx context.Context) ([]string, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...), nil
}

// Map returns a plain copy of all variables. The caller owns the copy
// and is responsible for not leaking it.
func (e *Env) Map(ctx context.Context) (map[string]string, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := map[string]string{}
	err := e.open(func(vars map[string]string) error {
		for k, v := range vars {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// Record returns the name of the loaded record, if any.
func (e *Env) Record() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// Clear destroys the sealed cache. The next access fetches again.
func (e *Env) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buf != nil {
		e.buf.Destroy()
		e.buf = nil
	}
	e.record = ""
	e.keys = nil
	e.loaded = false
}
