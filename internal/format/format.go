// Package format serializes a resolved record (a flat string-to-string
// map) into the supported export syntaxes. Output is deterministic:
// entries are emitted in sorted key order.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names an export syntax.
type Format string

const (
	// FormatDotenv is the .env file syntax: KEY="value" (default).
	FormatDotenv Format = "dotenv"
	// FormatShell emits export lines for eval in a POSIX shell.
	FormatShell Format = "shell"
	// FormatDocker is the docker --env-file syntax: KEY=value, unquoted.
	FormatDocker Format = "docker"
	// FormatJSON is an indented JSON object.
	FormatJSON Format = "json"
	// FormatYAML is a YAML mapping.
	FormatYAML Format = "yaml"
)

// Exporter serializes variables into one format.
type Exporter interface {
	Export(vars map[string]string) (string, error)
}

// Get returns the exporter for a format name.
func Get(f Format) (Exporter, error) {
	switch f {
	case FormatDotenv, "":
		return dotenvExporter{}, nil
	case FormatShell:
		return shellExporter{}, nil
	case FormatDocker:
		return dockerExporter{}, nil
	case FormatJSON:
		return jsonExporter{}, nil
	case FormatYAML:
		return yamlExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q (expected one of: %s)",
			f, strings.Join(Names(), ", "))
	}
}

// Names lists the supported format names for flag help and errors.
func Names() []string {
	return []string{
		string(FormatDotenv),
		string(FormatShell),
		string(FormatDocker),
		string(FormatJSON),
		string(FormatYAML),
	}
}

func sortedKeys(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type dotenvExporter struct{}

func (dotenvExporter) Export(vars map[string]string) (string, error) {
	var b strings.Builder
	for _, k := range sortedKeys(vars) {
		escaped := strings.ReplaceAll(vars[k], `"`, `\"`)
		fmt.Fprintf(&b, "%s=\"%s\"\n", k, escaped)
	}
	return b.String(), nil
}

type shellExporter struct{}

func (shellExporter) Export(vars map[string]string) (string, error) {
	var b strings.Builder
	for _, k := range sortedKeys(vars) {
		// POSIX single-quote escaping: close, emit a quoted quote, reopen.
		escaped := strings.ReplaceAll(vars[k], `'`, `'"'"'`)
		fmt.Fprintf(&b, "export %s='%s'\n", k, escaped)
	}
	return b.String(), nil
}

type dockerExporter struct{}

func (dockerExporter) Export(vars map[string]string) (string, error) {
	var b strings.Builder
	for _, k := range sortedKeys(vars) {
		fmt.Fprintf(&b, "%s=%s\n", k, vars[k])
	}
	return b.String(), nil
}

type jsonExporter struct{}

func (jsonExporter) Export(vars map[string]string) (string, error) {
	data, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

type yamlExporter struct{}

func (yamlExporter) Export(vars map[string]string) (string, error) {
	data, err := yaml.Marshal(vars)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
