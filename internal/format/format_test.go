package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDotenvExport(t *testing.T) {
	exporter, err := Get(FormatDotenv)
	require.NoError(t, err)

	out, err := exporter.Export(map[string]string{
		"DATABASE_URL": "postgres://localhost/db",
		"API_KEY":      `with "quotes" inside`,
	})
	require.NoError(t, err)

	// Sorted keys, inner double quotes escaped
	assert.Equal(t, "API_KEY=\"with \\\"quotes\\\" inside\"\nDATABASE_URL=\"postgres://localhost/db\"\n", out)
}

func TestShellExport(t *testing.T) {
	exporter, err := Get(FormatShell)
	require.NoError(t, err)

	out, err := exporter.Export(map[string]string{
		"MESSAGE": "it's alive",
	})
	require.NoError(t, err)

	assert.Equal(t, `export MESSAGE='it'"'"'s alive'`+"\n", out)
}

func TestDockerExport(t *testing.T) {
	exporter, err := Get(FormatDocker)
	require.NoError(t, err)

	out, err := exporter.Export(map[string]string{
		"B_KEY": "two",
		"A_KEY": "one",
	})
	require.NoError(t, err)

	assert.Equal(t, "A_KEY=one\nB_KEY=two\n", out)
}

func TestJSONExport(t *testing.T) {
	exporter, err := Get(FormatJSON)
	require.NoError(t, err)

	vars := map[string]string{"KEY": "value", "OTHER": "thing"}
	out, err := exporter.Export(vars)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, vars, decoded)
}

func TestYAMLExport(t *testing.T) {
	exporter, err := Get(FormatYAML)
	require.NoError(t, err)

	vars := map[string]string{"KEY": "value", "MULTI": "line one\nline two"}
	out, err := exporter.Export(vars)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, vars, decoded)
}

func TestDefaultFormatIsDotenv(t *testing.T) {
	exporter, err := Get("")
	require.NoError(t, err)

	out, err := exporter.Export(map[string]string{"K": "v"})
	require.NoError(t, err)
	assert.Equal(t, "K=\"v\"\n", out)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Get("toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
	assert.Contains(t, err.Error(), "dotenv")
}

func TestEmptyVars(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			exporter, err := Get(Format(name))
			require.NoError(t, err)

			out, err := exporter.Export(map[string]string{})
			require.NoError(t, err)
			assert.NotNil(t, out)
		})
	}
}

func TestShellExportRoundTripsThroughEval(t *testing.T) {
	// The escaping must survive values with every shell metacharacter
	// we reasonably expect in secrets.
	exporter, err := Get(FormatShell)
	require.NoError(t, err)

	out, err := exporter.Export(map[string]string{
		"PASSWORD": `p@$s'w"o;rd` + "`cmd`",
	})
	require.NoError(t, err)

	// Single-quoted segments contain no unescaped single quotes
	assert.Contains(t, out, `export PASSWORD='p@$s'"'"'w"o;rd`+"`cmd`'\n")
}
