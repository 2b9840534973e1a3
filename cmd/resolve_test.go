package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagsYAML = `
flags:
  theme:
    - appId: com.example.browser
      stringValue: dark
    - stringValue: light
  incognito:
    - {}
    - boolValue: false
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resolveAppID, resolveFlag = "", ""

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFlags(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte(flagsYAML), 0o600))
	return path
}

func TestResolveCommand(t *testing.T) {
	path := writeFlags(t)

	out, err := run(t, "resolve", "--file", path, "--app-id", "com.example.browser")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"theme": {"type": "STRING", "value": "dark"},
		"incognito": {"type": "BOOL", "value": false}
	}`, out)
}

func TestResolveCommand_SingleFlag(t *testing.T) {
	path := writeFlags(t)

	out, err := run(t, "resolve", "-f", path, "-a", "other.app", "--flag", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "STRING", "value": "light"}`, out)

	_, err = run(t, "resolve", "-f", path, "--flag", "missing")
	assert.Error(t, err)
}

func TestResolveCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flags": {"f": [{"boolValue": 1}]}}`), 0o600))

	_, err := run(t, "resolve", "-f", path)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abc123", "today"
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "appflagd 1.2.3 (abc123), built today\n", out)
}
