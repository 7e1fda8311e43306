package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"4d63.com/testcli"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingConfiguration(t *testing.T) {
	home := testcli.MkdirTemp(t)
	t.Setenv("HOME", home)

	exitCode, stdout, stderr := testcli.Main(t, []string{"resticapi"}, nil, Run)
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "", stdout)
	assert.Contains(t, stderr, "Configuration file not found at "+filepath.Join(home, ".config", "resticapi", "config.toml"))
}

func TestMalformedConfiguration(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	testcli.WriteFile(t, "config.toml", []byte("[repository\n"))

	exitCode, _, stderr := testcli.Main(t, []string{"resticapi", "--config", filepath.Join(dir, "config.toml")}, nil, Run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "failed to parse configuration file")
}

func TestIncompleteConfiguration(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	testcli.WriteFile(t, "config.toml", []byte("[repository]\npath = \"/srv/restic\"\n"))

	exitCode, _, stderr := testcli.Main(t, []string{"resticapi", "--config", filepath.Join(dir, "config.toml")}, nil, Run)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "missing required configuration: repository.password")
}

func TestVersion(t *testing.T) {
	exitCode, stdout, _ := testcli.Main(t, []string{"resticapi", "--version"}, nil, Run)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout, "resticapi version develop")
}

func TestConfigureLoggingWritesJSONFile(t *testing.T) {
	t.Cleanup(func() {
		log.SetHandler(cli.New(os.Stderr))
		log.SetLevel(log.InfoLevel)
	})

	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	require.NoError(t, configureLogging(&console, dir, true))

	log.WithField("subcommand", "forget").Debug("restic invocation finished")

	b, err := os.ReadFile(filepath.Join(dir, "resticapi.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)

	var entry struct {
		Fields  map[string]interface{} `json:"fields"`
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "debug", entry.Level)
	assert.Equal(t, "restic invocation finished", entry.Message)
	assert.Equal(t, "forget", entry.Fields["subcommand"])

	assert.Contains(t, console.String(), "restic invocation finished")
}

func TestConfigureLoggingConsoleOnly(t *testing.T) {
	t.Cleanup(func() {
		log.SetHandler(cli.New(os.Stderr))
		log.SetLevel(log.InfoLevel)
	})

	var console bytes.Buffer
	require.NoError(t, configureLogging(&console, "", false))

	log.Debug("hidden")
	log.Info("visible")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "visible")
}
