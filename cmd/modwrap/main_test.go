package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/modwrap/internal/config"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/a.js":  "var b = require('./b');\n",
		"src/b.js":  "module.exports = 1;\n",
		"src/x.css": "p {}\n",
	})

	out, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"build", "src/a.js", "src/*.css", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)

	a, err := os.ReadFile(filepath.Join(dir, "dist", "src", "a.js"))
	require.NoError(t, err)
	assert.Contains(t, string(a), `define("a", ["b"]`)
	assert.Contains(t, string(a), `define("b", []`)

	css, err := os.ReadFile(filepath.Join(dir, "dist", "src", "x.css.js"))
	require.NoError(t, err)
	assert.Contains(t, string(css), `define("css-loader", []`, "the loader is combined into the stylesheet")
}

func TestBuildCommand_DryRunPlain(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/a.js": "exports.x = 1;\n"})

	out, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"build", "src/a.js", "--dry-run", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "MODWRAP BUILD REPORT")

	_, err = os.Stat(filepath.Join(dir, "dist"))
	assert.True(t, os.IsNotExist(err), "dry run must not write outputs")
}

func TestBuildCommand_FailedEntry(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/data.json": "{broken"})

	_, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"build", "src/data.json", "--plain")
	assert.True(t, errors.Is(err, errFailed), "got %v", err)
}

func TestBuildCommand_NoMatches(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/a.js": ""})

	_, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error", "build", "src/*.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entries")
}

func TestBuildCommand_MissingBase(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/a.js": ""})

	_, err := execute(t, "--root", dir, "--log-level", "error", "build", "src/a.js")
	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "base", cfgErr.Field)
}

func TestGraphCommand(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/a.js": "require('./b');\nrequire('./c');\n",
		"src/b.js": "require('./c');\n",
		"src/c.js": "",
	})

	out, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"graph", "src/a.js", "--format", "mermaid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph LR\n"), out)
	assert.Contains(t, out, "a --> b")

	out, err = execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"graph", "src/a.js", "--dependents", "c")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)

	_, err = execute(t, "--root", dir, "--base", "src", "--log-level", "error",
		"graph", "src/a.js", "--format", "svg")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "modwrap dev\n", out)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"defaults", config.LogConfig{}, false},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}, false},
		{"logfmt", config.LogConfig{Level: "warn", Format: "logfmt"}, false},
		{"bad level", config.LogConfig{Level: "loud"}, true},
		{"bad format", config.LogConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"modwrap.yaml": "root: /elsewhere\nbase: lib\nindent: 4\n",
	})

	cfg, err := loadConfig(&globalFlags{
		configPath: filepath.Join(dir, "modwrap.yaml"),
		root:       dir,
		base:       "src",
	})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "src", cfg.Base)
	assert.Equal(t, 4, cfg.Indent)
}

func TestBuildCommand_AuditLog(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/a.js": "require('./gone');\n"})
	auditPath := filepath.Join(dir, "audit.jsonl")

	_, err := execute(t, "--root", dir, "--base", "src", "--log-level", "error", "--audit", auditPath,
		"build", "src/a.js", "--json")
	require.NoError(t, err)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	var types []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		types = append(types, event["event_type"].(string))
	}
	assert.Equal(t, []string{"build.start", "warning", "file.write", "build.end"}, types)
}
