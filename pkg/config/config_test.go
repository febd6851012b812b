package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessionsPerCookie = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AccountTaskInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PadtxtLength = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PadtxtLength = 8
	cfg.PadTokens = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ClaudeAPIBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ClaudeWebBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DataFolder = ""
	assert.Error(t, cfg.Validate())
}

func TestNoFilesystemModeAllowsEmptyDataFolder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoFilesystemMode = true
	cfg.DataFolder = ""
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "", cfg.AccountsFilePath())
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.json")

	cfg, from, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, target, from)
	assert.FileExists(t, target)
	assert.Equal(t, DefaultConfig().MaxSessionsPerCookie, cfg.MaxSessionsPerCookie)
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"max_sessions_per_cookie": 5, "claude_api_baseurl": "https://example.test"}`), 0o644))

	cfg, from, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, target, from)
	assert.Equal(t, 5, cfg.MaxSessionsPerCookie)
	assert.Equal(t, "https://example.test", cfg.ClaudeAPIBaseURL)
}

func TestEnvOverrideWins(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"max_sessions_per_cookie": 5}`), 0o644))

	t.Setenv("CWPROXY_MAX_SESSIONS_PER_COOKIE", "9")
	cfg, _, err := Load(target)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxSessionsPerCookie)
}
