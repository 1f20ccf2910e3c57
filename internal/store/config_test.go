package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[store]
base_label = "custom-object"

[store.reactions]
processed = "heart"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-object", cfg.Store.BaseLabel)
	assert.Equal(t, "heart", cfg.Store.Reactions.Processed)
	// Unset fields keep their packaged defaults.
	assert.Equal(t, "UID:", cfg.Store.UIDPrefix)
	assert.Equal(t, 3, cfg.Store.Retries.MaxAttempts)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

func TestResolveConfigPathExplicitMissingErrors(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestResolveConfigPathExplicitExistingWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\n"), 0o644))

	got, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestResolveConfigPathNoneGivenAndNoDefaultIsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	got, err := ResolveConfigPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetriesConfigToGatewayConfigFallsBackToDefaults(t *testing.T) {
	cfg := RetriesConfig{}
	gwCfg := cfg.ToGatewayConfig()
	assert.Equal(t, 5, gwCfg.MaxAttempts)
	assert.Equal(t, 2.0, gwCfg.BackoffFactor)

	cfg = RetriesConfig{MaxAttempts: 7, BackoffFactor: 1.5}
	gwCfg = cfg.ToGatewayConfig()
	assert.Equal(t, 7, gwCfg.MaxAttempts)
	assert.Equal(t, 1.5, gwCfg.BackoffFactor)
}
