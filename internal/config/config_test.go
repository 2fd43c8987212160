package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default(t.TempDir())
	assert.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Server.Listen)
	assert.Equal(t, 500, cfg.Storage.HistoryCap)
}

func TestLoaderMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	assert.False(t, loader.IsInitialized())

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DataDirName), cfg.Storage.DataDir)
}

func TestLoaderSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)

	cfg := Default(dir)
	cfg.Server.Listen = "127.0.0.1:9000"
	cfg.Email.Provider = "imap"
	cfg.Email.IMAP.Host = "imap.example.com"
	cfg.Email.IMAP.Username = "bot@example.com"
	cfg.Email.IMAP.Password = "pw"
	require.NoError(t, loader.Save(cfg))
	assert.True(t, loader.IsInitialized())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", loaded.Server.Listen)
	assert.Equal(t, "imap", loaded.Email.Provider)
	assert.Equal(t, "imap.example.com", loaded.Email.IMAP.Host)
}

func TestLoaderSaveUsesRestrictivePermissions(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)
	require.NoError(t, loader.Save(Default(dir)))

	info, err := os.Stat(loader.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	dir := t.TempDir()

	cfg := Default(dir)
	cfg.Server.Listen = ""
	assert.Error(t, cfg.Validate())

	cfg = Default(dir)
	cfg.Email.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Default(dir)
	cfg.Email.Provider = "imap"
	assert.Error(t, cfg.Validate(), "imap provider requires a host")

	cfg = Default(dir)
	cfg.Email.Provider = "gmail"
	assert.Error(t, cfg.Validate(), "gmail provider requires a refresh token")
}

func TestPathHelpers(t *testing.T) {
	cfg := Default("/proj")
	assert.Equal(t, filepath.Join("/proj", DataDirName, "rules.json"), cfg.RulesPath())
	assert.Equal(t, filepath.Join("/proj", DataDirName, "history.json"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join("/proj", DataDirName, "archive.db"), cfg.ArchivePath())
	assert.Equal(t, filepath.Join("/proj", DataDirName, "community"), cfg.CommunityDir())
}
