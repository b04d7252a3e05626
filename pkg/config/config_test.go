package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.TLSSkipVerify)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.TLSSkipVerify = true
	cfg.QuotaBytes = 42

	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, loaded.TLSSkipVerify)
	assert.Equal(t, int64(42), loaded.QuotaBytes)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("data_dir: [this is not a string"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
