package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "pages", cfg.PagesDir)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Dev)
	assert.Equal(t, 300*time.Second, cfg.SessionTTL)
	assert.True(t, cfg.Minify)
	assert.EqualValues(t, 32<<20, cfg.UploadMaxBytes)
}

func TestNewAppliesOptionsInOrder(t *testing.T) {
	cfg, err := New(WithPagesDir("app"), WithAddr(":9000"), WithDev(true))
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.PagesDir)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.Dev)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	original := DefaultConfig()
	original.PagesDir = "src/pages"
	original.Dev = true
	original.Minify = false
	original.UploadMaxBytes = 1 << 20

	require.NoError(t, Save(original, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestFindAndLoadSearchesProjectDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(&Config{PagesDir: "custom", Addr: ":1234"}, filepath.Join(dir, ConfigFileName)))

	cfg, err := FindAndLoad(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.PagesDir)
	assert.Equal(t, ":1234", cfg.Addr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("pages_dir: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
