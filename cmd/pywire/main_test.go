package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServeConfigDefaults(t *testing.T) {
	cfg, err := buildServeConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "pages", cfg.PagesDir)
	assert.False(t, cfg.Dev)
}

func TestBuildServeConfigProjectDirPositional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := buildServeConfig([]string{dir, "--dev"})
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
}

func TestBuildServeConfigAddrOverride(t *testing.T) {
	cfg, err := buildServeConfig([]string{"--addr", ":9000"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
}

func TestBuildServeConfigPagesOverride(t *testing.T) {
	cfg, err := buildServeConfig([]string{"--pages", "app/pages"})
	require.NoError(t, err)
	assert.Equal(t, "app/pages", cfg.PagesDir)
}

func TestBuildServeConfigFlagsWithoutProjectDir(t *testing.T) {
	cfg, err := buildServeConfig([]string{"--dev", "--addr", ":3000"})
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
	assert.Equal(t, ":3000", cfg.Addr)
}
