package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, []string{".", "./lib", "./modules"}, cfg.SearchPaths)
	require.Equal(t, []string{".flx", ".spt", ".flxc"}, cfg.Extensions)
	require.True(t, cfg.EnableCache)
	require.False(t, cfg.HotReload)
}

func TestLoadFileMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(Default(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sptscript.yaml")
	yamlBody := "max_cache_size: 64\nhot_reload: true\nsearch_paths:\n  - ./scripts\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadFile(Default(), path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.MaxCacheSize)
	require.True(t, cfg.HotReload)
	require.Equal(t, []string{"./scripts"}, cfg.SearchPaths)
	require.True(t, cfg.EnableCache, "fields absent from the file keep the base value")
}

func TestApplyEnvOverridesBaseValue(t *testing.T) {
	t.Setenv("SPTSCRIPT_MAX_CACHE_SIZE", "256")
	t.Setenv("SPTSCRIPT_HOT_RELOAD", "true")

	cfg, err := ApplyEnv(Default())
	require.NoError(t, err)
	require.Equal(t, 256, cfg.MaxCacheSize)
	require.True(t, cfg.HotReload)
}

func TestLoadLayersDefaultsFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sptscript.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_cache_size: 64\n"), 0o644))

	t.Setenv("SPTSCRIPT_MAX_CACHE_SIZE", "512")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 512, cfg.MaxCacheSize, "env overrides the file, which overrode the default")
}
