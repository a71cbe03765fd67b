// Package config loads the module manager and GC tuning knobs the host
// (cmd/sptscript or an embedder) hands a VM/Manager pair at startup (§10.3).
// A Config is valid on its own zero-adjacent Default() value; LoadFile and
// ApplyEnv are both optional, additive overrides.
package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config controls module resolution (§4.7, §6) and GC pacing (§4.4).
type Config struct {
	SearchPaths  []string `yaml:"search_paths" env:"SPTSCRIPT_SEARCH_PATHS" envSeparator:","`
	Extensions   []string `yaml:"extensions" env:"SPTSCRIPT_EXTENSIONS" envSeparator:","`
	MaxCacheSize int      `yaml:"max_cache_size" env:"SPTSCRIPT_MAX_CACHE_SIZE"`
	EnableCache  bool     `yaml:"enable_cache" env:"SPTSCRIPT_ENABLE_CACHE"`
	HotReload    bool     `yaml:"hot_reload" env:"SPTSCRIPT_HOT_RELOAD"`

	GCThreshold int64   `yaml:"gc_threshold" env:"SPTSCRIPT_GC_THRESHOLD"`
	GCGrowth    float64 `yaml:"gc_growth" env:"SPTSCRIPT_GC_GROWTH"`
}

// Default returns the same defaults §6 documents: search paths
// {".", "./lib", "./modules"}, extensions {.flx, .spt, .flxc}, caching on,
// hot reload off.
func Default() Config {
	return Config{
		SearchPaths:  []string{".", "./lib", "./modules"},
		Extensions:   []string{".flx", ".spt", ".flxc"},
		MaxCacheSize: 128,
		EnableCache:  true,
		HotReload:    false,
		GCThreshold:  1 << 20,
		GCGrowth:     2.0,
	}
}

// LoadFile reads a sptscript.yaml-shaped file into a copy of base, leaving
// base untouched on error. A missing file is not an error — callers that
// want the file to be mandatory should stat it themselves first.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return base, pkgerrors.Wrapf(err, "reading config file %q", path)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, pkgerrors.Wrapf(err, "parsing config file %q", path)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg's fields from SPTSCRIPT_* environment variables,
// per the tags above. Unset variables leave the existing value alone.
func ApplyEnv(cfg Config) (Config, error) {
	if err := env.Parse(&cfg); err != nil {
		return cfg, pkgerrors.Wrap(err, "applying environment overrides")
	}
	return cfg, nil
}

// Load combines Default, an optional YAML file and environment overrides,
// the order §10.3 specifies (file overrides defaults, env overrides file).
func Load(path string) (Config, error) {
	cfg, err := LoadFile(Default(), path)
	if err != nil {
		return cfg, err
	}
	return ApplyEnv(cfg)
}
