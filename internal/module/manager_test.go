package module

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/config"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/stdlib"
	"github.com/Xarvie/sptscript/internal/vm"
)

// memLoader serves module sources from an in-memory map keyed by module
// name, so tests never touch the filesystem. Timestamps are bumped only
// when a test explicitly asks it to, to drive hot-reload checks.
type memLoader struct {
	sources map[string]string
	ts      map[string]int64
}

func newMemLoader() *memLoader {
	return &memLoader{sources: make(map[string]string), ts: make(map[string]int64)}
}

func (l *memLoader) ResolvePath(moduleName, fromPath string) (string, bool) {
	_, ok := l.sources[moduleName]
	return moduleName, ok
}

func (l *memLoader) LoadSource(path string) (string, error) {
	return l.sources[path], nil
}

func (l *memLoader) Timestamp(path string) int64 { return l.ts[path] }

func (l *memLoader) AddSearchPath(path string) {}

func newTestManager(t *testing.T, loader *memLoader, cfg config.Config) *Manager {
	t.Helper()
	v := vm.New()
	stdlib.Register(v)
	m := New(v, cfg)
	m.SetLoader(loader)
	return m
}

func TestLoadExecutesAndExposesExports(t *testing.T) {
	loader := newMemLoader()
	loader.sources["greet"] = `export var message = "hi";`

	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	modVal, err := m.Load("greet")
	require.NoError(t, err)
	require.True(t, modVal.IsModule())

	mod := modVal.AsModuleObj()
	require.Equal(t, "greet", mod.Name)
	msg, ok := mod.Exports.Get(m.v.AllocateString("message"))
	require.True(t, ok)
	require.Equal(t, "hi", msg.AsString())
}

func TestLoadCachesAndTracksHitsMisses(t *testing.T) {
	loader := newMemLoader()
	loader.sources["once"] = `export var n = 1;`

	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	_, err := m.Load("once")
	require.NoError(t, err)
	_, err = m.Load("once")
	require.NoError(t, err)

	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, 1, stats.LoadedModules)
}

func TestImportFromMissingExportIsModuleError(t *testing.T) {
	loader := newMemLoader()
	loader.sources["lib"] = `var internalOnly = 1;`

	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	_, err := m.ImportFrom("lib", "nope")
	require.Error(t, err)
	var merr *splerrors.ModuleError
	require.ErrorAs(t, err, &merr)
}

func TestModuleNotFoundIsAnError(t *testing.T) {
	loader := newMemLoader()
	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	_, err := m.Load("missing")
	require.Error(t, err)
}

func TestParseFailureIsModuleError(t *testing.T) {
	loader := newMemLoader()
	loader.sources["broken"] = `var = ;`

	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	_, err := m.Load("broken")
	require.Error(t, err)
	var merr *splerrors.ModuleError
	require.ErrorAs(t, err, &merr)
}

func TestClearCacheDropsOneOrAllEntries(t *testing.T) {
	loader := newMemLoader()
	loader.sources["a"] = `export var x = 1;`
	loader.sources["b"] = `export var y = 2;`

	cfg := config.Default()
	m := newTestManager(t, loader, cfg)

	_, err := m.Load("a")
	require.NoError(t, err)
	_, err = m.Load("b")
	require.NoError(t, err)
	require.Equal(t, 2, m.Stats().TotalModules)

	m.ClearCache("a")
	require.Equal(t, 1, m.Stats().TotalModules)

	m.ClearCache("")
	require.Equal(t, 0, m.Stats().TotalModules)
}

func TestEvictsOldestWhenOverCapacity(t *testing.T) {
	loader := newMemLoader()
	loader.sources["a"] = `export var x = 1;`
	loader.sources["b"] = `export var y = 2;`
	loader.sources["c"] = `export var z = 3;`

	cfg := config.Default()
	cfg.MaxCacheSize = 2
	m := newTestManager(t, loader, cfg)

	_, err := m.Load("a")
	require.NoError(t, err)
	_, err = m.Load("b")
	require.NoError(t, err)
	_, err = m.Load("c")
	require.NoError(t, err)

	require.Equal(t, 2, m.Stats().TotalModules)
	require.Nil(t, m.Dependencies("a"), "a was evicted and is no longer cached")
}

func TestCacheStatsStringFormatsHumanReadableSize(t *testing.T) {
	stats := CacheStats{LoadedModules: 1, TotalModules: 1, TotalBytes: 2048, Hits: 3, Misses: 1}
	require.Contains(t, stats.String(), "kB")
}
