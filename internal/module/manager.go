// Package module implements the module manager (§4.7, component C7): name
// resolution, compilation, execution, a loaded-module cache with LRU
// eviction and hit/miss stats, circular-dependency detection, and optional
// hot reload. It implements internal/vm's Importer interface so OP_IMPORT
// and OP_IMPORT_FROM resolve through a real Manager at runtime.
package module

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Xarvie/sptscript/internal/bytecode"
	"github.com/Xarvie/sptscript/internal/compiler"
	"github.com/Xarvie/sptscript/internal/config"
	splerrors "github.com/Xarvie/sptscript/internal/errors"
	"github.com/Xarvie/sptscript/internal/parser"
	"github.com/Xarvie/sptscript/internal/stdlib"
	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// cacheEntry is one loaded module's cache record. The VM-visible state
// (exports, lifecycle) lives on module itself (*value.ModuleObj); this
// struct carries the manager-private bookkeeping around it.
type cacheEntry struct {
	name         string
	path         string
	timestamp    int64
	byteSize     int64
	dependencies []string
	module       *value.ModuleObj
	chunk        *bytecode.CompiledChunk
}

// CacheStats mirrors Vm/Module.cpp's ModuleManager::CacheStats (§4.7,
// supplemented per SPEC_FULL §12).
type CacheStats struct {
	TotalModules  int
	LoadedModules int
	TotalBytes    int64
	Hits          uint64
	Misses        uint64
}

// String formats stats as one human-readable line, using the same
// humanize.Bytes binding the stdlib's humanize.bytesToString native exposes
// to scripts (§11).
func (s CacheStats) String() string {
	return fmt.Sprintf("%d/%d modules loaded, %s cached, %d hits / %d misses",
		s.LoadedModules, s.TotalModules, stdlib.FormatBytes(s.TotalBytes), s.Hits, s.Misses)
}

// Manager is the C7 module manager. One Manager typically backs one VM,
// installed as its Importer via New.
type Manager struct {
	v      *vm.VM
	cfg    config.Config
	loader Loader

	mu        sync.RWMutex
	cache     map[string]*cacheEntry
	loadOrder []string // insertion order, for LRU-by-load-time eviction
	hits      uint64
	misses    uint64

	group singleflight.Group

	// loading/paths track the chain of module names currently being
	// resolved on this call stack, so a nested OP_IMPORT triggered while
	// executing module A's root chunk can both detect "A imports A"
	// (transitively) and resolve relative paths against A's own file.
	loadingMu sync.Mutex
	loading   map[string]bool
	pathStack []string
	depsStack []*[]string // depsStack[i] accumulates names imported while pathStack[i] is executing
}

// New builds a Manager using a FileSystemLoader rooted at cfg's search
// paths and extensions, and installs it as v's Importer.
func New(v *vm.VM, cfg config.Config) *Manager {
	m := &Manager{
		v:       v,
		cfg:     cfg,
		loader:  NewFileSystemLoader(cfg.SearchPaths, cfg.Extensions),
		cache:   make(map[string]*cacheEntry),
		loading: make(map[string]bool),
	}
	v.SetImporter(m)
	return m
}

// SetLoader overrides the default FileSystemLoader, e.g. for tests that
// serve module sources from memory instead of disk.
func (m *Manager) SetLoader(l Loader) { m.loader = l }

// AddSearchPath delegates to the active loader, when it supports it.
func (m *Manager) AddSearchPath(path string) { m.loader.AddSearchPath(path) }

// Import implements vm.Importer: `import "name"` (§4.5).
func (m *Manager) Import(name string) (value.Value, error) {
	return m.Load(name)
}

// ImportFrom implements vm.Importer: `import { symbol } from "name"` (§4.5).
func (m *Manager) ImportFrom(moduleName, symbol string) (value.Value, error) {
	modVal, err := m.Load(moduleName)
	if err != nil {
		return value.Value{}, err
	}
	mod := modVal.AsModuleObj()
	if mod.Exports != nil {
		if v, ok := mod.Exports.Get(m.v.AllocateString(symbol)); ok {
			return v, nil
		}
	}
	return value.Value{}, splerrors.NewModuleError(moduleName, "has no export %q", symbol)
}

// Load resolves, compiling and executing name if necessary, and returns its
// Module value (§4.7). A cache hit with hot reload enabled re-checks the
// source file's timestamp and transparently reloads if it changed; a cache
// hit otherwise never re-runs the module, matching loadOrder_ never moving
// on access (eviction is least-recently-*loaded*, not least-recently-used).
func (m *Manager) Load(name string) (value.Value, error) {
	if m.cfg.EnableCache {
		if modVal, ok, err := m.lookupCached(name); ok {
			return modVal, err
		}
	}

	m.mu.Lock()
	m.misses++
	m.mu.Unlock()

	result, err, _ := m.group.Do(name, func() (interface{}, error) {
		return m.loadInternal(name)
	})
	if err != nil {
		return value.Value{}, err
	}
	return result.(value.Value), nil
}

func (m *Manager) lookupCached(name string) (value.Value, bool, error) {
	m.mu.RLock()
	e, ok := m.cache[name]
	m.mu.RUnlock()
	if !ok {
		return value.Value{}, false, nil
	}

	m.mu.Lock()
	m.hits++
	m.mu.Unlock()

	if m.cfg.HotReload {
		current := m.loader.Timestamp(e.path)
		if current > e.timestamp {
			if reloaded, err := m.reload(name); err == nil {
				return reloaded, true, nil
			}
			// Fall through to the stale cached module on a failed reload,
			// rather than surfacing a hot-reload error as a load failure.
		}
	}

	return value.NewModuleValue(e.module), true, nil
}

// loadInternal resolves, compiles and executes name, caching the result on
// success. Cycle detection and relative-path resolution key off the
// loading/pathStack state shared across the synchronous call chain that
// OP_IMPORT drives (module A's execution re-entering Load for module B).
func (m *Manager) loadInternal(name string) (interface{}, error) {
	if err := m.pushLoading(name); err != nil {
		return value.Value{}, err
	}
	defer m.popLoading(name)

	m.recordDependencyOnParent(name)

	fromPath := m.currentPath()
	path, found := m.loader.ResolvePath(name, fromPath)
	if !found {
		return value.Value{}, splerrors.NewModuleError(name, "module not found")
	}
	m.pushPath(path)
	defer func() {
		deps := m.popPath()
		m.mu.Lock()
		if e, ok := m.cache[name]; ok {
			e.dependencies = deps
		}
		m.mu.Unlock()
	}()

	mod := value.NewModule(name, path)
	mod.Tag = uuid.NewString()
	mod.State = value.ModuleLoading
	modVal := value.NewModuleValue(mod)
	m.v.Protect(modVal)
	defer m.v.Unprotect(1)

	chunk, err := m.compileAndRun(mod, name, path)
	if err != nil {
		return value.Value{}, err
	}

	// Keep the module (and transitively its exports) alive for the VM's
	// lifetime regardless of GC cycles, independent of the cache below —
	// callers that disabled caching still expect an already-returned
	// Module value to stay valid.
	m.v.PinRoot(modVal)

	if m.cfg.EnableCache {
		m.storeCacheEntry(name, path, chunk, mod)
	}

	return modVal, nil
}

// compileAndRun reads, parses, compiles and executes name's source at path,
// populating mod's Exports/State on success and State/Err on failure. It
// leaves mod's identity untouched, which is what lets reload refresh an
// already-cached (and possibly already-referenced-by-script-code) Module
// object in place instead of replacing it.
func (m *Manager) compileAndRun(mod *value.ModuleObj, name, path string) (*bytecode.CompiledChunk, error) {
	source, err := m.loader.LoadSource(path)
	if err != nil {
		return nil, m.fail(mod, pkgerrors.Wrapf(err, "reading source for module %q", name))
	}

	prog, perrs := parser.ParseSource(source, path)
	if len(perrs) > 0 {
		msgs := make([]string, len(perrs))
		for i, e := range perrs {
			msgs[i] = e.Error()
		}
		return nil, m.fail(mod, splerrors.NewModuleError(name, "parse failed:\n%s", strings.Join(msgs, "\n")))
	}

	comp := compiler.New()
	chunk, cerrs := comp.CompileModule(prog, name, source)
	if len(cerrs) > 0 {
		msgs := make([]string, len(cerrs))
		for i, e := range cerrs {
			msgs[i] = e.Error()
		}
		return nil, m.fail(mod, splerrors.NewModuleError(name, "compilation failed:\n%s", strings.Join(msgs, "\n")))
	}

	envVal, err := m.v.ExecuteChunk(chunk.Root)
	if err != nil {
		return nil, m.fail(mod, pkgerrors.Wrapf(err, "executing module %q", name))
	}

	exports := m.v.AllocateMap(len(chunk.Exports)).AsMapObj()
	if envVal.IsMap() {
		env := envVal.AsMapObj()
		for _, exportName := range chunk.Exports {
			key := m.v.AllocateString(exportName)
			if v, ok := env.Get(key); ok {
				exports.Put(key, v)
			}
		}
	}
	mod.Exports = exports
	mod.State = value.ModuleLoaded
	mod.Err = ""
	return chunk, nil
}

func (m *Manager) fail(mod *value.ModuleObj, err error) error {
	mod.State = value.ModuleError
	mod.Err = err.Error()
	return err
}

func (m *Manager) storeCacheEntry(name, path string, chunk *bytecode.CompiledChunk, mod *value.ModuleObj) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[name] = &cacheEntry{
		name:      name,
		path:      path,
		timestamp: m.loader.Timestamp(path),
		byteSize:  int64(len(chunk.Root.Code)) * 4,
		module:    mod,
		chunk:     chunk,
	}
	m.loadOrder = append(m.loadOrder, name)
	if len(m.cache) > m.cfg.MaxCacheSize && m.cfg.MaxCacheSize > 0 {
		m.evictOldestLocked()
	}
}

// evictOldestLocked drops the least-recently-*loaded* cache entry: the
// front of loadOrder, which a cache hit never moves (Vm/Module.cpp's
// evictCache/loadOrder_ semantics, §12).
func (m *Manager) evictOldestLocked() {
	if len(m.loadOrder) == 0 {
		return
	}
	oldest := m.loadOrder[0]
	m.loadOrder = m.loadOrder[1:]
	delete(m.cache, oldest)
}

func (m *Manager) pushLoading(name string) error {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	if m.loading[name] {
		return splerrors.NewModuleError(name, "circular dependency detected")
	}
	m.loading[name] = true
	return nil
}

func (m *Manager) popLoading(name string) {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	delete(m.loading, name)
}

func (m *Manager) pushPath(path string) {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	m.pathStack = append(m.pathStack, path)
	m.depsStack = append(m.depsStack, &[]string{})
}

// popPath pops the current module's path and returns the names it imported
// while executing (collected via recordDependencyOnParent).
func (m *Manager) popPath() []string {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	deps := *m.depsStack[len(m.depsStack)-1]
	m.pathStack = m.pathStack[:len(m.pathStack)-1]
	m.depsStack = m.depsStack[:len(m.depsStack)-1]
	return deps
}

func (m *Manager) currentPath() string {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	if len(m.pathStack) == 0 {
		return ""
	}
	return m.pathStack[len(m.pathStack)-1]
}

// recordDependencyOnParent notes that name is being imported while the
// caller's own module (the current top of pathStack, if any) is executing.
func (m *Manager) recordDependencyOnParent(name string) {
	m.loadingMu.Lock()
	defer m.loadingMu.Unlock()
	if len(m.depsStack) == 0 {
		return
	}
	top := m.depsStack[len(m.depsStack)-1]
	*top = append(*top, name)
}

// reload re-compiles and re-executes a cached module's source in place: it
// mutates the existing *value.ModuleObj's Exports/State rather than
// allocating a new one, so any script-visible Module value captured before
// the reload (e.g. held in a variable from an earlier import) observes the
// refreshed exports through the same identity (§12).
func (m *Manager) reload(name string) (value.Value, error) {
	m.mu.RLock()
	e, ok := m.cache[name]
	m.mu.RUnlock()
	if !ok {
		return value.Value{}, splerrors.NewModuleError(name, "not loaded")
	}

	modVal := value.NewModuleValue(e.module)
	m.v.Protect(modVal)
	defer m.v.Unprotect(1)

	if err := m.pushLoading(name); err != nil {
		return value.Value{}, err
	}
	defer m.popLoading(name)
	m.pushPath(e.path)
	defer m.popPath()

	if _, err := m.compileAndRun(e.module, name, e.path); err != nil {
		return value.Value{}, err
	}

	m.mu.Lock()
	e.timestamp = m.loader.Timestamp(e.path)
	m.mu.Unlock()

	return modVal, nil
}

// ClearCache drops one cached module, or every module when name is empty.
func (m *Manager) ClearCache(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		m.cache = make(map[string]*cacheEntry)
		m.loadOrder = nil
		return
	}
	delete(m.cache, name)
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			break
		}
	}
}

// Stats reports cumulative cache hit/miss counts and the current cache
// contents' size, mirroring ModuleManager::getCacheStats (§12).
func (m *Manager) Stats() CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := CacheStats{Hits: m.hits, Misses: m.misses}
	for _, e := range m.cache {
		stats.TotalModules++
		if e.module.State == value.ModuleLoaded {
			stats.LoadedModules++
		}
		stats.TotalBytes += e.byteSize
	}
	return stats
}

// CheckForUpdates re-timestamps every cached module and reloads any whose
// source file changed since it was loaded, returning the reloaded names.
// A no-op when hot reload is disabled.
func (m *Manager) CheckForUpdates() []string {
	if !m.cfg.HotReload {
		return nil
	}
	m.mu.RLock()
	names := make([]string, 0, len(m.cache))
	for name, e := range m.cache {
		if e.module.State != value.ModuleLoaded {
			continue
		}
		if m.loader.Timestamp(e.path) > e.timestamp {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	var updated []string
	for _, name := range names {
		if _, err := m.reload(name); err == nil {
			updated = append(updated, name)
		}
	}
	return updated
}

// Dependencies returns the cached module's dependency list built while it
// was loaded; empty if it isn't cached. Since this
// module manager resolves IMPORT lazily (at the bytecode instruction, not
// by pre-scanning the AST like Vm/Module.cpp's resolveDependencies), this
// list only reflects imports that have actually executed at least once.
func (m *Manager) Dependencies(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[name]
	if !ok {
		return nil
	}
	out := make([]string, len(e.dependencies))
	copy(out, e.dependencies)
	return out
}
