package nord

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/singleflight"
)

// ModuleLoader resolves and executes imported modules (§7), caching each
// module by its resolved path so that a diamond import graph only compiles
// and runs the module once, and collapsing concurrent first-loads of the
// same path onto a single compile+execute via singleflight.
type ModuleLoader struct {
	baseDir    string
	moduleRoot string // directory containing the nearest go.mod-style manifest, if any
	compile    func(path string) (*Binary, error)

	mu      sync.Mutex
	loaded  map[string]*Module
	loading map[string]bool // cycle detection: paths currently being loaded

	group singleflight.Group
}

// NewModuleLoader creates a loader rooted at baseDir (the importing
// program's directory), using compile to turn a resolved source path into a
// Binary (normally the parser+compiler pipeline). If a go.mod-style manifest
// is found at or above baseDir, imports that don't resolve relative to
// baseDir fall back to resolving relative to the manifest's directory,
// letting a multi-file program address sibling modules by root-relative
// path the same way the teacher's CompileSource(files...) addresses them by
// an explicit file list.
func NewModuleLoader(baseDir string, compile func(path string) (*Binary, error)) *ModuleLoader {
	return &ModuleLoader{
		baseDir:    baseDir,
		moduleRoot: findModuleRoot(baseDir),
		compile:    compile,
		loaded:     make(map[string]*Module),
		loading:    make(map[string]bool),
	}
}

// findModuleRoot walks up from dir looking for a go.mod, returning the
// directory that contains it (or "" if none is found). The file only needs
// to parse as a valid module manifest; its module path is not otherwise
// consulted.
func findModuleRoot(dir string) string {
	for {
		path := filepath.Join(dir, "go.mod")
		if data, err := os.ReadFile(path); err == nil {
			if _, err := modfile.Parse(path, data, nil); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// moduleNameForPath derives the exported module name from a source path:
// the file's base name without its extension, matching the original
// implementation's module-naming convention.
func moduleNameForPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *ModuleLoader) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	candidate := name
	if filepath.Ext(candidate) == "" {
		candidate += ".nord"
	}
	if path := filepath.Join(l.baseDir, candidate); fileExists(path) {
		return path
	}
	if l.moduleRoot != "" {
		return filepath.Join(l.moduleRoot, candidate)
	}
	return filepath.Join(l.baseDir, candidate)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load resolves name to a source path, compiles and runs it if this is the
// first request for that path, and returns the resulting Module. Concurrent
// callers requesting the same path block on the same in-flight compile.
func (l *ModuleLoader) Load(name string) (*Module, error) {
	path := l.resolve(name)

	l.mu.Lock()
	if mod, ok := l.loaded[path]; ok {
		l.mu.Unlock()
		return mod, nil
	}
	if l.loading[path] {
		l.mu.Unlock()
		return nil, fmt.Errorf("import cycle detected at %s", path)
	}
	l.loading[path] = true
	l.mu.Unlock()

	v, err, _ := l.group.Do(path, func() (any, error) {
		defer func() {
			l.mu.Lock()
			delete(l.loading, path)
			l.mu.Unlock()
		}()

		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("cannot import %q: %w", name, err)
		}
		bin, err := l.compile(path)
		if err != nil {
			return nil, err
		}

		sub := NewVM(bin, l, false)
		if err := sub.Run(); err != nil {
			return nil, fmt.Errorf("while running module %q: %w", name, err)
		}

		mod := &Module{Name: moduleNameForPath(path), VM: sub}

		l.mu.Lock()
		l.loaded[path] = mod
		l.mu.Unlock()

		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

// Exported looks up name among the sub-VM's top-level exported bindings. A
// function value is stamped with its owning VM before being handed back,
// since its Region/Offset/Locals are only meaningful inside that VM (§7);
// execInvoke uses the stamp to route the call back to m.VM instead of
// trying to run it against the caller's own Binary and registers.
func (m *Module) Exported(name string) (Value, bool) {
	sym, ok := m.VM.bin.Symbols.GetLocal(name)
	if !ok {
		return Value{}, false
	}
	var v Value
	switch sym.Location.Kind {
	case LocRegister:
		v = m.VM.regs[sym.Location.Address]
	case LocMemory:
		v = m.VM.bin.Data.Get(sym.Location.Address)
	default:
		return Value{}, false
	}
	if v.Tag == TagFunction {
		v.asFunc().Owner = m.VM
	}
	return v, true
}
