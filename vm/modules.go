package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
)

// SourceExt is the file extension of script modules.
const SourceExt = ".nn"

// pluginSymbol is the function a native plugin exports:
//
//	func NeonModule() *vm.ModuleDef
const pluginSymbol = "NeonModule"

// importModule pushes the module named name, loading it on first use.
func (s *State) importModule(name string) bool {
	if p, ok := s.modules.GetByStr(name); ok {
		s.push(p.Value)
		return true
	}
	if def, ok := s.natives[name]; ok {
		mod, err := s.loadNativeModule(def, "<native "+name+">")
		if err != nil {
			return s.raise(s.classes.exception, "%v", err)
		}
		return s.finishImport(name, mod)
	}
	path, found := s.resolveModule(name)
	if !found {
		return s.raise(s.classes.exception, "module '%s' not found", name)
	}
	if filepath.Ext(path) == ".so" {
		mod, err := s.loadPlugin(name, path)
		if err != nil {
			return s.raise(s.classes.exception, "%v", err)
		}
		return s.finishImport(name, mod)
	}
	return s.importSource(name, path)
}

func (s *State) finishImport(name string, mod *Module) bool {
	mod.Imported = true
	s.push(FromObject(mod))
	s.modules.Set(s.String(name), FromObject(mod))
	vmLog.Infof("loaded module %s from %s", name, mod.Path.Chars)
	return true
}

// searchDirs lists the directories consulted by import, in order.
func (s *State) searchDirs() []string {
	var dirs []string
	if s.topModule != nil && s.topModule.Path != nil {
		if p := s.topModule.Path.Chars; !strings.HasPrefix(p, "<") {
			dirs = append(dirs, filepath.Dir(p))
		}
	}
	dirs = append(dirs, s.config.ModulePaths...)
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}

func (s *State) resolveModule(name string) (string, bool) {
	if path, ok := s.config.ModuleAliases[name]; ok {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, true
		}
	}
	candidates := []string{name + SourceExt, name + ".so", filepath.Join(name, "index"+SourceExt)}
	if filepath.Ext(name) != "" {
		candidates = append([]string{name}, candidates...)
	}
	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if st, err := os.Stat(c); err == nil && !st.IsDir() {
				return c, true
			}
		}
		return "", false
	}
	for _, dir := range s.searchDirs() {
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, true
			}
		}
	}
	return "", false
}

func (s *State) loadPlugin(name, path string) (*Module, error) {
	lib, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open native module %s: %w", path, err)
	}
	sym, err := lib.Lookup(pluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("native module %s: %w", path, err)
	}
	ctor, ok := sym.(func() *ModuleDef)
	if !ok {
		return nil, fmt.Errorf("native module %s: %s has type %T", path, pluginSymbol, sym)
	}
	def := ctor()
	if def.Name == "" {
		def.Name = name
	}
	mod, err := s.loadNativeModule(def, path)
	if err != nil {
		return nil, err
	}
	mod.lib = lib
	return mod, nil
}

// importSource compiles and runs a script module. The module is cached
// before it runs so that cyclic imports see the partial namespace.
func (s *State) importSource(name, path string) bool {
	if s.compile == nil {
		return s.raise(s.classes.exception, "cannot import %s: %v", name, ErrNoCompiler)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return s.raise(s.classes.ioError, "cannot read module %s: %v", path, err)
	}
	mod := s.NewModule(moduleName(path), path)
	s.pushRoot(FromObject(mod))
	s.modules.Set(s.String(name), FromObject(mod))
	fn, err := s.compile(s, string(src), path, mod)
	if err != nil {
		s.modules.Remove(s.String(name))
		s.popRoots(1)
		return s.raise(s.classes.exception, "cannot compile module %s: %v", name, err)
	}
	s.pushRoot(FromObject(fn))
	cl := s.NewClosure(fn)
	s.popRoots(1)
	if _, err := s.CallValue(FromObject(cl), Empty()); err != nil {
		s.popRoots(1)
		return s.rethrowPending()
	}
	s.popRoots(1)
	mod.Imported = true
	s.push(FromObject(mod))
	vmLog.Infof("loaded module %s from %s", name, path)
	return true
}

// Close unloads imported modules and releases every object, closing any
// file still open. The State must not be used afterwards.
func (s *State) Close() {
	s.reset()
	for o := s.objects; o != nil; o = o.header().next {
		s.destroy(o)
	}
	s.objects = nil
	s.objectCount = 0
	s.bytesAllocated = 0
	s.globals.Clear()
	s.modules.Clear()
	s.strings.Clear()
}
