// Package manifest handles neon.toml and neon.yaml project configuration.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"

	"github.com/chazu/neon/vm"
)

var log = commonlog.GetLogger("neon.manifest")

// File names searched for, in order of preference.
var FileNames = []string{"neon.toml", "neon.yaml", "neon.yml"}

// Manifest represents a neon project configuration.
type Manifest struct {
	Project      Project               `toml:"project" yaml:"project"`
	GC           GC                    `toml:"gc" yaml:"gc"`
	Runtime      Runtime               `toml:"runtime" yaml:"runtime"`
	Modules      Modules               `toml:"modules" yaml:"modules"`
	Dependencies map[string]Dependency `toml:"dependencies" yaml:"dependencies"`

	// Dir is the directory containing the manifest (set at load time).
	Dir string `toml:"-" yaml:"-"`
	// File is the manifest path that was loaded.
	File string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
	Entry   string `toml:"entry" yaml:"entry"`
}

// GC tunes the collector.
type GC struct {
	StartKiB int     `toml:"start_kib" yaml:"start_kib"`
	Growth   float64 `toml:"growth" yaml:"growth"`
}

// Runtime holds interpreter switches.
type Runtime struct {
	Strict    bool `toml:"strict" yaml:"strict"`
	Warnings  bool `toml:"warnings" yaml:"warnings"`
	FullStack bool `toml:"full_stack" yaml:"full_stack"`
	MaxFrames int  `toml:"max_frames" yaml:"max_frames"`
}

// Modules configures the import search path.
type Modules struct {
	Paths []string `toml:"paths" yaml:"paths"`
}

// Dependency is a module library fetched from git or taken from a local
// directory.
type Dependency struct {
	Git  string `toml:"git" yaml:"git"`
	Tag  string `toml:"tag" yaml:"tag"`
	Path string `toml:"path" yaml:"path"`
	// As overrides the name scripts import the dependency by.
	As string `toml:"as" yaml:"as"`
}

// ErrNoManifest is returned by Load when dir has no manifest file.
var ErrNoManifest = errors.New("manifest: no neon.toml or neon.yaml")

// Load parses the manifest in dir.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

// LoadFile parses a manifest, choosing the format by extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse error in %s: unknown key %s", path, undecoded[0])
		}
	}

	m.File, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.Dir = filepath.Dir(m.File)
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded manifest %s", m.File)
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.GC.StartKiB < 0 {
		return fmt.Errorf("gc.start_kib must not be negative")
	}
	if m.GC.Growth != 0 && m.GC.Growth <= 1 {
		return fmt.Errorf("gc.growth must be greater than 1, got %g", m.GC.Growth)
	}
	if m.Runtime.MaxFrames < 0 {
		return fmt.Errorf("runtime.max_frames must not be negative")
	}
	for name, dep := range m.Dependencies {
		if dep.Git == "" && dep.Path == "" {
			return fmt.Errorf("dependency %q has no git or path specified", name)
		}
		if dep.Git != "" && dep.Path != "" {
			return fmt.Errorf("dependency %q has both git and path", name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a manifest, then loads and
// returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ModulePaths returns absolute paths for the configured module
// directories followed by the directories of resolved dependencies.
func (m *Manifest) ModulePaths() []string {
	var paths []string
	for _, d := range m.Modules.Paths {
		if !filepath.IsAbs(d) {
			d = filepath.Join(m.Dir, d)
		}
		paths = append(paths, d)
	}
	for _, name := range m.dependencyNames() {
		if p := m.dependencyDir(name, m.Dependencies[name]); p != "" {
			if _, err := os.Stat(p); err == nil {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func (m *Manifest) dependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manifest) dependencyDir(name string, dep Dependency) string {
	switch {
	case dep.Path != "":
		if filepath.IsAbs(dep.Path) {
			return dep.Path
		}
		return filepath.Join(m.Dir, dep.Path)
	case dep.Git != "":
		return filepath.Join(m.DepsDir(), name)
	}
	return ""
}

// DepsDir returns the path to the .neon/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".neon", "deps")
}

// LockFilePath returns the path to neon.lock.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, "neon.lock")
}

// Apply copies the manifest settings into cfg. Zero values leave cfg
// untouched so that defaults and earlier settings survive.
func (m *Manifest) Apply(cfg *vm.Config) {
	if m.GC.StartKiB > 0 {
		cfg.GCStart = m.GC.StartKiB * 1024
	}
	if m.GC.Growth > 1 {
		cfg.GCGrowth = m.GC.Growth
	}
	if m.Runtime.Strict {
		cfg.Strict = true
	}
	if m.Runtime.Warnings {
		cfg.Warnings = true
	}
	if m.Runtime.FullStack {
		cfg.ShowFullStack = true
	}
	if m.Runtime.MaxFrames > 0 {
		cfg.MaxFrames = m.Runtime.MaxFrames
	}
	cfg.ModulePaths = append(cfg.ModulePaths, m.ModulePaths()...)
	for _, name := range m.dependencyNames() {
		dir := m.dependencyDir(name, m.Dependencies[name])
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}
		depManifest, _ := Load(dir)
		module, err := moduleNameFor(name, m.Dependencies[name], depManifest)
		if err != nil {
			log.Warningf("%s", err)
			continue
		}
		entry := entryFor(dir, name, depManifest)
		if entry == "" {
			continue
		}
		if cfg.ModuleAliases == nil {
			cfg.ModuleAliases = make(map[string]string)
		}
		if _, taken := cfg.ModuleAliases[module]; !taken {
			cfg.ModuleAliases[module] = entry
		}
	}
}

// EntryPath returns the absolute path of the project entry script, or ""
// when none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}
