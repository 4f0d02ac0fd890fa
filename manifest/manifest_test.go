package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/neon/vm"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "neon.toml"), `
[project]
name = "test-app"
version = "0.1.0"
entry = "main.nn"

[gc]
start_kib = 512
growth = 2.0

[runtime]
strict = true
max_frames = 100

[modules]
paths = ["lib", "/opt/neon"]

[dependencies]
helper = { path = "../helper", as = "help" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.GC.StartKiB != 512 || m.GC.Growth != 2.0 {
		t.Errorf("gc = %+v, want {512 2}", m.GC)
	}
	if !m.Runtime.Strict || m.Runtime.MaxFrames != 100 {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	dep, ok := m.Dependencies["helper"]
	if !ok || dep.Path != "../helper" || dep.As != "help" {
		t.Errorf("helper dep = %+v, want path ../helper as help", dep)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "main.nn"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
}

func TestLoadYAMLManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "neon.yaml"), `
project:
  name: yaml-app
runtime:
  warnings: true
  full_stack: true
modules:
  paths: [vendor]
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "yaml-app" {
		t.Errorf("project name = %q, want yaml-app", m.Project.Name)
	}
	if !m.Runtime.Warnings || !m.Runtime.FullStack {
		t.Errorf("runtime = %+v, want warnings and full_stack", m.Runtime)
	}
	if len(m.Modules.Paths) != 1 || m.Modules.Paths[0] != "vendor" {
		t.Errorf("module paths = %v", m.Modules.Paths)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "neon.yml"), "")
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown toml key", "neon.toml", "[project]\nnamespace = \"X\"\n"},
		{"unknown yaml key", "neon.yaml", "image:\n  output: x\n"},
		{"growth too small", "neon.toml", "[gc]\ngrowth = 0.5\n"},
		{"negative start", "neon.toml", "[gc]\nstart_kib = -1\n"},
		{"negative frames", "neon.toml", "[runtime]\nmax_frames = -3\n"},
		{"dependency without source", "neon.toml", "[dependencies]\nx = { tag = \"v1\" }\n"},
		{"dependency with both sources", "neon.toml", "[dependencies]\nx = { git = \"u\", path = \"p\" }\n"},
		{"bad toml", "neon.toml", "[project\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tt.file), tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadNoManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNoManifest) {
		t.Errorf("Load() error = %v, want ErrNoManifest", err)
	}
}

func TestTOMLPreferredOverYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "neon.toml"), "[project]\nname = \"from-toml\"\n")
	writeFile(t, filepath.Join(dir, "neon.yaml"), "project:\n  name: from-yaml\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Project.Name != "from-toml" {
		t.Errorf("project name = %q, want from-toml", m.Project.Name)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "neon.toml"), "[project]\nname = \"root-project\"\n")
	sub := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "root-project" {
		t.Errorf("project name = %q, want root-project", m.Project.Name)
	}
	if m.Dir != root {
		t.Errorf("m.Dir = %q, want %q", m.Dir, root)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Skipf("found unrelated manifest %s", m.File)
	}
}

func TestModulePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "deps", "present"), 0o755); err != nil {
		t.Fatal(err)
	}
	m := &Manifest{
		Dir:     dir,
		Modules: Modules{Paths: []string{"lib", "/abs/mods"}},
		Dependencies: map[string]Dependency{
			"present": {Path: "deps/present"},
			"missing": {Path: "deps/missing"},
		},
	}

	paths := m.ModulePaths()
	want := []string{
		filepath.Join(dir, "lib"),
		"/abs/mods",
		filepath.Join(dir, "deps", "present"),
	}
	if len(paths) != len(want) {
		t.Fatalf("ModulePaths() = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "libs", "json-kit", "index.nn"), "var x = 1\n")
	m := &Manifest{
		Dir:     dir,
		GC:      GC{StartKiB: 64, Growth: 1.5},
		Runtime: Runtime{Strict: true, FullStack: true, MaxFrames: 10},
		Dependencies: map[string]Dependency{
			"json-kit": {Path: "libs/json-kit"},
		},
	}

	cfg := vm.DefaultConfig()
	cfg.Warnings = true
	m.Apply(&cfg)

	if cfg.GCStart != 64*1024 {
		t.Errorf("GCStart = %d, want %d", cfg.GCStart, 64*1024)
	}
	if cfg.GCGrowth != 1.5 {
		t.Errorf("GCGrowth = %g, want 1.5", cfg.GCGrowth)
	}
	if !cfg.Strict || !cfg.ShowFullStack || cfg.MaxFrames != 10 {
		t.Errorf("runtime settings not applied: %+v", cfg)
	}
	if !cfg.Warnings {
		t.Error("Apply cleared Warnings")
	}
	entry := filepath.Join(dir, "libs", "json-kit", "index.nn")
	if got := cfg.ModuleAliases["json_kit"]; got != entry {
		t.Errorf("alias json_kit = %q, want %q", got, entry)
	}
}

func TestApplyKeepsDefaults(t *testing.T) {
	cfg := vm.DefaultConfig()
	want := cfg
	(&Manifest{Dir: t.TempDir()}).Apply(&cfg)
	if cfg.GCStart != want.GCStart || cfg.GCGrowth != want.GCGrowth || cfg.MaxFrames != want.MaxFrames {
		t.Errorf("empty manifest changed defaults: %+v", cfg)
	}
	if len(cfg.ModuleAliases) != 0 {
		t.Errorf("ModuleAliases = %v, want none", cfg.ModuleAliases)
	}
}

func TestModuleName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"json", "json"},
		{"my-lib", "my_lib"},
		{"http.client", "http_client"},
		{"2d", "_2d"},
		{"Mixed_Case9", "Mixed_Case9"},
	}
	for _, tt := range tests {
		if got := ModuleName(tt.in); got != tt.want {
			t.Errorf("ModuleName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsReservedModule(t *testing.T) {
	for _, name := range []string{"os", "math", "io", "Array", "Exception", "ARGV"} {
		if !IsReservedModule(name) {
			t.Errorf("IsReservedModule(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"json", "array", "utils"} {
		if IsReservedModule(name) {
			t.Errorf("IsReservedModule(%q) = true, want false", name)
		}
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neon.lock")
	lf := &LockFile{Deps: []LockedDep{
		{Name: "zeta", Module: "zeta", Path: "/src/zeta"},
		{Name: "alpha", Module: "alpha", Git: "https://example.com/alpha.git", Tag: "v1.2.0", Commit: "abc123"},
	}}
	if err := WriteLock(path, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	got, err := ReadLock(path)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}
	if len(got.Deps) != 2 {
		t.Fatalf("deps = %d, want 2", len(got.Deps))
	}
	if got.Deps[0].Name != "alpha" {
		t.Errorf("first dep = %q, want alpha (sorted)", got.Deps[0].Name)
	}
	alpha := got.FindLockedDep("alpha")
	if alpha == nil || alpha.Commit != "abc123" || alpha.Tag != "v1.2.0" {
		t.Errorf("alpha = %+v", alpha)
	}
	if got.FindLockedDep("missing") != nil {
		t.Error("FindLockedDep(missing) != nil")
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock(filepath.Join(t.TempDir(), "neon.lock"))
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}
	if len(lf.Deps) != 0 {
		t.Errorf("deps = %d, want 0", len(lf.Deps))
	}
}
