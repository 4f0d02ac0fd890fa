package manifest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestModuleNameFor(t *testing.T) {
	tests := []struct {
		name    string
		dep     Dependency
		depMan  *Manifest
		want    string
		wantErr bool
	}{
		{name: "json-kit", want: "json_kit"},
		{name: "json-kit", dep: Dependency{As: "jk"}, want: "jk"},
		{name: "json-kit", depMan: &Manifest{Project: Project{Name: "jsonkit"}}, want: "jsonkit"},
		{name: "json-kit", dep: Dependency{As: "jk"}, depMan: &Manifest{Project: Project{Name: "jsonkit"}}, want: "jk"},
		{name: "math", wantErr: true},
		{name: "x", dep: Dependency{As: "Array"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := moduleNameFor(tt.name, tt.dep, tt.depMan)
		if tt.wantErr {
			if err == nil {
				t.Errorf("moduleNameFor(%q, %+v) = %q, want error", tt.name, tt.dep, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("moduleNameFor(%q) error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("moduleNameFor(%q, %+v) = %q, want %q", tt.name, tt.dep, got, tt.want)
		}
	}
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeFile(t, filepath.Join(app, "neon.toml"), `
[project]
name = "app"

[dependencies]
strings-ext = { path = "../strext" }
`)
	writeFile(t, filepath.Join(root, "strext", "neon.toml"), `
[project]
name = "strext"
entry = "lib/main.nn"

[dependencies]
base = { path = "../base" }
`)
	writeFile(t, filepath.Join(root, "strext", "lib", "main.nn"), "function pad(s) { return s }\n")
	writeFile(t, filepath.Join(root, "base", "base.nn"), "var one = 1\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("resolved %d deps, want 2", len(deps))
	}
	if deps[0].Name != "base" || deps[1].Name != "strings-ext" {
		t.Errorf("order = [%s %s], want [base strings-ext]", deps[0].Name, deps[1].Name)
	}
	if deps[1].Module != "strext" {
		t.Errorf("module = %q, want strext", deps[1].Module)
	}
	if !strings.HasSuffix(deps[1].Entry, filepath.Join("lib", "main.nn")) {
		t.Errorf("entry = %q", deps[1].Entry)
	}
	if !strings.HasSuffix(deps[0].Entry, "base.nn") {
		t.Errorf("base entry = %q", deps[0].Entry)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if len(lf.Deps) != 2 {
		t.Fatalf("lock has %d deps, want 2", len(lf.Deps))
	}
	if d := lf.FindLockedDep("strings-ext"); d == nil || d.Path != "../strext" || d.Module != "strext" {
		t.Errorf("locked strings-ext = %+v", d)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "neon.toml"), "[dependencies]\ngone = { path = \"nowhere\" }\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(context.Background()); err == nil {
		t.Error("expected an error for a missing path dependency")
	}
}

func TestResolveModuleCollision(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "neon.toml"), `
[dependencies]
a = { path = "../a", as = "shared" }
b = { path = "../b", as = "shared" }
`)
	writeFile(t, filepath.Join(root, "a", "a.nn"), "")
	writeFile(t, filepath.Join(root, "b", "b.nn"), "")

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(m).Resolve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "shared") {
		t.Errorf("Resolve() error = %v, want collision on shared", err)
	}
}
