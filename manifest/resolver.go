package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/chazu/neon/vm"
)

// ResolvedDep is a dependency available on the local filesystem.
type ResolvedDep struct {
	Name      string    // key in [dependencies]
	Module    string    // name scripts import it by
	LocalPath string    // directory holding the sources
	Entry     string    // script loaded by import, may be ""
	Manifest  *Manifest // the dependency's own manifest, may be nil
	Source    Dependency
}

// Resolver fetches dependencies and records them in neon.lock.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a resolver for the dependencies of m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve makes every dependency available locally and returns them with
// dependencies ahead of their dependents.
func (r *Resolver) Resolve(ctx context.Context) ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.manifest.DepsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	modules := make(map[string]string)
	order, err := r.resolveAll(ctx, r.manifest, resolved, modules)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(ctx, resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves the dependencies declared by owner, recursing into
// their own manifests.
func (r *Resolver) resolveAll(ctx context.Context, owner *Manifest, resolved map[string]*ResolvedDep, modules map[string]string) ([]ResolvedDep, error) {
	deps := owner.Dependencies
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}
		rd, err := r.resolveOne(ctx, owner, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if other, ok := modules[rd.Module]; ok {
			return nil, fmt.Errorf("dependencies %q and %q both import as %q", other, name, rd.Module)
		}
		modules[rd.Module] = name
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(ctx, rd.Manifest, resolved, modules)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// moduleNameFor picks the import name of a dependency: the consumer's "as"
// override, then the dependency's project name, then the sanitized key.
func moduleNameFor(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var module string
	switch {
	case dep.As != "":
		module = dep.As
	case depManifest != nil && depManifest.Project.Name != "":
		module = ModuleName(depManifest.Project.Name)
	default:
		module = ModuleName(name)
	}
	if IsReservedModule(module) {
		return "", fmt.Errorf("dependency %q would be imported as %q, which is a builtin name; set as = \"...\" in [dependencies]", name, module)
	}
	return module, nil
}

// entryFor returns the script an import of the dependency loads.
func entryFor(dir, name string, depManifest *Manifest) string {
	var candidates []string
	if depManifest != nil && depManifest.Project.Entry != "" {
		candidates = append(candidates, depManifest.EntryPath())
	}
	candidates = append(candidates,
		filepath.Join(dir, "index"+vm.SourceExt),
		filepath.Join(dir, name+vm.SourceExt))
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
	}
	return ""
}

func (r *Resolver) resolveOne(ctx context.Context, owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		dir = owner.dependencyDir(name, dep)
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		dir = abs
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, dir, err)
		}
	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(ctx, name, dep, dir); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	depManifest, err := Load(dir)
	if err != nil {
		depManifest = nil
	}
	module, err := moduleNameFor(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	return &ResolvedDep{
		Name:      name,
		Module:    module,
		LocalPath: dir,
		Entry:     entryFor(dir, name, depManifest),
		Manifest:  depManifest,
		Source:    dep,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(ctx, dep.Git, dir); err != nil {
			return err
		}
	} else {
		clean, err := gitIsClean(ctx, dir)
		if err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("%s has local changes; commit or remove them first", dir)
		}
		if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
			log.Infof("fetching %s", name)
			if err := gitFetch(ctx, dir); err != nil {
				return err
			}
		}
	}

	ref := dep.Tag
	if locked := r.lock.FindLockedDep(name); locked != nil && locked.Tag == dep.Tag && locked.Commit != "" {
		ref = locked.Commit
	}
	if ref != "" {
		return gitCheckout(ctx, dir, ref)
	}
	return nil
}

func (r *Resolver) writeLock(ctx context.Context, resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name, Module: rd.Module}
		dep := rd.Source
		switch {
		case dep.Git != "":
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(ctx, rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		default:
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
