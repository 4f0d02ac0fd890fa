package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LockFile records the exact revision every dependency resolved to.
type LockFile struct {
	Deps []LockedDep `yaml:"deps"`
}

// LockedDep is one resolved dependency.
type LockedDep struct {
	Name   string `yaml:"name"`
	Module string `yaml:"module"`
	Git    string `yaml:"git,omitempty"`
	Tag    string `yaml:"tag,omitempty"`
	Commit string `yaml:"commit,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// ReadLock parses a lock file. A missing file yields an empty lock.
func ReadLock(path string) (*LockFile, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &LockFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lf LockFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("lock file %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path with entries sorted by name.
func WriteLock(path string, lf *LockFile) error {
	sort.Slice(lf.Deps, func(i, j int) bool { return lf.Deps[i].Name < lf.Deps[j].Name })
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lf); err != nil {
		return fmt.Errorf("lock file %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lock file %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// FindLockedDep returns the entry for name, or nil.
func (lf *LockFile) FindLockedDep(name string) *LockedDep {
	for i := range lf.Deps {
		if lf.Deps[i].Name == name {
			return &lf.Deps[i]
		}
	}
	return nil
}
