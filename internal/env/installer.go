// SPDX-License-Identifier: MPL-2.0

package env

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

// ErrDependencyUnresolved is returned when no registry candidate or local
// source satisfies a manifest entry.
var ErrDependencyUnresolved = errors.New("dependency could not be resolved")

type (
	// Installer installs dependencies and packages into one environment.
	Installer struct {
		env *Environment
		// registries are directories searched for dependency candidates,
		// in order. A candidate is a directory named <name>-<version>.
		registries []string
		logger     *log.Logger
	}

	// InstallRecord is the environment's install log: every dependency and
	// package registration, in install order.
	InstallRecord struct {
		Entries []RecordEntry `toml:"entry"`
	}

	// RecordEntry is one installed dependency or package.
	RecordEntry struct {
		Name        string    `toml:"name"`
		Version     string    `toml:"version,omitempty"`
		Source      string    `toml:"source"`
		Editable    bool      `toml:"editable,omitempty"`
		InstalledAt time.Time `toml:"installed_at"`
	}
)

// NewInstaller creates an installer for the given environment.
// A nil logger disables logging.
func NewInstaller(environment *Environment, registries []string, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Installer{env: environment, registries: registries, logger: logger}
}

// InstallDeps installs every manifest entry into the environment. There are
// no partial-success semantics: the first entry that cannot be resolved or
// copied fails the whole call, and entries installed before the failure are
// left in place for the Cleaner.
func (i *Installer) InstallDeps(m *Manifest) error {
	for _, dep := range m.Dependencies {
		if err := i.installDep(dep); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) installDep(dep Dependency) error {
	src, version, err := i.resolve(dep)
	if err != nil {
		return err
	}

	dst := filepath.Join(i.env.PkgsDir(), dep.Name)
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("install dependency %s: %w", dep.Name, err)
	}

	i.logger.Info("dependency installed", "name", dep.Name, "version", version, "from", src)

	return i.record(RecordEntry{
		Name:        dep.Name,
		Version:     version,
		Source:      src,
		InstalledAt: time.Now().UTC(),
	})
}

// resolve locates the source tree for a dependency. Local sources win over
// registries; registry candidates are directories named <name>-<version>
// and the highest matching version is chosen.
func (i *Installer) resolve(dep Dependency) (source, version string, err error) {
	if dep.Source != "" {
		info, statErr := os.Stat(dep.Source)
		if statErr != nil || !info.IsDir() {
			return "", "", fmt.Errorf("%w: %s: local source %q is not a directory",
				ErrDependencyUnresolved, dep.Name, dep.Source)
		}
		return dep.Source, strings.TrimLeft(dep.Version, ">= "), nil
	}

	type candidate struct {
		path    string
		version string
	}
	var candidates []candidate

	prefix := dep.Name + "-"
	for _, reg := range i.registries {
		entries, readErr := os.ReadDir(reg)
		if readErr != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
				continue
			}
			v := strings.TrimPrefix(entry.Name(), prefix)
			if dep.Matches(v) {
				candidates = append(candidates, candidate{
					path:    filepath.Join(reg, entry.Name()),
					version: v,
				})
			}
		}
	}

	if len(candidates) == 0 {
		return "", "", fmt.Errorf("%w: %s %s", ErrDependencyUnresolved, dep.Name, dep.Version)
	}

	sort.Slice(candidates, func(a, b int) bool {
		return compareVersions(candidates[a].version, candidates[b].version) > 0
	})
	return candidates[0].path, candidates[0].version, nil
}

// InstallPackage registers the package's own source tree in the environment.
// In editable mode the environment resolves the package to the live source
// tree through a symlink; otherwise the tree is copied. Re-installing
// replaces the previous registration.
func (i *Installer) InstallPackage(name, srcDir string, editable bool) error {
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("install package %s: source %q is not a directory", name, srcDir)
	}

	abs, err := filepath.Abs(srcDir)
	if err != nil {
		return fmt.Errorf("install package %s: %w", name, err)
	}

	dst := filepath.Join(i.env.PkgsDir(), name)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("install package %s: %w", name, err)
	}

	if editable {
		if err := os.Symlink(abs, dst); err != nil {
			return fmt.Errorf("install package %s (editable): %w", name, err)
		}
	} else {
		if err := copyTree(abs, dst); err != nil {
			return fmt.Errorf("install package %s: %w", name, err)
		}
	}

	i.logger.Info("package installed", "name", name, "editable", editable, "from", abs)

	return i.record(RecordEntry{
		Name:        name,
		Source:      abs,
		Editable:    editable,
		InstalledAt: time.Now().UTC(),
	})
}

// record appends an entry to the environment's install log.
func (i *Installer) record(entry RecordEntry) error {
	rec, err := LoadRecord(i.env)
	if err != nil {
		return err
	}
	rec.Entries = append(rec.Entries, entry)

	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("write install record: %w", err)
	}
	if err := os.WriteFile(i.env.RecordPath(), data, 0o644); err != nil {
		return fmt.Errorf("write install record: %w", err)
	}
	return nil
}

// LoadRecord reads the environment's install log. A missing log is an empty
// record, not an error.
func LoadRecord(environment *Environment) (*InstallRecord, error) {
	data, err := os.ReadFile(environment.RecordPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &InstallRecord{}, nil
		}
		return nil, fmt.Errorf("read install record: %w", err)
	}

	var rec InstallRecord
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode install record: %w", err)
	}
	return &rec, nil
}

// Lookup returns the latest record entry for name, or nil.
func (r *InstallRecord) Lookup(name string) *RecordEntry {
	for idx := len(r.Entries) - 1; idx >= 0; idx-- {
		if r.Entries[idx].Name == name {
			return &r.Entries[idx]
		}
	}
	return nil
}

// copyTree copies a directory tree, replacing dst if it exists. Symlinks
// inside the tree are recreated pointing at their original targets.
func copyTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
