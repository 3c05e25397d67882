// SPDX-License-Identifier: MPL-2.0

package env

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	binDirName     = "bin"
	pkgsDirName    = "pkgs"
	metaFileName   = "env.toml"
	recordFileName = "installed.toml"
)

type (
	// Environment is an isolated, named directory tree holding an installed
	// set of packages. One environment belongs to exactly one package's
	// workbench pipelines; environments are never shared.
	Environment struct {
		// Root is the directory environments are created under.
		Root string
		// Name is the environment name; the environment lives at Root/Name.
		Name string
	}

	// envMeta is the marker written into a freshly provisioned environment.
	envMeta struct {
		Name        string    `toml:"name"`
		CreatedAt   time.Time `toml:"created_at"`
		ProvisionBy string    `toml:"provisioned_by"`
	}
)

// NewEnvironment describes the environment named name under root. It does not
// touch the filesystem; use Provision to create it.
func NewEnvironment(root, name string) *Environment {
	return &Environment{Root: root, Name: name}
}

// Path returns the environment directory.
func (e *Environment) Path() string {
	return filepath.Join(e.Root, e.Name)
}

// BinDir returns the environment's executable directory.
func (e *Environment) BinDir() string {
	return filepath.Join(e.Path(), binDirName)
}

// PkgsDir returns the directory installed packages resolve from.
func (e *Environment) PkgsDir() string {
	return filepath.Join(e.Path(), pkgsDirName)
}

// RecordPath returns the environment's install log file.
func (e *Environment) RecordPath() string {
	return filepath.Join(e.Path(), recordFileName)
}

// Exists reports whether the environment directory is present.
func (e *Environment) Exists() bool {
	info, err := os.Stat(e.Path())
	return err == nil && info.IsDir()
}

// Provision creates the environment directory tree if it does not already
// exist. Re-provisioning an existing environment is not an error; the
// existing tree is reused as-is. Any creation failure is fatal to the caller.
func (e *Environment) Provision() error {
	for _, dir := range []string{e.Path(), e.BinDir(), e.PkgsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("provision environment %s: %w", e.Path(), err)
		}
	}

	metaPath := filepath.Join(e.Path(), metaFileName)
	if _, err := os.Stat(metaPath); err == nil {
		return nil
	}

	data, err := toml.Marshal(envMeta{
		Name:        e.Name,
		CreatedAt:   time.Now().UTC(),
		ProvisionBy: "labkit",
	})
	if err != nil {
		return fmt.Errorf("provision environment %s: %w", e.Path(), err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("provision environment %s: %w", e.Path(), err)
	}
	return nil
}
