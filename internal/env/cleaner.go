// SPDX-License-Identifier: MPL-2.0

package env

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

type (
	// CleanSpec names everything the Cleaner removes for one package.
	CleanSpec struct {
		// PackageRoot is the package's top-level directory.
		PackageRoot string
		// Environment is the package's environment; removed entirely.
		Environment *Environment
		// ArtifactDirs are removed relative to PackageRoot.
		// Defaults to build/, dist/ and the packaging metadata directory.
		ArtifactDirs []string
		// CacheDirNames are directory names removed recursively wherever they
		// appear under PackageRoot (compiled-code caches and the like).
		CacheDirNames []string
	}

	// Cleaner destroys environments and build artifacts. Removal of paths
	// that do not exist is not an error; Clean is safe to invoke repeatedly.
	Cleaner struct {
		logger *log.Logger
	}
)

// DefaultArtifactDirs are the artifact directories removed when a CleanSpec
// does not name its own.
var DefaultArtifactDirs = []string{"build", "dist", ".pkgmeta"}

// DefaultCacheDirNames are the cache directory names removed when a CleanSpec
// does not name its own.
var DefaultCacheDirNames = []string{"__pycache__", ".objcache"}

// NewCleaner creates a Cleaner. A nil logger disables logging.
func NewCleaner(logger *log.Logger) *Cleaner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cleaner{logger: logger}
}

// Clean removes the environment directory and all build artifacts named by
// the spec. It is unconditional: no confirmation, no dry-run, no partial
// selection. The only errors reported are actual removal failures.
func (c *Cleaner) Clean(spec CleanSpec) error {
	if spec.Environment != nil {
		if err := c.remove(spec.Environment.Path()); err != nil {
			return err
		}
	}

	artifacts := spec.ArtifactDirs
	if artifacts == nil {
		artifacts = DefaultArtifactDirs
	}
	for _, dir := range artifacts {
		if err := c.remove(filepath.Join(spec.PackageRoot, dir)); err != nil {
			return err
		}
	}

	cacheNames := spec.CacheDirNames
	if cacheNames == nil {
		cacheNames = DefaultCacheDirNames
	}
	return c.removeCaches(spec.PackageRoot, cacheNames)
}

func (c *Cleaner) remove(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	c.logger.Debug("removing", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clean %s: %w", path, err)
	}
	return nil
}

// removeCaches walks the package root and removes every directory whose name
// matches one of names. Matches are pruned from the walk so their contents
// are not revisited.
func (c *Cleaner) removeCaches(root string, names []string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The tree is being mutated under us; missing entries are fine.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || !nameSet[d.Name()] {
			return nil
		}
		if err := c.remove(path); err != nil {
			return err
		}
		return filepath.SkipDir
	})
}
