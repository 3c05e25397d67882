// SPDX-License-Identifier: MPL-2.0

package workbench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"labkit/internal/config"
	"labkit/internal/env"
	"labkit/internal/issue"
	"labkit/internal/pipeline"
	"labkit/internal/runtime"
)

type (
	// Workbench turns the configuration into runnable pipelines.
	Workbench struct {
		cfg      *config.Config
		runtimes *runtime.Registry
		cleaner  *env.Cleaner
		logger   *log.Logger
		stdout   io.Writer
		stderr   io.Writer
	}

	// Option configures a Workbench.
	Option func(*Workbench)
)

// WithLogger sets the logger used by the workbench and its pipelines.
func WithLogger(logger *log.Logger) Option {
	return func(w *Workbench) {
		w.logger = logger
	}
}

// WithOutput redirects stage command output. Defaults to the process stdio.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(w *Workbench) {
		w.stdout = stdout
		w.stderr = stderr
	}
}

// WithRegistry replaces the runtime registry. Tests use this to inject a
// registry with a stub runtime.
func WithRegistry(reg *runtime.Registry) Option {
	return func(w *Workbench) {
		w.runtimes = reg
	}
}

// New creates a Workbench over the given configuration.
func New(cfg *config.Config, opts ...Option) *Workbench {
	w := &Workbench{
		cfg:      cfg,
		runtimes: runtime.NewRegistry(),
		logger:   log.New(io.Discard),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cleaner = env.NewCleaner(w.logger)
	return w
}

// Package resolves a configured package by name.
func (w *Workbench) Package(name config.PackageName) (*config.PackageConfig, error) {
	pkg, ok := w.cfg.FindPackage(name)
	if !ok {
		ctx := issue.NewErrorContext().
			WithOperation("resolve package").
			WithResource(string(name)).
			WithSuggestion("Check the package name for typos").
			WithSuggestion("Use 'labkit list' to see configured packages")
		if len(w.cfg.Packages) == 0 {
			ctx = ctx.WithSuggestion("Add a packages entry to the configuration file")
		}
		return nil, ctx.
			Wrap(fmt.Errorf("package %q is not configured", name)).
			BuildError()
	}
	return pkg, nil
}

// Packages returns the configured package entries.
func (w *Workbench) Packages() []config.PackageConfig {
	return w.cfg.Packages
}

// Environment returns the environment for a package: <root>/<env_name> by
// default, or <env_root>/<package>/<env_name> when a shared environment root
// is configured.
func (w *Workbench) Environment(pkg *config.PackageConfig) *env.Environment {
	envName := string(w.cfg.EnvName)
	if envName == "" {
		envName = config.DefaultEnvName
	}
	if w.cfg.EnvRoot != "" {
		return env.NewEnvironment(filepath.Join(w.cfg.EnvRoot, string(pkg.Name)), envName)
	}
	return env.NewEnvironment(pkg.Root, envName)
}

// Install runs the install pipeline for the named package.
func (w *Workbench) Install(ctx context.Context, name config.PackageName) (*pipeline.Outcome, error) {
	pkg, err := w.Package(name)
	if err != nil {
		return nil, err
	}
	return w.InstallPipeline(pkg).Run(ctx), nil
}

// Test runs the test pipeline for the named package: the install stages,
// then test execution (when configured), then the lint stages.
func (w *Workbench) Test(ctx context.Context, name config.PackageName) (*pipeline.Outcome, error) {
	pkg, err := w.Package(name)
	if err != nil {
		return nil, err
	}
	return w.TestPipeline(pkg).Run(ctx), nil
}

// Clean removes the named package's environment and build artifacts.
// Missing paths are not errors; Clean is safe to invoke repeatedly.
func (w *Workbench) Clean(_ context.Context, name config.PackageName) error {
	pkg, err := w.Package(name)
	if err != nil {
		return err
	}
	return w.cleaner.Clean(env.CleanSpec{
		PackageRoot: pkg.Root,
		Environment: w.Environment(pkg),
	})
}

// registryPaths flattens the configured registries for the installer.
func (w *Workbench) registryPaths() []string {
	paths := make([]string, 0, len(w.cfg.Registries))
	for _, reg := range w.cfg.Registries {
		paths = append(paths, string(reg))
	}
	return paths
}
