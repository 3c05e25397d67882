// SPDX-License-Identifier: MPL-2.0

package workbench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"labkit/internal/config"
	"labkit/internal/env"
	"labkit/internal/pipeline"
	"labkit/internal/runtime"
)

// Stage names, in pipeline order.
const (
	StageProvision    = "provision"
	StageDependencies = "dependencies"
	StagePackage      = "package"
	StageTests        = "tests"
	StageLintSource   = "lint-source"
	StageLintTests    = "lint-tests"
)

const (
	// DefaultLintCmd is the lint command used when a package does not
	// override it. The tool's own exit code decides pass or fail.
	DefaultLintCmd = `flake8 --count "$LABKIT_TARGET"`

	// DefaultTestCmd is the test command used when a package does not
	// override it. Coverage is scoped to the package's own namespace and
	// output capture is disabled so test output streams through.
	DefaultTestCmd = `pytest --capture=no --cov="$LABKIT_PACKAGE" "$LABKIT_TARGET"`
)

// InstallPipeline builds the install pipeline for a package:
// provision the environment, install dependencies, install the package.
func (w *Workbench) InstallPipeline(pkg *config.PackageConfig) *pipeline.Pipeline {
	p := pipeline.New(fmt.Sprintf("install %s", pkg.Name), w.logger)
	w.appendInstallStages(p, pkg)
	return p
}

// TestPipeline builds the test pipeline for a package: the install stages,
// then the test suite when a test tree is configured, then lint over the
// source tree and the test tree.
func (w *Workbench) TestPipeline(pkg *config.PackageConfig) *pipeline.Pipeline {
	p := pipeline.New(fmt.Sprintf("test %s", pkg.Name), w.logger)
	w.appendInstallStages(p, pkg)

	if pkg.TestsDir != "" {
		p.Append(StageTests, w.commandStage(pkg, testCmd(pkg), filepath.Join(pkg.Root, pkg.TestsDir)))
	}
	p.Append(StageLintSource, w.commandStage(pkg, lintCmd(pkg), filepath.Join(pkg.Root, pkg.SourceDir)))
	if pkg.TestsDir != "" {
		p.Append(StageLintTests, w.commandStage(pkg, lintCmd(pkg), filepath.Join(pkg.Root, pkg.TestsDir)))
	}
	return p
}

func (w *Workbench) appendInstallStages(p *pipeline.Pipeline, pkg *config.PackageConfig) {
	environment := w.Environment(pkg)

	p.Append(StageProvision, func(_ context.Context) *runtime.Result {
		if err := environment.Provision(); err != nil {
			return runtime.NewErrorResult(1, err)
		}
		return nil
	})

	p.Append(StageDependencies, func(_ context.Context) *runtime.Result {
		manifest, err := env.LoadManifest(filepath.Join(pkg.Root, pkg.Manifest))
		if err != nil {
			return runtime.NewErrorResult(1, err)
		}
		installer := env.NewInstaller(environment, w.registryPaths(), w.logger)
		if err := installer.InstallDeps(manifest); err != nil {
			return runtime.NewErrorResult(1, err)
		}
		return nil
	})

	p.Append(StagePackage, func(_ context.Context) *runtime.Result {
		installer := env.NewInstaller(environment, w.registryPaths(), w.logger)
		srcDir := filepath.Join(pkg.Root, pkg.SourceDir)
		if err := installer.InstallPackage(string(pkg.Name), srcDir, pkg.Editable); err != nil {
			return runtime.NewErrorResult(1, err)
		}
		return nil
	})
}

// commandStage runs a shell snippet through the package's runtime with the
// stage environment applied, streaming output to the workbench writers.
func (w *Workbench) commandStage(pkg *config.PackageConfig, script, target string) pipeline.StageFunc {
	return func(ctx context.Context) *runtime.Result {
		rt, err := w.runtimes.Get(runtime.RuntimeType(w.cfg.Runtime(pkg)))
		if err != nil {
			return runtime.NewErrorResult(1, err)
		}

		ectx := &runtime.ExecutionContext{
			Script:  script,
			Context: ctx,
			WorkDir: pkg.Root,
			Env:     w.stageEnv(pkg, target),
			Stdout:  w.stdout,
			Stderr:  w.stderr,
		}
		if err := rt.Validate(ectx); err != nil {
			return runtime.NewErrorResult(1, err)
		}
		return rt.Execute(ectx)
	}
}

// stageEnv is the environment overlay every stage command sees. The
// environment's bin directory is prepended to PATH so tools installed into
// the environment win over host tools.
func (w *Workbench) stageEnv(pkg *config.PackageConfig, target string) map[string]string {
	environment := w.Environment(pkg)
	vars := map[string]string{
		"LABKIT_PACKAGE": string(pkg.Name),
		"LABKIT_ROOT":    pkg.Root,
		"LABKIT_ENV":     environment.Path(),
		"LABKIT_ENV_BIN": environment.BinDir(),
		"LABKIT_SRC":     filepath.Join(pkg.Root, pkg.SourceDir),
		"LABKIT_TARGET":  target,
		"PATH":           environment.BinDir() + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
	if pkg.TestsDir != "" {
		vars["LABKIT_TESTS"] = filepath.Join(pkg.Root, pkg.TestsDir)
	}
	return vars
}

func lintCmd(pkg *config.PackageConfig) string {
	if pkg.LintCmd != "" {
		return pkg.LintCmd
	}
	return DefaultLintCmd
}

func testCmd(pkg *config.PackageConfig) string {
	if pkg.TestCmd != "" {
		return pkg.TestCmd
	}
	return DefaultTestCmd
}
