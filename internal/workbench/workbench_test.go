// SPDX-License-Identifier: MPL-2.0

package workbench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"labkit/internal/config"
	"labkit/internal/env"
	"labkit/internal/issue"
	"labkit/internal/pipeline"
)

// newTestPackage lays out a package checkout under a temp dir: a source tree
// with one file, a test tree, and a manifest without dependencies.
func newTestPackage(t *testing.T, name string) config.PackageConfig {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "core.py"), []byte("# core\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "test"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "deps.toml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	return config.PackageConfig{
		Name:      config.PackageName(name),
		Root:      root,
		SourceDir: "src",
		TestsDir:  "test",
		Manifest:  "deps.toml",
	}
}

func newTestConfig(t *testing.T, packages ...config.PackageConfig) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	// The virtual runtime keeps stage commands hermetic in tests.
	cfg.DefaultRuntime = config.RuntimeVirtual
	cfg.Packages = packages
	return cfg
}

func TestWorkbench_Install(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")

	// One manifest dependency, resolvable from a registry.
	registry := t.TempDir()
	depDir := filepath.Join(registry, "alpha-1.2.0")
	if err := os.MkdirAll(depDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(depDir, "alpha.py"), []byte("# alpha\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := "[[dependency]]\nname = \"alpha\"\nversion = \"1.2.0\"\n"
	if err := os.WriteFile(filepath.Join(pkg.Root, "deps.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := newTestConfig(t, pkg)
	cfg.Registries = []config.RegistryPath{config.RegistryPath(registry)}
	w := New(cfg)

	outcome, err := w.Install(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got %v", outcome.Err)
	}

	wantStages := []string{StageProvision, StageDependencies, StagePackage}
	if len(outcome.Completed) != len(wantStages) {
		t.Fatalf("expected stages %v, got %v", wantStages, outcome.Completed)
	}
	for i, name := range wantStages {
		if outcome.Completed[i] != name {
			t.Errorf("stage %d: expected %q, got %q", i, name, outcome.Completed[i])
		}
	}

	environment := w.Environment(&pkg)
	if !environment.Exists() {
		t.Error("expected environment to exist after install")
	}
	if _, err := os.Stat(filepath.Join(environment.PkgsDir(), "alpha", "alpha.py")); err != nil {
		t.Errorf("expected dependency to be installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(environment.PkgsDir(), "bst")); err != nil {
		t.Errorf("expected package to be installed: %v", err)
	}
}

func TestWorkbench_Install_EditablePackage(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on Windows")
	}

	pkg := newTestPackage(t, "bst")
	pkg.Editable = true
	w := New(newTestConfig(t, pkg))

	outcome, err := w.Install(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got %v", outcome.Err)
	}

	installed := filepath.Join(w.Environment(&pkg).PkgsDir(), "bst")
	info, err := os.Lstat(installed)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("expected editable install to be a symlink")
	}

	// Edits to the source tree are visible through the installed package.
	if err := os.WriteFile(filepath.Join(pkg.Root, "src", "extra.py"), []byte("# extra\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(installed, "extra.py")); err != nil {
		t.Errorf("expected live source edit to be visible: %v", err)
	}
}

func TestWorkbench_Install_MissingManifest(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	if err := os.Remove(filepath.Join(pkg.Root, "deps.toml")); err != nil {
		t.Fatal(err)
	}
	w := New(newTestConfig(t, pkg))

	outcome, err := w.Install(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if outcome.Success() {
		t.Fatal("expected failure for missing manifest")
	}
	if got := outcome.FailedStage(); got != StageDependencies {
		t.Errorf("expected failed stage %q, got %q", StageDependencies, got)
	}

	var stageErr *pipeline.StageError
	if !errors.As(outcome.Err, &stageErr) {
		t.Fatalf("expected StageError, got %T", outcome.Err)
	}
	if !errors.Is(stageErr.Result.Error, env.ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", stageErr.Result.Error)
	}

	// The package stage never ran.
	if _, err := os.Stat(filepath.Join(w.Environment(&pkg).PkgsDir(), "bst")); !os.IsNotExist(err) {
		t.Error("package stage should not have run after a dependency failure")
	}
}

func TestWorkbench_Test_StageOrder(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	pkg.TestCmd = `echo "tests" >>"$LABKIT_ROOT/order.txt"`
	pkg.LintCmd = `echo "lint:$LABKIT_TARGET" >>"$LABKIT_ROOT/order.txt"`
	w := New(newTestConfig(t, pkg))

	outcome, err := w.Test(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected success, got %v", outcome.Err)
	}

	data, err := os.ReadFile(filepath.Join(pkg.Root, "order.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 stage markers, got %d: %q", len(lines), lines)
	}
	if lines[0] != "tests" {
		t.Errorf("expected tests to run first, got %q", lines[0])
	}
	if want := "lint:" + filepath.Join(pkg.Root, "src"); lines[1] != want {
		t.Errorf("expected source lint second: got %q, want %q", lines[1], want)
	}
	if want := "lint:" + filepath.Join(pkg.Root, "test"); lines[2] != want {
		t.Errorf("expected test lint third: got %q, want %q", lines[2], want)
	}
}

func TestWorkbench_Test_FailFast(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	pkg.TestCmd = `exit 3`
	pkg.LintCmd = `echo "lint" >>"$LABKIT_ROOT/order.txt"`
	w := New(newTestConfig(t, pkg))

	outcome, err := w.Test(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if outcome.Success() {
		t.Fatal("expected failure")
	}
	if outcome.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", outcome.ExitCode)
	}
	if got := outcome.FailedStage(); got != StageTests {
		t.Errorf("expected failed stage %q, got %q", StageTests, got)
	}

	// Lint stages never ran.
	if _, err := os.Stat(filepath.Join(pkg.Root, "order.txt")); !os.IsNotExist(err) {
		t.Error("lint stages should not have run after a test failure")
	}
}

func TestWorkbench_Test_LintFailurePropagates(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	pkg.TestCmd = `exit 0`
	pkg.LintCmd = `exit 1`
	w := New(newTestConfig(t, pkg))

	outcome, err := w.Test(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}
	if outcome.Success() {
		t.Fatal("expected failure")
	}
	if got := outcome.FailedStage(); got != StageLintSource {
		t.Errorf("expected failed stage %q, got %q", StageLintSource, got)
	}
}

func TestWorkbench_TestPipeline_NoTestsDir(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "enclog")
	pkg.TestsDir = ""
	w := New(newTestConfig(t, pkg))

	stages := w.TestPipeline(&pkg).Stages()
	want := []string{StageProvision, StageDependencies, StagePackage, StageLintSource}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i, name := range want {
		if stages[i] != name {
			t.Errorf("stage %d: expected %q, got %q", i, name, stages[i])
		}
	}
}

func TestWorkbench_Clean(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	w := New(newTestConfig(t, pkg))

	if outcome, err := w.Install(context.Background(), "bst"); err != nil || !outcome.Success() {
		t.Fatalf("install failed: %v %v", err, outcome)
	}
	for _, dir := range []string{"build", "dist"} {
		if err := os.MkdirAll(filepath.Join(pkg.Root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Clean(context.Background(), "bst"); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	if w.Environment(&pkg).Exists() {
		t.Error("expected environment to be removed")
	}
	for _, dir := range []string{"build", "dist"} {
		if _, err := os.Stat(filepath.Join(pkg.Root, dir)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", dir)
		}
	}
	if _, err := os.Stat(filepath.Join(pkg.Root, "src", "core.py")); err != nil {
		t.Errorf("clean must not touch the source tree: %v", err)
	}

	// Clean is idempotent.
	if err := w.Clean(context.Background(), "bst"); err != nil {
		t.Fatalf("second Clean failed: %v", err)
	}
}

func TestWorkbench_CleanThenInstall(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	w := New(newTestConfig(t, pkg))

	if err := w.Clean(context.Background(), "bst"); err != nil {
		t.Fatalf("Clean on fresh package failed: %v", err)
	}
	outcome, err := w.Install(context.Background(), "bst")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !outcome.Success() {
		t.Fatalf("expected clean-then-install to succeed, got %v", outcome.Err)
	}
}

func TestWorkbench_Package_NotConfigured(t *testing.T) {
	t.Parallel()

	w := New(newTestConfig(t))

	_, err := w.Package("ghost")
	if err == nil {
		t.Fatal("expected error for unconfigured package")
	}
	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("expected ActionableError, got %T: %v", err, err)
	}
	if len(actionable.Suggestions) == 0 {
		t.Error("expected suggestions on the error")
	}
}

func TestWorkbench_Environment_SharedRoot(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	cfg := newTestConfig(t, pkg)
	cfg.EnvRoot = filepath.Join(t.TempDir(), "envs")
	w := New(cfg)

	environment := w.Environment(&pkg)
	want := filepath.Join(cfg.EnvRoot, "bst", string(config.DefaultEnvName))
	if environment.Path() != want {
		t.Errorf("expected env path %q, got %q", want, environment.Path())
	}
}

func TestWorkbench_Install_ReusesEnvironment(t *testing.T) {
	t.Parallel()

	pkg := newTestPackage(t, "bst")
	w := New(newTestConfig(t, pkg))

	if outcome, err := w.Install(context.Background(), "bst"); err != nil || !outcome.Success() {
		t.Fatalf("first install failed: %v %v", err, outcome)
	}

	// Drop a marker into the environment; a second install must not wipe it.
	marker := filepath.Join(w.Environment(&pkg).Path(), "marker.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	if outcome, err := w.Install(context.Background(), "bst"); err != nil || !outcome.Success() {
		t.Fatalf("second install failed: %v %v", err, outcome)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("re-install should reuse the environment: %v", err)
	}
}
