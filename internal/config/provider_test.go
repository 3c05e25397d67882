// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"labkit/internal/issue"
)

func TestProvider_Load_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.cue")
	content := `
env_name: "sandbox"
packages: [{name: "bst", root: "/work/bst"}]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EnvName != "sandbox" {
		t.Errorf("expected env name sandbox, got %q", cfg.EnvName)
	}
	if len(cfg.Packages) != 1 {
		t.Errorf("expected 1 package, got %d", len(cfg.Packages))
	}
}

func TestProvider_Load_MissingExplicitFile(t *testing.T) {
	_, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}

	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("expected ActionableError, got %T: %v", err, err)
	}
	if actionable.Operation != "load configuration" {
		t.Errorf("unexpected operation %q", actionable.Operation)
	}
	if len(actionable.Suggestions) == 0 {
		t.Error("expected suggestions on the error")
	}
}

func TestProvider_Load_DefaultsFromEmptyDir(t *testing.T) {
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultRuntime != RuntimeNative {
		t.Errorf("expected default runtime, got %q", cfg.DefaultRuntime)
	}
}

func TestLoadResolved_ReportsPath(t *testing.T) {
	cfgDir := t.TempDir()
	writeConfigFile(t, cfgDir, `env_name: "sandbox"`)

	_, resolved, err := LoadResolved(context.Background(), LoadOptions{ConfigDirPath: cfgDir})
	if err != nil {
		t.Fatalf("LoadResolved failed: %v", err)
	}
	if resolved != filepath.Join(cfgDir, "config.cue") {
		t.Errorf("unexpected resolved path %q", resolved)
	}

	_, resolved, err = LoadResolved(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadResolved failed: %v", err)
	}
	if resolved != "" {
		t.Errorf("expected empty resolved path for defaults, got %q", resolved)
	}
}
