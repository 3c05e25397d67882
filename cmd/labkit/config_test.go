// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestApp() (*App, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return NewApp(Dependencies{Stdout: stdout, Stderr: stderr}), stdout, stderr
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		app, stdout, _ := newTestApp()
		path := writeConfigFile(t, `
env_name: "sandbox"
packages: [{name: "bst", root: "/work/bst"}]
`)

		if err := validateConfig(context.Background(), app, path); err != nil {
			t.Fatalf("validateConfig failed: %v", err)
		}
		if out := stdout.String(); !strings.Contains(out, "is valid") || !strings.Contains(out, path) {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("invalid field values", func(t *testing.T) {
		app, _, stderr := newTestApp()
		// A path separator in env_name survives config loading but fails
		// field validation.
		path := writeConfigFile(t, `
env_name: "py/env"
`)

		err := validateConfig(context.Background(), app, path)
		if err == nil {
			t.Fatal("expected error for invalid env_name")
		}
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			t.Fatalf("expected ExitError with code 1, got %v", err)
		}
		if out := stderr.String(); !strings.Contains(out, "is invalid") {
			t.Errorf("unexpected stderr: %q", out)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		app, _, stderr := newTestApp()
		path := writeConfigFile(t, `env_name: `)

		if err := validateConfig(context.Background(), app, path); err == nil {
			t.Fatal("expected error for malformed config file")
		}
		if stderr.Len() == 0 {
			t.Error("expected rendered guidance on stderr")
		}
	})
}

func TestNewConfigCommand_Subcommands(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp()
	cfgCmd := newConfigCommand(app)

	// The config-errors guidance suggests `labkit config validate` and
	// `labkit config show`; both must exist.
	for _, want := range []string{"show", "init", "validate", "path", "dump"} {
		found := false
		for _, sub := range cfgCmd.Commands() {
			if sub.Name() == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("config command is missing the %q subcommand", want)
		}
	}
}
