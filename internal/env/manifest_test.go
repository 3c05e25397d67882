// SPDX-License-Identifier: MPL-2.0

package env

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ManifestFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
[[dependency]]
name = "configkit"
version = ">=1.2"

[[dependency]]
name = "wire"
version = "=0.9.1"
source = "../wire"
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Dependencies) != 2 {
		t.Fatalf("got %d dependencies, want 2", len(m.Dependencies))
	}
	if m.Dependencies[0].Name != "configkit" || m.Dependencies[0].Version != ">=1.2" {
		t.Errorf("dependency 0 = %+v", m.Dependencies[0])
	}
	if m.Dependencies[1].Source != "../wire" {
		t.Errorf("dependency 1 source = %q", m.Dependencies[1].Source)
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "deps.toml"))
	if !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("err = %v, want ErrManifestNotFound", err)
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", `[[dependency`},
		{"missing name", "[[dependency]]\nversion = \"=1.0\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tt.content))
			if !errors.Is(err, ErrManifestInvalid) {
				t.Errorf("err = %v, want ErrManifestInvalid", err)
			}
		})
	}
}

func TestDependency_Matches(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
	}{
		{"", "0.0.1", true},
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"1.2.3", "1.2.3", true}, // bare version means exact
		{">=1.2", "1.2", true},
		{">=1.2", "1.10", true}, // numeric, not lexical
		{">=1.2", "1.1.9", false},
		{">=1.2", "2.0", true},
		{"=1.2", "1.2.0", true}, // missing segments count as zero
	}

	for _, tt := range tests {
		d := Dependency{Name: "x", Version: tt.constraint}
		if got := d.Matches(tt.version); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.constraint, tt.version, got, tt.want)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.2", "1.10", -1},
		{"2.0", "1.9.9", 1},
		{"1.0-rc1", "1.0-rc2", -1},
	}

	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
