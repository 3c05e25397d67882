// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"testing"

	"labkit/internal/config"
	"labkit/internal/workbench"
)

func TestTargetPackages(t *testing.T) {
	t.Parallel()

	wb := workbench.New(&config.Config{
		Packages: []config.PackageConfig{
			{Name: "chatops", Root: "/src/chatops"},
			{Name: "bst", Root: "/src/bst"},
			{Name: "enclog", Root: "/src/enclog"},
		},
	})

	t.Run("explicit argument", func(t *testing.T) {
		t.Parallel()

		got := targetPackages(wb, []string{"bst"})
		if len(got) != 1 || got[0] != "bst" {
			t.Errorf("targetPackages() = %v, want [bst]", got)
		}
	})

	t.Run("no argument selects all in order", func(t *testing.T) {
		t.Parallel()

		got := targetPackages(wb, nil)
		want := []config.PackageName{"chatops", "bst", "enclog"}
		if len(got) != len(want) {
			t.Fatalf("targetPackages() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("targetPackages()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})
}
