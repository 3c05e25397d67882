// SPDX-License-Identifier: MPL-2.0

package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the conventional manifest name relative to a package root.
const ManifestFileName = "deps.toml"

var (
	// ErrManifestNotFound is returned when the manifest file does not exist.
	ErrManifestNotFound = errors.New("dependency manifest not found")
	// ErrManifestInvalid is the sentinel error wrapped by ManifestInvalidError.
	ErrManifestInvalid = errors.New("invalid dependency manifest")
)

type (
	// Manifest is the static, externally-authored list of a package's
	// required dependencies.
	Manifest struct {
		Dependencies []Dependency `toml:"dependency"`
	}

	// Dependency is a single manifest entry.
	Dependency struct {
		// Name is the dependency's package name.
		Name string `toml:"name"`
		// Version is the constraint: "=X.Y.Z" for an exact version,
		// ">=X.Y" for a minimum, or "" for any.
		Version string `toml:"version"`
		// Source optionally points at a local source tree; when set the
		// dependency is linked from there instead of a registry.
		Source string `toml:"source,omitempty"`
	}

	// ManifestInvalidError reports a manifest that exists but cannot be used.
	// It wraps ErrManifestInvalid for errors.Is() compatibility.
	ManifestInvalidError struct {
		Path   string
		Reason string
		Cause  error
	}
)

// Error implements the error interface.
func (e *ManifestInvalidError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid dependency manifest %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid dependency manifest %s: %s", e.Path, e.Reason)
}

// Unwrap returns ErrManifestInvalid so callers can use errors.Is for detection.
func (e *ManifestInvalidError) Unwrap() error { return ErrManifestInvalid }

// LoadManifest reads and validates a dependency manifest. A missing file is
// reported via ErrManifestNotFound so the install pipeline can abort before
// any dependency work happens.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestInvalidError{Path: path, Reason: "decode failed", Cause: err}
	}

	for i, dep := range m.Dependencies {
		if strings.TrimSpace(dep.Name) == "" {
			return nil, &ManifestInvalidError{
				Path:   path,
				Reason: fmt.Sprintf("dependency %d has no name", i),
			}
		}
		if _, _, err := parseConstraint(dep.Version); err != nil {
			return nil, &ManifestInvalidError{
				Path:   path,
				Reason: fmt.Sprintf("dependency %q has a bad version constraint", dep.Name),
				Cause:  err,
			}
		}
	}

	return &m, nil
}

// constraintOp is the comparison a constraint requires.
type constraintOp int

const (
	constraintAny constraintOp = iota
	constraintExact
	constraintAtLeast
)

// parseConstraint splits a manifest version constraint into its operator and
// the bare version. Supported forms: "", "=X.Y.Z" and ">=X.Y.Z".
func parseConstraint(constraint string) (constraintOp, string, error) {
	c := strings.TrimSpace(constraint)
	switch {
	case c == "":
		return constraintAny, "", nil
	case strings.HasPrefix(c, ">="):
		v := strings.TrimSpace(c[2:])
		if v == "" {
			return 0, "", fmt.Errorf("empty version after >=")
		}
		return constraintAtLeast, v, nil
	case strings.HasPrefix(c, "="):
		v := strings.TrimSpace(c[1:])
		if v == "" {
			return 0, "", fmt.Errorf("empty version after =")
		}
		return constraintExact, v, nil
	default:
		// A bare version means exact.
		return constraintExact, c, nil
	}
}

// Matches reports whether version satisfies the dependency's constraint.
func (d Dependency) Matches(version string) bool {
	op, want, err := parseConstraint(d.Version)
	if err != nil {
		return false
	}
	switch op {
	case constraintAny:
		return true
	case constraintExact:
		return compareVersions(version, want) == 0
	case constraintAtLeast:
		return compareVersions(version, want) >= 0
	default:
		return false
	}
}

// compareVersions compares dotted numeric versions segment by segment.
// Non-numeric segments compare lexically. Missing segments count as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		sa, sb := "0", "0"
		if i < len(as) && as[i] != "" {
			sa = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			sb = bs[i]
		}

		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		case sa != sb:
			if sa < sb {
				return -1
			}
			return 1
		}
	}
	return 0
}
