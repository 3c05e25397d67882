// SPDX-License-Identifier: MPL-2.0

// Package env manages isolated package environments: provisioning the
// environment directory tree, installing manifest-declared dependencies and
// the package itself (optionally in editable mode), and destroying the
// environment together with build artifacts.
package env
