// SPDX-License-Identifier: MPL-2.0

// Package workbench assembles per-package install, test, and clean pipelines
// from the workbench configuration.
//
// The install pipeline provisions the package environment, resolves and
// installs the declared dependencies, and installs the package itself into
// the environment. The test pipeline runs the install stages first, then the
// package's test suite (when a test tree is configured), then lints the
// source tree and the test tree. Stages run strictly sequentially and the
// first failure aborts the rest. Clean removes the environment and all build
// artifacts unconditionally.
package workbench
