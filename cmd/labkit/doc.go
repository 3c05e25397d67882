// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for labkit.
//
// This package implements the Cobra command hierarchy for the labkit CLI:
// the root command, the package pipeline commands (install, test, clean),
// configuration management, the chatops server, and the enclog utilities.
package cmd
