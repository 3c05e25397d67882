// SPDX-License-Identifier: MPL-2.0

// Package config handles workbench configuration using Viper with CUE as the
// file format.
//
// Configuration is loaded from ~/.config/labkit/config.cue (or the XDG
// equivalent on Linux, ~/Library/Application Support/labkit/config.cue on
// macOS, %APPDATA%\labkit\config.cue on Windows), with a config.cue in the
// current directory as a fallback. The configuration describes the managed
// packages, their dependency registries, the environment layout, and the
// execution runtime for stage commands.
//
// Configuration validation is performed against a CUE schema
// (config_schema.cue) to ensure type safety and provide clear error messages
// for invalid configurations.
package config
