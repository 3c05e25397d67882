// SPDX-License-Identifier: MPL-2.0

// Package runtime provides the stage command execution runtime interface and
// implementations. Pipeline stages hand a shell snippet to a Runtime; the
// native runtime spawns the system shell while the virtual runtime interprets
// the snippet in-process with mvdan/sh.
package runtime
