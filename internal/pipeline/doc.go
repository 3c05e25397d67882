// SPDX-License-Identifier: MPL-2.0

// Package pipeline runs ordered lists of named, fallible stages with
// fail-fast semantics: the first stage that exits non-zero (or errors)
// aborts the remaining stages. There are no retries, no timeouts and no
// aggregation of failures; one invocation produces at most one failed stage.
package pipeline
