// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// It defines error types that carry remediation steps, plus a catalog of known
// issues with Markdown-formatted guidance that labkit renders when a pipeline
// stage fails.
package issue
