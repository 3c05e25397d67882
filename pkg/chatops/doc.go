// SPDX-License-Identifier: MPL-2.0

// Package chatops provides an operator command server for lab environments.
//
// Commands are registered on a Registry and can be invoked over two
// transports: an HTTP webhook endpoint that answers JSON on a configured
// URL path (and plain 404 everywhere else), and an SSH operator console
// with token-based authentication and an interactive prompt. Both servers
// share the same Registry, so a command registered once is reachable from
// chat integrations and operator sessions alike.
package chatops
