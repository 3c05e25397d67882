// SPDX-License-Identifier: MPL-2.0

// Package serverbase carries the lifecycle plumbing shared by labkit's
// long-running servers: the chatops webhook listener and the SSH console.
//
// A Base embeds into a concrete server and owns its state machine
// (created, starting, running, stopping, stopped, failed), the goroutine
// accounting needed for graceful shutdown, and the channel that surfaces
// asynchronous serve errors. State reads are atomic so callers can poll
// without taking a lock.
package serverbase
