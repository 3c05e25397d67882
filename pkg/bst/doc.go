// SPDX-License-Identifier: MPL-2.0

// Package bst implements business state transitions: named, versioned
// transition graphs, a state machine validating and recording object
// transitions against them, and pluggable persistence backends
// (in-memory, Redis, SQLite).
//
// A definition is a directed graph of states. It may be cyclic and may
// have multiple roots (states no edge points at). Objects enter a graph
// at a root and move along edges; transitions outside the graph are
// rejected unless forced. Every successful transition is persisted with
// its full context and appended to the object's history.
package bst
