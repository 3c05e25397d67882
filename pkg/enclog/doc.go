// SPDX-License-Identifier: MPL-2.0

// Package enclog provides encrypted logging: log records whose message
// payload is Fernet-encrypted before it reaches the log output. An
// encrypted message travels as "enclogdata:<token>" so logs can be
// shipped and stored as usual while the payload stays opaque without
// the key. The reading side decrypts such tokens in place, either over
// a finished stream (Open) or following a growing file (Tail).
package enclog
