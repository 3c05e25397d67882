// SPDX-License-Identifier: MPL-2.0

// Package retry invokes a target through an Invoker with parametrized
// retries. The blocking mode performs an initial attempt and then up to
// a configured number of repeats, sleeping between attempts according
// to a constant or exponential backoff policy. The async mode moves the
// retrying into a background goroutine and reports the final outcome to
// a callback, identified by a correlation ID returned to the caller.
package retry
