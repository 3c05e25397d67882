// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base at construction time.
type Option func(*Base)

// WithErrorChannel sizes the Err channel buffer. The default holds a single
// error; servers that can report several serve errors before the caller
// drains them need a larger one.
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, size)
	}
}
