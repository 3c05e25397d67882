// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Base is the lifecycle core a server embeds. It tracks the state machine,
// the goroutines the server spawns, and the channel that carries serve
// errors back to the caller.
//
// A Base is single-use. Once it reaches StateStopped or StateFailed, build
// a new server rather than restarting this one.
type Base struct {
	state   atomic.Int32
	stateMu sync.Mutex // guards lastErr and failure transitions

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedCh chan struct{}
	errCh     chan error
	lastErr   error
}

// NewBase returns a Base in StateCreated. The error channel holds one
// pending error unless WithErrorChannel raised the buffer.
func NewBase(opts ...Option) *Base {
	b := &Base{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// State returns the current lifecycle state without locking.
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the server is accepting connections.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// StartedChannel is closed when the server reaches StateRunning. Start
// implementations select on it to know the serve goroutine came up.
func (b *Base) StartedChannel() <-chan struct{} {
	return b.startedCh
}

// Err returns the channel carrying asynchronous serve errors.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that moved the server to StateFailed, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// Context returns the server-scoped context, nil before the server started.
// Goroutines spawned by the server watch it for shutdown.
func (b *Base) Context() context.Context {
	return b.ctx
}

// TransitionToStarting moves Created to Starting at the top of Start. It
// fails when the server was already started or when ctx is already
// cancelled; a cancelled ctx moves the server straight to StateFailed.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	// ctx must be checked before the CAS: otherwise the serve goroutine
	// could reach StateRunning before the cancellation is noticed.
	select {
	case <-ctx.Done():
		b.TransitionToFailed(fmt.Errorf("context cancelled before start: %w", ctx.Err()))
		return b.lastErr
	default:
	}

	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", b.State())
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// TransitionToRunning marks the server ready and closes StartedChannel.
// A no-op unless the server is in StateStarting.
func (b *Base) TransitionToRunning() {
	if b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(b.startedCh)
	}
}

// TransitionToFailed records err, moves the server to StateFailed, and
// cancels the server context. Safe from any state, including Created.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	b.lastErr = err
	b.stateMu.Unlock()

	b.state.Store(int32(StateFailed))

	if b.cancel != nil {
		b.cancel()
	}

	b.SendError(err)
}

// TransitionToStopping begins shutdown. It returns true when this call won
// the transition and the caller should drain goroutines; false when the
// server never started, already stopped, or another Stop is in flight.
// Stopping a Created server moves it straight to StateStopped.
func (b *Base) TransitionToStopping() bool {
	for {
		current := State(b.state.Load())
		switch current {
		case StateStopped, StateStopping, StateFailed:
			return false
		case StateCreated:
			if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if !b.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				continue
			}
			if b.cancel != nil {
				b.cancel()
			}
			return true
		default:
			return false
		}
	}
}

// TransitionToStopped marks shutdown complete. Call it only after
// WaitForShutdown returned.
func (b *Base) TransitionToStopped() {
	b.state.Store(int32(StateStopped))
}

// AddGoroutine registers a goroutine with the shutdown tracker. Call it
// before the go statement.
func (b *Base) AddGoroutine() {
	b.wg.Add(1)
}

// DoneGoroutine deregisters a goroutine. Defer it first thing inside the
// goroutine body.
func (b *Base) DoneGoroutine() {
	b.wg.Done()
}

// WaitForShutdown blocks until every registered goroutine exited.
func (b *Base) WaitForShutdown() {
	b.wg.Wait()
}

// SendError delivers err to the Err channel without blocking. When the
// buffer is full the error is dropped.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}

// CloseErrChannel closes the Err channel once the server fully stopped, so
// range consumers terminate.
func (b *Base) CloseErrChannel() {
	close(b.errCh)
}
