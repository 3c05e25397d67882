// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestBase_Lifecycle(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if b.State() != StateCreated {
		t.Fatalf("new Base state = %s, want created", b.State())
	}

	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}
	if b.State() != StateStarting {
		t.Errorf("state = %s, want starting", b.State())
	}

	b.TransitionToRunning()
	if !b.IsRunning() {
		t.Error("IsRunning() = false after TransitionToRunning")
	}
	select {
	case <-b.StartedChannel():
	default:
		t.Error("StartedChannel not closed after TransitionToRunning")
	}

	if !b.TransitionToStopping() {
		t.Error("TransitionToStopping() = false, want true for a running server")
	}
	if b.State() != StateStopping {
		t.Errorf("state = %s, want stopping", b.State())
	}

	b.TransitionToStopped()
	if b.State() != StateStopped {
		t.Errorf("state = %s, want stopped", b.State())
	}
}

func TestBase_TransitionToStarting_Twice(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("first TransitionToStarting failed: %v", err)
	}
	if err := b.TransitionToStarting(context.Background()); err == nil {
		t.Error("second TransitionToStarting succeeded, want error")
	}
}

func TestBase_TransitionToStarting_CancelledContext(t *testing.T) {
	t.Parallel()

	b := NewBase()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.TransitionToStarting(ctx); err == nil {
		t.Fatal("TransitionToStarting succeeded with a cancelled context")
	}
	if b.State() != StateFailed {
		t.Errorf("state = %s, want failed", b.State())
	}
	if b.LastError() == nil {
		t.Error("LastError() = nil after failed start")
	}
}

func TestBase_TransitionToFailed(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}

	bootErr := errors.New("listener refused")
	b.TransitionToFailed(bootErr)

	if b.State() != StateFailed {
		t.Errorf("state = %s, want failed", b.State())
	}
	if !errors.Is(b.LastError(), bootErr) {
		t.Errorf("LastError() = %v, want %v", b.LastError(), bootErr)
	}

	select {
	case err := <-b.Err():
		if !errors.Is(err, bootErr) {
			t.Errorf("Err() delivered %v, want %v", err, bootErr)
		}
	default:
		t.Error("failure was not delivered on Err()")
	}
}

func TestBase_TransitionToFailed_FromCreated(t *testing.T) {
	t.Parallel()

	// Servers fail before TransitionToStarting when their config does not
	// validate; that path must not panic on the nil cancel func.
	b := NewBase()
	cfgErr := errors.New("bad config")
	b.TransitionToFailed(cfgErr)

	if b.State() != StateFailed {
		t.Errorf("state = %s, want failed", b.State())
	}
	if !errors.Is(b.LastError(), cfgErr) {
		t.Errorf("LastError() = %v, want %v", b.LastError(), cfgErr)
	}
}

func TestBase_TransitionToStopping_WithoutStart(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if b.TransitionToStopping() {
		t.Error("TransitionToStopping() = true for a never-started server")
	}
	if b.State() != StateStopped {
		t.Errorf("state = %s, want stopped", b.State())
	}
}

func TestBase_TransitionToStopping_AfterFailure(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}
	b.TransitionToFailed(errors.New("fatal"))

	if b.TransitionToStopping() {
		t.Error("TransitionToStopping() = true for a failed server")
	}
	if b.State() != StateFailed {
		t.Errorf("state = %s, want failed", b.State())
	}
}

func TestBase_TransitionToStopping_Concurrent(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}
	b.TransitionToRunning()

	var won int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			if b.TransitionToStopping() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("%d callers won the stop transition, want exactly 1", won)
	}
	if b.State() != StateStopping {
		t.Errorf("state = %s, want stopping", b.State())
	}
}

func TestBase_ConcurrentStateReads(t *testing.T) {
	t.Parallel()

	b := NewBase()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 100 {
				_ = b.State()
				_ = b.IsRunning()
			}
		})
	}

	_ = b.TransitionToStarting(context.Background())
	b.TransitionToRunning()
	b.TransitionToStopping()
	b.TransitionToStopped()

	wg.Wait()
}

func TestBase_GoroutineTracking(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}

	var mu sync.Mutex
	var exited int
	for range 5 {
		b.AddGoroutine()
		go func() {
			defer b.DoneGoroutine()
			mu.Lock()
			exited++
			mu.Unlock()
		}()
	}

	b.WaitForShutdown()

	mu.Lock()
	defer mu.Unlock()
	if exited != 5 {
		t.Errorf("exited = %d, want 5", exited)
	}
}

func TestBase_Context(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if b.Context() != nil {
		t.Error("Context() non-nil before start")
	}

	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting failed: %v", err)
	}
	if b.Context() == nil {
		t.Fatal("Context() nil after start")
	}

	b.TransitionToRunning()
	b.TransitionToStopping()

	select {
	case <-b.Context().Done():
	default:
		t.Error("server context not cancelled by TransitionToStopping")
	}
}

func TestBase_SendError_DropsWhenFull(t *testing.T) {
	t.Parallel()

	b := NewBase()
	b.SendError(errors.New("first"))
	b.SendError(errors.New("second")) // buffer of one, must not block

	select {
	case err := <-b.Err():
		if err.Error() != "first" {
			t.Errorf("Err() delivered %v, want the first error", err)
		}
	default:
		t.Fatal("expected a buffered error")
	}
	select {
	case err := <-b.Err():
		t.Errorf("Err() delivered %v, want the overflow dropped", err)
	default:
	}
}

func TestBase_WithErrorChannel(t *testing.T) {
	t.Parallel()

	b := NewBase(WithErrorChannel(5))
	for range 5 {
		b.SendError(errors.New("serve error"))
	}

	for i := range 5 {
		select {
		case <-b.Err():
		default:
			t.Fatalf("error %d missing from the enlarged buffer", i)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			if got := tt.state.String(); got != tt.want {
				t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  bool
	}{
		{StateCreated, true},
		{StateStarting, true},
		{StateRunning, true},
		{StateStopping, true},
		{StateStopped, true},
		{StateFailed, true},
		{State(99), false},
		{State(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()

			isValid, errs := tt.state.IsValid()
			if isValid != tt.want {
				t.Errorf("State(%d).IsValid() = %v, want %v", tt.state, isValid, tt.want)
			}
			if tt.want {
				if len(errs) > 0 {
					t.Errorf("State(%d).IsValid() returned unexpected errors: %v", tt.state, errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("State(%d).IsValid() returned no errors, want InvalidStateError", tt.state)
			}
			if !errors.Is(errs[0], ErrInvalidState) {
				t.Errorf("error should wrap ErrInvalidState, got: %v", errs[0])
			}
			var invalid *InvalidStateError
			if !errors.As(errs[0], &invalid) || invalid.Value != tt.state {
				t.Errorf("error should carry the offending value, got: %v", errs[0])
			}
		})
	}
}
