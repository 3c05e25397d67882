// SPDX-License-Identifier: MPL-2.0

package chatops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"labkit/pkg/retry"
)

var (
	// ErrUnknownCommand is the sentinel error wrapped by UnknownCommandError.
	ErrUnknownCommand = errors.New("unknown command")
)

type (
	// Command is an operator command as it arrives over a transport.
	Command struct {
		// Name selects the registered handler.
		Name string `json:"command"`
		// Data is the handler payload, passed through verbatim.
		Data json.RawMessage `json:"data,omitempty"`
	}

	// HandlerFunc executes one operator command and returns a result that
	// will be serialized to JSON for the caller.
	HandlerFunc func(ctx context.Context, cmd Command) (any, error)

	// UnknownCommandError is returned when a Command names no registered handler.
	UnknownCommandError struct {
		Name string
	}

	// Registry maps command names to handlers and dispatches commands to
	// them. Dispatch retries failing handlers, so transient faults in a
	// handler (a flaky downstream, a busy lock) do not surface to the
	// operator. Safe for concurrent use.
	Registry struct {
		mu       sync.RWMutex
		handlers map[string]HandlerFunc

		retryOpts []retry.Option
		logger    *log.Logger
	}

	// RegistryOption configures a Registry.
	RegistryOption func(*Registry)
)

// Error implements the error interface for UnknownCommandError.
func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// Unwrap returns ErrUnknownCommand for errors.Is() compatibility.
func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }

// WithDispatchRetry replaces the retry options applied to handler dispatch.
func WithDispatchRetry(opts ...retry.Option) RegistryOption {
	return func(r *Registry) { r.retryOpts = opts }
}

// WithRegistryLogger sets the logger used for dispatch diagnostics.
func WithRegistryLogger(logger *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty command registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[string]HandlerFunc),
		retryOpts: []retry.Option{
			retry.WithRepeats(1),
			retry.WithRetrySeconds(1),
		},
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "chatops"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handler under the given command name, replacing any
// previous handler with that name.
func (r *Registry) Register(name string, handler HandlerFunc) {
	r.mu.Lock()
	r.handlers[name] = handler
	r.mu.Unlock()
}

// Commands returns the registered command names in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Dispatch runs the handler registered for cmd.Name and returns its result.
// A failing handler is retried per the registry's retry options before the
// last error is returned. An unregistered name returns an error wrapping
// ErrUnknownCommand without invoking anything.
func (r *Registry) Dispatch(ctx context.Context, cmd Command) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[cmd.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownCommandError{Name: cmd.Name}
	}

	invoker := retry.InvokerFunc(func(ctx context.Context, _ string, payload any) (any, error) {
		return handler(ctx, payload.(Command))
	})

	opts := append([]retry.Option{retry.WithLogger(r.logger)}, r.retryOpts...)
	return retry.InvokeRetry(ctx, invoker, cmd.Name, cmd, opts...)
}
