// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
)

// Runtime type constants for the available execution environments.
const (
	RuntimeTypeNative  RuntimeType = "native"
	RuntimeTypeVirtual RuntimeType = "virtual"
)

type (
	// ExecutionContext contains all information needed to execute a stage command.
	ExecutionContext struct {
		// Script is the shell snippet to execute.
		Script string
		// Context is the Go context for cancellation.
		Context context.Context
		// WorkDir is the working directory for the command.
		WorkDir string
		// Env contains extra environment variables layered over the host env.
		Env map[string]string
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
		// Stdin is where to read standard input.
		Stdin io.Reader
		// PositionalArgs are passed to the script as $1, $2, etc.
		PositionalArgs []string
	}

	// Result contains the result of a stage command execution.
	Result struct {
		// ExitCode is the exit code of the command.
		ExitCode ExitCode
		// Error contains any infrastructure error that occurred. A non-zero
		// ExitCode with a nil Error is a normal process failure.
		Error error
		// Output contains captured stdout (if captured).
		Output string
		// ErrOutput contains captured stderr (if captured).
		ErrOutput string
	}

	// Runtime defines the interface for stage command execution.
	Runtime interface {
		// Name returns the runtime name.
		Name() string
		// Execute runs a command in this runtime, streaming output to the
		// context's writers.
		Execute(ctx *ExecutionContext) *Result
		// Available returns whether this runtime is usable on the current system.
		Available() bool
		// Validate checks whether the context's script can be executed.
		Validate(ctx *ExecutionContext) error
	}

	// CapturingRuntime is implemented by runtimes that support capturing output.
	CapturingRuntime interface {
		// ExecuteCapture runs a command and captures stdout/stderr instead of
		// streaming them.
		ExecuteCapture(ctx *ExecutionContext) *Result
	}

	// RuntimeType identifies the type of runtime.
	//
	//nolint:revive // RuntimeType is more descriptive than Type for external callers
	RuntimeType string

	// Registry holds all available runtimes.
	Registry struct {
		runtimes map[RuntimeType]Runtime
	}
)

// NewExecutionContext creates an execution context with defaults: background
// context, process-wide stdio, empty env overlay.
func NewExecutionContext(script string) *ExecutionContext {
	return &ExecutionContext{
		Script:  script,
		Context: context.Background(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
		Env:     make(map[string]string),
	}
}

// Success returns true if the command executed successfully.
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil
}

// NewRegistry creates a registry pre-populated with the built-in runtimes.
func NewRegistry() *Registry {
	reg := &Registry{runtimes: make(map[RuntimeType]Runtime)}
	reg.Register(RuntimeTypeNative, NewNativeRuntime())
	reg.Register(RuntimeTypeVirtual, NewVirtualRuntime())
	return reg
}

// Register adds a runtime to the registry.
func (r *Registry) Register(typ RuntimeType, rt Runtime) {
	r.runtimes[typ] = rt
}

// Get returns a runtime by type.
func (r *Registry) Get(typ RuntimeType) (Runtime, error) {
	rt, ok := r.runtimes[typ]
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q", typ)
	}
	return rt, nil
}

// EnvToSlice converts an env map into KEY=VALUE form with stable ordering.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
