// SPDX-License-Identifier: MPL-2.0

package retry

import (
	"context"

	"github.com/google/uuid"
)

type (
	// Result is the final outcome of an async invocation, delivered to
	// the callback once the attempt loop finishes.
	Result struct {
		// OK is true when an attempt succeeded.
		OK bool
		// Value is the successful invocation's result.
		Value any
		// Err is the LimitError when every attempt failed.
		Err error
		// Target is the invoked name.
		Target string
		// CorrelationID ties the result back to the InvokeAsyncRetry call.
		CorrelationID string
		// Data is the opaque payload given via WithCallbackData.
		Data any
	}

	// Callback receives the final outcome of an async invocation.
	Callback func(ctx context.Context, result *Result)
)

// InvokeAsyncRetry starts the retrying invocation in the background and
// returns a correlation ID immediately. The callback given via
// WithCallback is required and receives the final outcome, carrying the
// same correlation ID. The context governs the whole background loop.
func InvokeAsyncRetry(ctx context.Context, invoker Invoker, name string, payload any, opts ...Option) (string, error) {
	s, err := newSettings(name, true, opts)
	if err != nil {
		return "", err
	}

	correlationID := uuid.NewString()

	go func() {
		result := &Result{
			Target:        name,
			CorrelationID: correlationID,
			Data:          s.callbackData,
		}

		value, err := invokeLoop(ctx, invoker, name, payload, s)
		if err != nil {
			result.Err = err
		} else {
			result.OK = true
			result.Value = value
		}

		s.callback(ctx, result)
	}()

	return correlationID, nil
}
