// SPDX-License-Identifier: MPL-2.0

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// Defaults applied when the caller does not configure them.
const (
	DefaultRepeats      = 5
	DefaultRetrySeconds = 1
)

// Sentinel errors for retry failures.
var (
	// ErrInvalidOptions is the sentinel error wrapped by InvalidOptionsError.
	ErrInvalidOptions = errors.New("invalid retry options")
	// ErrRetryLimit is the sentinel error wrapped by LimitError.
	ErrRetryLimit = errors.New("retry limit reached")
)

type (
	// Invoker performs one invocation of a named target.
	Invoker interface {
		Invoke(ctx context.Context, name string, payload any) (any, error)
	}

	// InvokerFunc adapts a function to the Invoker interface.
	InvokerFunc func(ctx context.Context, name string, payload any) (any, error)

	// Clock abstracts the inter-attempt sleep so tests can control it.
	Clock interface {
		After(d time.Duration) <-chan time.Time
	}

	// InvalidOptionsError reports an unusable option combination.
	InvalidOptionsError struct {
		Target string
		Reason string
	}

	// LimitError reports that every attempt failed. It wraps
	// ErrRetryLimit and the last attempt's error.
	LimitError struct {
		Target   string
		Repeats  int
		Interval time.Duration
		Last     error
	}

	// Option customizes an invocation's retry behavior.
	Option func(*settings)

	settings struct {
		repeats      int
		seconds      int
		minutes      int
		exponential  bool
		callback     Callback
		callbackData any
		logger       *log.Logger
		clock        Clock
	}

	realClock struct{}
)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, name string, payload any) (any, error) {
	return f(ctx, name, payload)
}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Error implements the error interface.
func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("could not invoke %q: %s", e.Target, e.Reason)
}

// Unwrap returns ErrInvalidOptions so callers can use errors.Is for
// detection.
func (e *InvalidOptionsError) Unwrap() error { return ErrInvalidOptions }

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("(%d/%d) retry limit reached for %q, interval %s: %v",
		e.Repeats, e.Repeats, e.Target, e.Interval, e.Last)
}

// Unwrap returns the sentinel and the last attempt's error.
func (e *LimitError) Unwrap() []error { return []error{ErrRetryLimit, e.Last} }

// WithRepeats sets how many retries follow the initial attempt.
func WithRepeats(n int) Option {
	return func(s *settings) { s.repeats = n }
}

// WithRetrySeconds sets the base interval between attempts, in seconds.
// Mutually exclusive with WithRetryMinutes.
func WithRetrySeconds(n int) Option {
	return func(s *settings) { s.seconds = n }
}

// WithRetryMinutes sets the base interval between attempts, in minutes.
// Mutually exclusive with WithRetrySeconds.
func WithRetryMinutes(n int) Option {
	return func(s *settings) { s.minutes = n }
}

// WithExponentialBackoff grows the interval exponentially from the base
// instead of keeping it constant.
func WithExponentialBackoff() Option {
	return func(s *settings) { s.exponential = true }
}

// WithCallback sets the function notified with the final outcome of an
// async invocation. Required by InvokeAsyncRetry.
func WithCallback(cb Callback) Option {
	return func(s *settings) { s.callback = cb }
}

// WithCallbackData attaches opaque data passed through to the callback.
func WithCallbackData(data any) Option {
	return func(s *settings) { s.callbackData = data }
}

// WithLogger sets the logger for per-attempt failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock overrides the sleep source. Tests use a fake clock.
func WithClock(clock Clock) Option {
	return func(s *settings) { s.clock = clock }
}

func newSettings(target string, needsCallback bool, opts []Option) (*settings, error) {
	s := &settings{
		repeats: DefaultRepeats,
		logger:  log.New(io.Discard),
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.repeats < 1 {
		return nil, &InvalidOptionsError{Target: target, Reason: "repeats must be at least 1"}
	}
	if s.seconds != 0 && s.minutes != 0 {
		return nil, &InvalidOptionsError{
			Target: target,
			Reason: fmt.Sprintf("only one of retry seconds (%d) and retry minutes (%d) can be given", s.seconds, s.minutes),
		}
	}
	if s.seconds < 0 || s.minutes < 0 {
		return nil, &InvalidOptionsError{Target: target, Reason: "retry interval cannot be negative"}
	}
	if needsCallback && s.callback == nil {
		return nil, &InvalidOptionsError{Target: target, Reason: "a callback was not given"}
	}
	if s.seconds == 0 && s.minutes == 0 {
		s.seconds = DefaultRetrySeconds
	}
	return s, nil
}

// interval returns the base sleep between attempts. Internally only
// seconds are used.
func (s *settings) interval() time.Duration {
	if s.minutes != 0 {
		return time.Duration(s.minutes) * time.Minute
	}
	return time.Duration(s.seconds) * time.Second
}

// policy builds the backoff policy the attempt loop draws intervals from.
func (s *settings) policy() backoff.BackOff {
	base := s.interval()
	if !s.exponential {
		return backoff.NewConstantBackOff(base)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// InvokeRetry invokes the named target, retrying failures in a blocking
// fashion: one initial attempt plus up to the configured number of
// repeats, sleeping between attempts. When every attempt fails the
// LimitError wraps the last attempt's error.
func InvokeRetry(ctx context.Context, invoker Invoker, name string, payload any, opts ...Option) (any, error) {
	s, err := newSettings(name, false, opts)
	if err != nil {
		return nil, err
	}
	return invokeLoop(ctx, invoker, name, payload, s)
}

func invokeLoop(ctx context.Context, invoker Invoker, name string, payload any, s *settings) (any, error) {
	policy := s.policy()

	var lastErr error
	for attempt := 0; attempt <= s.repeats; attempt++ {
		result, err := invoker.Invoke(ctx, name, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < s.repeats {
			s.logger.Info("retry failed",
				"attempt", fmt.Sprintf("%d/%d", attempt+1, s.repeats),
				"target", name, "interval", s.interval(), "err", err)

			next := policy.NextBackOff()
			if next == backoff.Stop {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(next):
			}
		}
	}

	limitErr := &LimitError{Target: name, Repeats: s.repeats, Interval: s.interval(), Last: lastErr}
	s.logger.Warn("retry limit reached", "target", name, "repeats", s.repeats, "interval", s.interval())
	return nil, limitErr
}
