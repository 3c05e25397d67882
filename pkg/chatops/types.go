// SPDX-License-Identifier: MPL-2.0

package chatops

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidHostAddress is the sentinel error wrapped by InvalidHostAddressError.
	ErrInvalidHostAddress = errors.New("invalid host address")
	// ErrInvalidTokenValue is the sentinel error wrapped by InvalidTokenValueError.
	ErrInvalidTokenValue = errors.New("invalid token value")
	// ErrInvalidURLPath is the sentinel error wrapped by InvalidURLPathError.
	ErrInvalidURLPath = errors.New("invalid URL path")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidServerConfigError.
	ErrInvalidServerConfig = errors.New("invalid chatops server config")
)

type (
	// HostAddress represents a network host address (IP or hostname) for server binding.
	// A valid address must be non-empty and not whitespace-only.
	HostAddress string

	// TokenValue represents an authentication token value for operator sessions.
	// A valid token must be non-empty and not whitespace-only.
	TokenValue string

	// URLPath represents the mount path the webhook endpoint answers on.
	// A valid path must start with "/".
	URLPath string

	// InvalidHostAddressError is returned when a HostAddress value is
	// empty or whitespace-only.
	InvalidHostAddressError struct {
		Value HostAddress
	}

	// InvalidTokenValueError is returned when a TokenValue value is
	// empty or whitespace-only.
	InvalidTokenValueError struct {
		Value TokenValue
	}

	// InvalidURLPathError is returned when a URLPath does not start with "/".
	InvalidURLPathError struct {
		Value URLPath
	}

	// InvalidServerConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidServerConfig for errors.Is() compatibility and
	// collects field-level validation errors.
	InvalidServerConfigError struct {
		FieldErrors []error
	}

	// Config holds immutable configuration shared by the webhook server
	// and the SSH console.
	Config struct {
		// Name identifies the server in status payloads and console banners.
		Name string
		// Host is the address to bind to (default: 127.0.0.1).
		Host HostAddress
		// Port is the port to listen on (0 = auto-select).
		Port int
		// Path is the URL path the webhook answers on (default: /chatops).
		// Requests to any other path receive a plain 404.
		Path URLPath
		// AuthToken is an optional shared secret. When set, webhook requests
		// must present it in the X-Labkit-Token header and console clients
		// may use it as their SSH password.
		AuthToken TokenValue
		// TokenTTL is how long generated session tokens are valid (default: 1 hour).
		TokenTTL time.Duration
		// DefaultShell is the shell spawned by the console "shell" builtin (default: /bin/sh).
		DefaultShell string
		// StartupTimeout is the max time to wait for a server to be ready (default: 5s).
		StartupTimeout time.Duration
		// ShutdownTimeout is the timeout for graceful shutdown (default: 10s).
		ShutdownTimeout time.Duration
	}
)

// String returns the string representation of the HostAddress.
func (h HostAddress) String() string { return string(h) }

// Validate returns nil if the HostAddress is valid (non-empty and not
// whitespace-only), or an error wrapping ErrInvalidHostAddress if it is not.
func (h HostAddress) Validate() error {
	if strings.TrimSpace(string(h)) == "" {
		return &InvalidHostAddressError{Value: h}
	}
	return nil
}

// String returns the string representation of the TokenValue.
func (t TokenValue) String() string { return string(t) }

// Validate returns nil if the TokenValue is valid (non-empty and not
// whitespace-only), or an error wrapping ErrInvalidTokenValue if it is not.
func (t TokenValue) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return &InvalidTokenValueError{Value: t}
	}
	return nil
}

// String returns the string representation of the URLPath.
func (p URLPath) String() string { return string(p) }

// Validate returns nil if the URLPath is valid (starts with "/"), or an
// error wrapping ErrInvalidURLPath if it is not.
func (p URLPath) Validate() error {
	if !strings.HasPrefix(string(p), "/") {
		return &InvalidURLPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidHostAddressError.
func (e *InvalidHostAddressError) Error() string {
	return fmt.Sprintf("invalid host address %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostAddress for errors.Is() compatibility.
func (e *InvalidHostAddressError) Unwrap() error { return ErrInvalidHostAddress }

// Error implements the error interface for InvalidTokenValueError.
func (e *InvalidTokenValueError) Error() string {
	return fmt.Sprintf("invalid token value %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidTokenValue for errors.Is() compatibility.
func (e *InvalidTokenValueError) Unwrap() error { return ErrInvalidTokenValue }

// Error implements the error interface for InvalidURLPathError.
func (e *InvalidURLPathError) Error() string {
	return fmt.Sprintf("invalid URL path %q: must start with /", e.Value)
}

// Unwrap returns ErrInvalidURLPath for errors.Is() compatibility.
func (e *InvalidURLPathError) Unwrap() error { return ErrInvalidURLPath }

// Error implements the error interface for InvalidServerConfigError.
func (e *InvalidServerConfigError) Error() string {
	return fmt.Sprintf("invalid chatops server config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidServerConfig for errors.Is() compatibility.
func (e *InvalidServerConfigError) Unwrap() error { return ErrInvalidServerConfig }

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:            "labkit",
		Host:            "127.0.0.1",
		Port:            0,
		Path:            "/chatops",
		TokenTTL:        time.Hour,
		DefaultShell:    "/bin/sh",
		StartupTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the Config fields and returns an error wrapping
// ErrInvalidServerConfig when any of them is invalid.
func (c Config) Validate() error {
	var fieldErrs []error
	if err := c.Host.Validate(); err != nil {
		fieldErrs = append(fieldErrs, err)
	}
	if err := c.Path.Validate(); err != nil {
		fieldErrs = append(fieldErrs, err)
	}
	if c.Port < 0 || c.Port > 65535 {
		fieldErrs = append(fieldErrs, fmt.Errorf("port %d out of range", c.Port))
	}
	if len(fieldErrs) > 0 {
		return &InvalidServerConfigError{FieldErrors: fieldErrs}
	}
	return nil
}

// withDefaults fills zero-valued fields with the DefaultConfig values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.DefaultShell == "" {
		c.DefaultShell = def.DefaultShell
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = def.StartupTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
