// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// RuntimeNative runs stage commands in the host system shell.
	RuntimeNative RuntimeMode = "native"
	// RuntimeVirtual runs stage commands in the embedded mvdan/sh interpreter.
	RuntimeVirtual RuntimeMode = "virtual"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultEnvName is the environment directory name used when the
	// config does not override it.
	DefaultEnvName = "env"

	// DefaultSourceDir is the package source tree relative to the root.
	DefaultSourceDir = "src"
	// DefaultTestsDir is the package test tree relative to the root.
	DefaultTestsDir = "test"

	// DefaultManifestName is the dependency manifest file name.
	// Defined locally to avoid coupling config to internal/env.
	DefaultManifestName = "deps.toml"

	// DefaultConsoleAddr is the SSH operator console bind address.
	DefaultConsoleAddr = "127.0.0.1:2222"
)

var (
	// ErrInvalidRuntimeMode is returned when a RuntimeMode value is not recognized.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidPackageName is the sentinel error wrapped by InvalidPackageNameError.
	ErrInvalidPackageName = errors.New("invalid package name")
	// ErrInvalidEnvName is the sentinel error wrapped by InvalidEnvNameError.
	ErrInvalidEnvName = errors.New("invalid environment name")
	// ErrInvalidRegistryPath is the sentinel error wrapped by InvalidRegistryPathError.
	ErrInvalidRegistryPath = errors.New("invalid registry path")
	// ErrInvalidPackageEntry is the sentinel error wrapped by InvalidPackageEntryError.
	ErrInvalidPackageEntry = errors.New("invalid package entry")
	// ErrInvalidConsoleConfig is the sentinel error wrapped by InvalidConsoleConfigError.
	ErrInvalidConsoleConfig = errors.New("invalid console config")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RuntimeMode specifies the execution runtime for stage commands.
	RuntimeMode string

	// InvalidRuntimeModeError is returned when a RuntimeMode value is not
	// recognized. It wraps ErrInvalidRuntimeMode for errors.Is() compatibility.
	InvalidRuntimeModeError struct {
		Value RuntimeMode
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not
	// recognized. It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// PackageName identifies a managed package on the command line.
	// A valid name is lowercase, starts with a letter, and contains only
	// letters, digits, and underscores.
	PackageName string

	// InvalidPackageNameError is returned when a PackageName value does not
	// satisfy the naming rules. It wraps ErrInvalidPackageName for errors.Is().
	InvalidPackageNameError struct {
		Value PackageName
	}

	// EnvName is the directory name for per-package environments.
	// A valid name is non-empty and contains no path separators.
	EnvName string

	// InvalidEnvNameError is returned when an EnvName value is empty or
	// contains path separators. It wraps ErrInvalidEnvName for errors.Is().
	InvalidEnvNameError struct {
		Value EnvName
	}

	// RegistryPath is a filesystem path to a dependency registry directory.
	// A valid path must be non-empty and not whitespace-only.
	RegistryPath string

	// InvalidRegistryPathError is returned when a RegistryPath value is
	// empty or whitespace-only. It wraps ErrInvalidRegistryPath for errors.Is().
	InvalidRegistryPathError struct {
		Value RegistryPath
	}

	// InvalidPackageEntryError is returned when a PackageConfig has invalid
	// fields. It wraps ErrInvalidPackageEntry for errors.Is() compatibility
	// and collects field-level validation errors.
	InvalidPackageEntryError struct {
		FieldErrors []error
	}

	// InvalidConsoleConfigError is returned when a ConsoleConfig has invalid
	// fields. It wraps ErrInvalidConsoleConfig for errors.Is() compatibility.
	InvalidConsoleConfigError struct {
		FieldErrors []error
	}

	// InvalidUIConfigError is returned when a UIConfig has invalid fields.
	// It wraps ErrInvalidUIConfig for errors.Is() compatibility.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// PackageConfig describes one managed package and its layout on disk.
	PackageConfig struct {
		// Name is the identifier used on the command line.
		Name PackageName `json:"name" mapstructure:"name"`
		// Root is the package checkout directory.
		Root string `json:"root" mapstructure:"root"`
		// SourceDir is the importable source tree, relative to Root.
		SourceDir string `json:"source_dir" mapstructure:"source_dir"`
		// TestsDir is the test tree, relative to Root. Empty means the
		// package has no tests and verification skips the test stage.
		TestsDir string `json:"tests_dir" mapstructure:"tests_dir"`
		// Manifest is the dependency manifest path, relative to Root.
		Manifest string `json:"manifest" mapstructure:"manifest"`
		// Editable installs the package as a live link instead of a copy.
		Editable bool `json:"editable" mapstructure:"editable"`
		// Runtime overrides the default execution runtime for this package.
		Runtime RuntimeMode `json:"runtime,omitempty" mapstructure:"runtime"`
		// LintCmd overrides the default lint command script.
		LintCmd string `json:"lint_cmd,omitempty" mapstructure:"lint_cmd"`
		// TestCmd overrides the default test command script.
		TestCmd string `json:"test_cmd,omitempty" mapstructure:"test_cmd"`
	}

	// Config holds the workbench configuration.
	Config struct {
		// EnvName is the per-package environment directory name.
		EnvName EnvName `json:"env_name" mapstructure:"env_name"`
		// EnvRoot relocates environments under a shared directory; empty
		// keeps each environment inside its package root.
		EnvRoot string `json:"env_root,omitempty" mapstructure:"env_root"`
		// DefaultRuntime selects the execution runtime for stage commands.
		DefaultRuntime RuntimeMode `json:"default_runtime" mapstructure:"default_runtime"`
		// Registries are directories searched for dependency archives.
		Registries []RegistryPath `json:"registries" mapstructure:"registries"`
		// Packages lists the managed packages.
		Packages []PackageConfig `json:"packages" mapstructure:"packages"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
		// Console configures the SSH operator console.
		Console ConsoleConfig `json:"console" mapstructure:"console"`
		// Enclog configures encrypted logging for stage output.
		Enclog EnclogConfig `json:"enclog" mapstructure:"enclog"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// ConsoleConfig configures the SSH operator console.
	ConsoleConfig struct {
		// Enabled turns the console on.
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// ListenAddr is the bind address for the console listener.
		ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
		// AuthToken is the shared secret clients must present. Empty
		// disables token auth (loopback development only).
		AuthToken string `json:"auth_token,omitempty" mapstructure:"auth_token"`
	}

	// EnclogConfig configures encrypted logging for stage output.
	EnclogConfig struct {
		// KeyFile is the path to the Fernet key file. Empty disables
		// encrypted logging.
		KeyFile string `json:"key_file,omitempty" mapstructure:"key_file"`
	}
)

// String returns the string representation of the RuntimeMode.
func (m RuntimeMode) String() string { return string(m) }

// IsValid returns whether the RuntimeMode is one of the defined runtime modes,
// and a list of validation errors if it is not.
func (m RuntimeMode) IsValid() (bool, []error) {
	switch m {
	case RuntimeNative, RuntimeVirtual:
		return true, nil
	default:
		return false, []error{&InvalidRuntimeModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidRuntimeModeError.
func (e *InvalidRuntimeModeError) Error() string {
	return fmt.Sprintf("invalid runtime mode %q (valid: native, virtual)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRuntimeModeError) Unwrap() error { return ErrInvalidRuntimeMode }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the PackageName.
func (n PackageName) String() string { return string(n) }

// IsValid returns whether the PackageName satisfies the naming rules:
// lowercase, starting with a letter, with only letters, digits, and
// underscores after.
func (n PackageName) IsValid() (bool, []error) {
	if n == "" {
		return false, []error{&InvalidPackageNameError{Value: n}}
	}
	for i, c := range n {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c == '_' || (c >= '0' && c <= '9')):
		default:
			return false, []error{&InvalidPackageNameError{Value: n}}
		}
	}
	return true, nil
}

// Error implements the error interface for InvalidPackageNameError.
func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: must be lowercase, start with a letter, and contain only letters, digits, and underscores", e.Value)
}

// Unwrap returns ErrInvalidPackageName for errors.Is() compatibility.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// String returns the string representation of the EnvName.
func (n EnvName) String() string { return string(n) }

// IsValid returns whether the EnvName is valid: non-empty, not
// whitespace-only, and free of path separators.
func (n EnvName) IsValid() (bool, []error) {
	s := string(n)
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, `/\`) {
		return false, []error{&InvalidEnvNameError{Value: n}}
	}
	return true, nil
}

// Error implements the error interface for InvalidEnvNameError.
func (e *InvalidEnvNameError) Error() string {
	return fmt.Sprintf("invalid environment name %q: must be non-empty and contain no path separators", e.Value)
}

// Unwrap returns ErrInvalidEnvName for errors.Is() compatibility.
func (e *InvalidEnvNameError) Unwrap() error { return ErrInvalidEnvName }

// String returns the string representation of the RegistryPath.
func (p RegistryPath) String() string { return string(p) }

// IsValid returns whether the RegistryPath is valid.
// A valid path must be non-empty and not whitespace-only.
func (p RegistryPath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidRegistryPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidRegistryPathError.
func (e *InvalidRegistryPathError) Error() string {
	return fmt.Sprintf("invalid registry path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidRegistryPath for errors.Is() compatibility.
func (e *InvalidRegistryPathError) Unwrap() error { return ErrInvalidRegistryPath }

// IsValid returns whether the PackageConfig has valid fields.
// It delegates to Name.IsValid(), requires a non-empty Root, and validates
// Runtime only when set (the zero value means "use the default runtime").
func (p PackageConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := p.Name.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if strings.TrimSpace(p.Root) == "" {
		errs = append(errs, fmt.Errorf("package %q: root must be non-empty", p.Name))
	}
	if p.Runtime != "" {
		if valid, fieldErrs := p.Runtime.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidPackageEntryError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPackageEntryError.
func (e *InvalidPackageEntryError) Error() string {
	return fmt.Sprintf("invalid package entry: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidPackageEntry for errors.Is() compatibility.
func (e *InvalidPackageEntryError) Unwrap() error { return ErrInvalidPackageEntry }

// IsValid returns whether the ConsoleConfig has valid fields.
// ListenAddr must be non-empty when the console is enabled.
func (c ConsoleConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Enabled && strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, fmt.Errorf("console: listen_addr must be non-empty when enabled"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConsoleConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConsoleConfigError.
func (e *InvalidConsoleConfigError) Error() string {
	return fmt.Sprintf("invalid console config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConsoleConfig for errors.Is() compatibility.
func (e *InvalidConsoleConfigError) Unwrap() error { return ErrInvalidConsoleConfig }

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to EnvName.IsValid(), DefaultRuntime.IsValid(), each registry
// path and package entry, UI.IsValid(), and Console.IsValid().
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.EnvName.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.DefaultRuntime.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, reg := range c.Registries {
		if valid, fieldErrs := reg.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	for _, pkg := range c.Packages {
		if valid, fieldErrs := pkg.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Console.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// FindPackage returns the package entry with the given name.
func (c *Config) FindPackage(name PackageName) (*PackageConfig, bool) {
	for i := range c.Packages {
		if c.Packages[i].Name == name {
			return &c.Packages[i], true
		}
	}
	return nil, false
}

// Runtime returns the effective runtime mode for a package, falling back to
// the config default when the package does not set one.
func (c *Config) Runtime(pkg *PackageConfig) RuntimeMode {
	if pkg.Runtime != "" {
		return pkg.Runtime
	}
	return c.DefaultRuntime
}

// applyPackageDefaults fills in the per-package defaults that Viper cannot
// reach inside slice elements.
func applyPackageDefaults(pkg *PackageConfig) {
	if pkg.SourceDir == "" {
		pkg.SourceDir = DefaultSourceDir
	}
	if pkg.Manifest == "" {
		pkg.Manifest = DefaultManifestName
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		EnvName:        DefaultEnvName,
		EnvRoot:        "",
		DefaultRuntime: RuntimeNative,
		Registries:     []RegistryPath{},
		Packages:       []PackageConfig{},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
		Console: ConsoleConfig{
			Enabled:    false,
			ListenAddr: DefaultConsoleAddr,
			AuthToken:  "",
		},
		Enclog: EnclogConfig{
			KeyFile: "",
		},
	}
}
