// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"labkit/internal/cueutil"
	"labkit/internal/issue"
	"labkit/internal/platform"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "labkit"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// envPrefix is the prefix for environment variable overrides.
	envPrefix = "LABKIT"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the labkit configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level cache state. Callers that want caching can wrap this function.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("env_name", string(defaults.EnvName))
	v.SetDefault("env_root", defaults.EnvRoot)
	v.SetDefault("default_runtime", string(defaults.DefaultRuntime))
	v.SetDefault("registries", defaults.Registries)
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("console.enabled", defaults.Console.Enabled)
	v.SetDefault("console.listen_addr", defaults.Console.ListenAddr)
	v.SetDefault("console.auth_token", defaults.Console.AuthToken)
	v.SetDefault("enclog.key_file", defaults.Enclog.KeyFile)

	// Environment variable overrides: LABKIT_ENV_NAME, LABKIT_UI_VERBOSE, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// If a custom config file path is set via --config flag, use it exclusively.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'labkit config show' to see default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'labkit config --help' for configuration options").
				Wrap(err).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		// Get config directory
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		// Try to load CUE config file
		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Verify the configuration values match the expected schema").
					WithSuggestion("See 'labkit config --help' for configuration options").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
		} else {
			// Also check current directory
			localCuePath := ConfigFileName + "." + ConfigFileExt
			if fileExists(localCuePath) {
				if err := loadCUEIntoViper(v, localCuePath); err != nil {
					return nil, "", issue.NewErrorContext().
						WithOperation("load configuration").
						WithResource(localCuePath).
						WithSuggestion("Check that the file contains valid CUE syntax").
						WithSuggestion("Verify the configuration values match the expected schema").
						WithSuggestion("See 'labkit config --help' for configuration options").
						Wrap(err).
						BuildError()
				}
				resolvedPath = localCuePath
			}
			// If no config file found, use defaults (no error)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	for i := range cfg.Packages {
		applyPackageDefaults(&cfg.Packages[i])
	}

	// Validate package constraints that CUE cannot express:
	// name uniqueness and root uniqueness across entries.
	if err := validatePackages(cfg.Packages); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Ensure each package name appears only once").
			WithSuggestion("Ensure no two packages share the same root directory").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Note: This uses manual CUE parsing instead of cueutil.Decode because:
// 1. Config decodes to map[string]any (not a struct) for Viper integration
// 2. Uses Concrete(false) because config fields are optional
// 3. Needs to merge into Viper's config map, not return a struct
func loadCUEIntoViper(v *viper.Viper, path string) error {
	// Read CUE file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.MaxFileSize, path); err != nil {
		return err
	}

	// Parse with CUE
	ctx := cuecontext.New()

	// Compile the schema
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	// Compile the user's config file
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	// Unify with schema to validate against #Config definition
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Decode to Go map
	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// validatePackages checks package entries for constraints that CUE cannot
// express: name uniqueness and root uniqueness (normalized via
// filepath.Clean to handle trailing slashes and redundant separators).
func validatePackages(packages []PackageConfig) error {
	seenNames := make(map[PackageName]int) // name -> index of first occurrence
	seenRoots := make(map[string]int)      // cleaned root -> index of first occurrence

	for i, pkg := range packages {
		if firstIdx, exists := seenNames[pkg.Name]; exists {
			return fmt.Errorf("packages[%d]: duplicate package name %q (same as packages[%d])", i, pkg.Name, firstIdx)
		}
		seenNames[pkg.Name] = i

		cleanRoot := filepath.Clean(pkg.Root)
		if firstIdx, exists := seenRoots[cleanRoot]; exists {
			return fmt.Errorf("packages[%d]: duplicate package root %q (same as packages[%d])", i, pkg.Root, firstIdx)
		}
		seenRoots[cleanRoot] = i
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig creates a default config file if it doesn't exist
func CreateDefaultConfig() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	defaults := DefaultConfig()
	cueContent := GenerateCUE(defaults)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the current configuration to file
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	cueContent := GenerateCUE(cfg)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// labkit configuration file.\n\n")

	sb.WriteString(fmt.Sprintf("env_name: %q\n", cfg.EnvName))
	if cfg.EnvRoot != "" {
		sb.WriteString(fmt.Sprintf("env_root: %q\n", cfg.EnvRoot))
	}
	sb.WriteString(fmt.Sprintf("default_runtime: %q\n", cfg.DefaultRuntime))

	if len(cfg.Registries) > 0 {
		sb.WriteString("\nregistries: [\n")
		for _, reg := range cfg.Registries {
			sb.WriteString(fmt.Sprintf("\t%q,\n", reg))
		}
		sb.WriteString("]\n")
	}

	if len(cfg.Packages) > 0 {
		sb.WriteString("\npackages: [\n")
		for _, pkg := range cfg.Packages {
			sb.WriteString("\t{\n")
			sb.WriteString(fmt.Sprintf("\t\tname: %q\n", pkg.Name))
			sb.WriteString(fmt.Sprintf("\t\troot: %q\n", pkg.Root))
			if pkg.SourceDir != "" && pkg.SourceDir != DefaultSourceDir {
				sb.WriteString(fmt.Sprintf("\t\tsource_dir: %q\n", pkg.SourceDir))
			}
			if pkg.TestsDir != "" {
				sb.WriteString(fmt.Sprintf("\t\ttests_dir: %q\n", pkg.TestsDir))
			}
			if pkg.Manifest != "" && pkg.Manifest != DefaultManifestName {
				sb.WriteString(fmt.Sprintf("\t\tmanifest: %q\n", pkg.Manifest))
			}
			sb.WriteString(fmt.Sprintf("\t\teditable: %v\n", pkg.Editable))
			if pkg.Runtime != "" {
				sb.WriteString(fmt.Sprintf("\t\truntime: %q\n", pkg.Runtime))
			}
			if pkg.LintCmd != "" {
				sb.WriteString(fmt.Sprintf("\t\tlint_cmd: %q\n", pkg.LintCmd))
			}
			if pkg.TestCmd != "" {
				sb.WriteString(fmt.Sprintf("\t\ttest_cmd: %q\n", pkg.TestCmd))
			}
			sb.WriteString("\t},\n")
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tcolor_scheme: %q\n", cfg.UI.ColorScheme))
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose))
	sb.WriteString("}\n")

	sb.WriteString("\nconsole: {\n")
	sb.WriteString(fmt.Sprintf("\tenabled: %v\n", cfg.Console.Enabled))
	sb.WriteString(fmt.Sprintf("\tlisten_addr: %q\n", cfg.Console.ListenAddr))
	if cfg.Console.AuthToken != "" {
		sb.WriteString(fmt.Sprintf("\tauth_token: %q\n", cfg.Console.AuthToken))
	}
	sb.WriteString("}\n")

	if cfg.Enclog.KeyFile != "" {
		sb.WriteString("\nenclog: {\n")
		sb.WriteString(fmt.Sprintf("\tkey_file: %q\n", cfg.Enclog.KeyFile))
		sb.WriteString("}\n")
	}

	return sb.String()
}
