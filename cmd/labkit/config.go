// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labkit/internal/config"
	"labkit/internal/issue"
)

// newConfigCommand creates the `labkit config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage labkit configuration",
		Long: `Manage labkit configuration.

Configuration is stored in:
  - Linux: ~/.config/labkit/config.cue
  - macOS: ~/Library/Application Support/labkit/config.cue
  - Windows: %APPDATA%\labkit\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.Context(), app, cfgFile)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, path, err := config.LoadResolved(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		rendered, _ := issue.Get(issue.ConfigLoadFailedId).Render("dark")
		fmt.Fprint(os.Stderr, rendered)
		return err
	}

	headerStyle := TitleStyle
	keyStyle := PkgStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(app.stdout, headerStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	if path != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(app.stdout)

	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("env_name"), valueStyle.Render(string(cfg.EnvName)))
	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("env_root"), valueStyle.Render(cfg.EnvRoot))
	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("default_runtime"), valueStyle.Render(string(cfg.DefaultRuntime)))
	for _, reg := range cfg.Registries {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("registry"), valueStyle.Render(string(reg)))
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s: %d configured\n", keyStyle.Render("packages"), len(cfg.Packages))
	for i := range cfg.Packages {
		pkg := &cfg.Packages[i]
		fmt.Fprintf(app.stdout, "  %s %s\n", valueStyle.Render(string(pkg.Name)), VerboseStyle.Render(pkg.Root))
	}

	if cfg.Console.Enabled {
		fmt.Fprintln(app.stdout)
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("console"), valueStyle.Render(cfg.Console.ListenAddr))
	}

	return nil
}

func validateConfig(ctx context.Context, app *App, path string) error {
	cfg, resolved, err := config.LoadResolved(ctx, config.LoadOptions{ConfigFilePath: path})
	if err != nil {
		rendered, _ := issue.Get(issue.ConfigLoadFailedId).Render("dark")
		fmt.Fprint(app.stderr, rendered)
		return err
	}

	target := resolved
	if target == "" {
		target = "built-in defaults"
	}

	if valid, errs := cfg.IsValid(); !valid {
		fmt.Fprintf(app.stderr, "%s %s is invalid:\n", ErrorStyle.Render("✗"), target)
		for _, fieldErr := range errs {
			fmt.Fprintf(app.stderr, "  - %v\n", fieldErr)
		}
		return &ExitError{Code: 1, Err: errs[0]}
	}

	fmt.Fprintf(app.stdout, "%s %s is valid\n", SuccessStyle.Render("✓"), target)
	return nil
}

func initConfig(app *App) error {
	if err := config.CreateDefaultConfig(); err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}

	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Fprintln(app.stdout, SuccessStyle.Render("✓")+" created default configuration")
	fmt.Fprintf(app.stdout, "%s: %s/config.cue\n", PkgStyle.Render("Config file"), cfgDir)
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "%s/config.cue\n", cfgDir)
	return nil
}
