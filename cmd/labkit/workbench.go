// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"labkit/internal/config"
	"labkit/internal/pipeline"
	"labkit/internal/workbench"
)

// newInstallCommand creates the `labkit install` command.
func newInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install [package]",
		Short: "Provision the environment and install a package",
		Long: `Provision the package environment and install it.

Runs the install pipeline: environment provisioning, dependency-manifest
install, then the package itself (editable when configured). Stages run
strictly in order and the pipeline stops at the first failure.

With no argument, every configured package is installed sequentially;
one package's failure does not stop the others.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipelines(cmd.Context(), app, args, "install")
		},
	}
}

// newTestCommand creates the `labkit test` command.
func newTestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test [package]",
		Short: "Install a package and run its verification pipeline",
		Long: `Install the package and run its verification pipeline.

After the install stages, runs the package tests with coverage (when the
package has a tests directory) and then lints the source and test trees.
A failing stage aborts the pipeline and sets the exit code.

With no argument, every configured package is verified sequentially;
one package's failure does not stop the others.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipelines(cmd.Context(), app, args, "test")
		},
	}
}

// newCleanCommand creates the `labkit clean` command.
func newCleanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [package]",
		Short: "Remove a package's environment and build artifacts",
		Long: `Remove the package environment and build artifacts.

Deletes the environment directory, build/ and dist/ trees, packaging
metadata, and bytecode caches. Absent paths are not errors, so clean is
idempotent. With no argument, every configured package is cleaned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := app.newWorkbench(cmd.Context())
			if err != nil {
				return err
			}

			var failed bool
			for _, name := range targetPackages(wb, args) {
				if err := wb.Clean(cmd.Context(), name); err != nil {
					fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
					failed = true
					continue
				}
				fmt.Fprintln(app.stdout, SuccessStyle.Render("✓")+" cleaned "+PkgStyle.Render(string(name)))
			}
			if failed {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

// newListCommand creates the `labkit list` command.
func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured packages and their environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := app.newWorkbench(cmd.Context())
			if err != nil {
				return err
			}

			pkgs := wb.Packages()
			if len(pkgs) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No packages configured."))
				return nil
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Packages"))
			for i := range pkgs {
				pkg := &pkgs[i]
				status := SubtitleStyle.Render("not provisioned")
				if wb.Environment(pkg).Exists() {
					status = SuccessStyle.Render("provisioned")
				}
				fmt.Fprintf(app.stdout, "  %s  %s  %s\n",
					PkgStyle.Render(string(pkg.Name)), status, VerboseStyle.Render(pkg.Root))
			}
			return nil
		},
	}
}

// runPipelines resolves the CLI arguments to a set of target packages and
// runs the named pipeline for each. With an explicit package argument the
// exit code is that pipeline's; with none, every configured package runs in
// declaration order and a failure does not stop the remaining packages.
func runPipelines(ctx context.Context, app *App, args []string, mode string) error {
	wb, err := app.newWorkbench(ctx)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return runPipeline(ctx, app, wb, config.PackageName(args[0]), mode)
	}

	var firstErr error
	for _, name := range targetPackages(wb, nil) {
		if err := runPipeline(ctx, app, wb, name, mode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// targetPackages returns the packages named by args, or every configured
// package when args is empty.
func targetPackages(wb *workbench.Workbench, args []string) []config.PackageName {
	if len(args) > 0 {
		names := make([]config.PackageName, 0, len(args))
		for _, arg := range args {
			names = append(names, config.PackageName(arg))
		}
		return names
	}

	pkgs := wb.Packages()
	names := make([]config.PackageName, 0, len(pkgs))
	for i := range pkgs {
		names = append(names, pkgs[i].Name)
	}
	return names
}

// runPipeline executes the named workbench pipeline for one package and
// maps the outcome onto CLI output and the process exit code.
func runPipeline(ctx context.Context, app *App, wb *workbench.Workbench, name config.PackageName, mode string) error {
	var (
		outcome *pipeline.Outcome
		err     error
	)
	switch mode {
	case "install":
		outcome, err = wb.Install(ctx, name)
	case "test":
		outcome, err = wb.Test(ctx, name)
	default:
		return fmt.Errorf("unknown pipeline mode %q", mode)
	}
	if err != nil {
		fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
		return &ExitError{Code: 1, Err: err}
	}

	if !outcome.Success() {
		fmt.Fprintf(app.stderr, "%s stage %s failed (exit %d)\n",
			ErrorStyle.Render("✗"), PkgStyle.Render(outcome.FailedStage()), outcome.ExitCode)
		return &ExitError{Code: outcome.ExitCode, Err: outcome.Err}
	}

	fmt.Fprintf(app.stdout, "%s %s %s (%d stages)\n",
		SuccessStyle.Render("✓"), mode, PkgStyle.Render(string(name)), len(outcome.Completed))
	return nil
}
