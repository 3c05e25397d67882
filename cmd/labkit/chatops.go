// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"labkit/internal/config"
	"labkit/internal/pipeline"
	"labkit/internal/workbench"
	"labkit/pkg/chatops"
)

// newChatopsCommand creates the `labkit chatops` command tree.
func newChatopsCommand(app *App) *cobra.Command {
	var (
		listenAddr string
		urlPath    string
		name       string
	)

	chatopsCmd := &cobra.Command{
		Use:   "chatops",
		Short: "Run the operator command server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the webhook endpoint and the SSH operator console",
		Long: `Start the operator command server.

The webhook endpoint answers JSON on the configured URL path and plain 404
everywhere else. When the console is enabled in the configuration, an SSH
operator console starts alongside it; both dispatch the same commands
(status, install, test, clean) against the configured packages.

The server runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatops(cmd.Context(), app, listenAddr, urlPath, name)
		},
	}
	runCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8080", "webhook listen address (host:port)")
	runCmd.Flags().StringVar(&urlPath, "path", "/chatops", "URL path the webhook answers on")
	runCmd.Flags().StringVar(&name, "name", "labkit", "server name reported in status payloads")

	chatopsCmd.AddCommand(runCmd)

	return chatopsCmd
}

// runChatops starts the webhook server (and the console when enabled) and
// blocks until the context is cancelled.
func runChatops(ctx context.Context, app *App, listenAddr, urlPath, name string) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	wb, err := app.newWorkbench(ctx)
	if err != nil {
		return err
	}

	reg := chatops.NewRegistry()
	registerWorkbenchCommands(reg, wb)

	host, port, err := splitListenAddr(listenAddr)
	if err != nil {
		return err
	}

	webhookCfg := chatops.Config{
		Name:      name,
		Host:      chatops.HostAddress(host),
		Port:      port,
		Path:      chatops.URLPath(urlPath),
		AuthToken: chatops.TokenValue(cfg.Console.AuthToken),
	}

	webhook := chatops.NewWebhookServer(webhookCfg, reg)
	if err := webhook.Start(ctx); err != nil {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}
	defer func() { _ = webhook.Stop() }() //nolint:errcheck // Best-effort shutdown
	fmt.Fprintf(app.stdout, "%s webhook listening on %s\n", SuccessStyle.Render("✓"), PkgStyle.Render(webhook.URL()))

	var console *chatops.Console
	if cfg.Console.Enabled {
		conHost, conPort, err := splitListenAddr(cfg.Console.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid console listen address: %w", err)
		}
		consoleCfg := chatops.Config{
			Name:      name,
			Host:      chatops.HostAddress(conHost),
			Port:      conPort,
			AuthToken: chatops.TokenValue(cfg.Console.AuthToken),
		}
		console = chatops.NewConsole(consoleCfg, reg)
		if err := console.Start(ctx); err != nil {
			return fmt.Errorf("failed to start console: %w", err)
		}
		defer func() { _ = console.Stop() }() //nolint:errcheck // Best-effort shutdown
		fmt.Fprintf(app.stdout, "%s console listening on %s\n", SuccessStyle.Render("✓"), PkgStyle.Render(console.Address()))
	}

	<-ctx.Done()
	fmt.Fprintln(app.stdout, SubtitleStyle.Render("shutting down..."))
	return nil
}

// registerWorkbenchCommands wires the workbench pipelines into the chatops
// registry as operator commands.
func registerWorkbenchCommands(reg *chatops.Registry, wb *workbench.Workbench) {
	reg.Register("status", func(_ context.Context, _ chatops.Command) (any, error) {
		pkgs := wb.Packages()
		statuses := make([]map[string]any, 0, len(pkgs))
		for i := range pkgs {
			pkg := &pkgs[i]
			statuses = append(statuses, map[string]any{
				"package":     string(pkg.Name),
				"root":        pkg.Root,
				"provisioned": wb.Environment(pkg).Exists(),
			})
		}
		return statuses, nil
	})

	reg.Register("install", func(ctx context.Context, cmd chatops.Command) (any, error) {
		name, err := packageArg(cmd)
		if err != nil {
			return nil, err
		}
		outcome, err := wb.Install(ctx, name)
		if err != nil {
			return nil, err
		}
		return outcomeInfo(name, outcome), nil
	})

	reg.Register("test", func(ctx context.Context, cmd chatops.Command) (any, error) {
		name, err := packageArg(cmd)
		if err != nil {
			return nil, err
		}
		outcome, err := wb.Test(ctx, name)
		if err != nil {
			return nil, err
		}
		return outcomeInfo(name, outcome), nil
	})

	reg.Register("clean", func(ctx context.Context, cmd chatops.Command) (any, error) {
		name, err := packageArg(cmd)
		if err != nil {
			return nil, err
		}
		if err := wb.Clean(ctx, name); err != nil {
			return nil, err
		}
		return map[string]any{"package": string(name), "cleaned": true}, nil
	})
}

// outcomeInfo summarizes a pipeline outcome for an operator reply.
// A failed pipeline is a valid reply, not a dispatch error, so handlers
// never trigger dispatch retries for it.
func outcomeInfo(name config.PackageName, outcome *pipeline.Outcome) map[string]any {
	info := map[string]any{
		"package":   string(name),
		"ok":        outcome.Success(),
		"exit_code": int(outcome.ExitCode),
		"completed": outcome.Completed,
	}
	if !outcome.Success() {
		info["failed_stage"] = outcome.FailedStage()
		if outcome.Err != nil {
			info["error"] = outcome.Err.Error()
		}
	}
	return info
}

// packageArg extracts the target package name from a command payload.
// Accepts {"package": "bst"} or {"args": ["bst"]}.
func packageArg(cmd chatops.Command) (config.PackageName, error) {
	var payload struct {
		Package string   `json:"package"`
		Args    []string `json:"args"`
	}
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			return "", fmt.Errorf("invalid %s payload: %w", cmd.Name, err)
		}
	}

	name := payload.Package
	if name == "" && len(payload.Args) > 0 {
		name = payload.Args[0]
	}
	if name == "" {
		return "", fmt.Errorf("%s: missing package name", cmd.Name)
	}
	return config.PackageName(name), nil
}

// splitListenAddr parses a host:port listen address.
func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}
