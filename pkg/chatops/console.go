// SPDX-License-Identifier: MPL-2.0

package chatops

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"

	"labkit/internal/core/serverbase"
	"labkit/internal/testutil"
)

type (
	// Console is the SSH operator console. Sessions authenticate with a
	// token presented as the SSH password and land in a command prompt
	// wired to the shared Registry. A Console instance is single-use:
	// once stopped or failed, create a new instance.
	Console struct {
		*serverbase.Base

		cfg Config
		reg *Registry

		srvMu    sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string // Actual bound address (including resolved port)

		// Token management
		tokens  map[TokenValue]*SessionToken
		tokenMu sync.RWMutex

		clock  testutil.Clock
		logger *log.Logger
	}
)

// NewConsole creates a console over the given registry.
// The console is not started; call Start() to begin accepting connections.
func NewConsole(cfg Config, reg *Registry) *Console {
	return NewConsoleWithClock(cfg, reg, testutil.RealClock{})
}

// NewConsoleWithClock creates a console with an injected clock for
// deterministic token-expiry tests.
func NewConsoleWithClock(cfg Config, reg *Registry, clock testutil.Clock) *Console {
	return &Console{
		Base:   serverbase.NewBase(),
		cfg:    cfg.withDefaults(),
		reg:    reg,
		tokens: make(map[TokenValue]*SessionToken),
		clock:  clock,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "chatops-console",
		}),
	}
}

// Start starts the SSH console and blocks until either the server is ready
// to accept connections, it fails to start, the context is cancelled, or
// the startup timeout is exceeded.
//
// After Start() returns nil, use Err() to monitor for runtime errors.
func (c *Console) Start(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		c.TransitionToFailed(err)
		return c.LastError()
	}
	if err := c.TransitionToStarting(ctx); err != nil {
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, c.cfg.StartupTimeout)
	defer startupCancel()

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		c.TransitionToFailed(fmt.Errorf("failed to listen on %s: %w", addr, err))
		return c.LastError()
	}

	srv, err := wish.NewServer(
		wish.WithAddress(addr),
		wish.WithPublicKeyAuth(c.publicKeyHandler),
		wish.WithPasswordAuth(c.passwordHandler),
		wish.WithMiddleware(
			activeterm.Middleware(),
			c.sessionMiddleware(),
		),
	)
	if err != nil {
		_ = listener.Close() // Best-effort cleanup on error
		c.TransitionToFailed(fmt.Errorf("failed to create SSH server: %w", err))
		return c.LastError()
	}

	c.srvMu.Lock()
	c.listener = listener
	c.addr = listener.Addr().String()
	c.srv = srv
	c.srvMu.Unlock()

	c.AddGoroutine()
	go c.serve()

	c.AddGoroutine()
	go c.cleanupExpiredTokens()

	select {
	case <-c.StartedChannel():
		c.logger.Info("console started", "address", c.addr)
		return nil

	case err := <-c.Err():
		c.TransitionToFailed(err)
		return err

	case <-startupCtx.Done():
		c.TransitionToFailed(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return c.LastError()
	}
}

// Stop gracefully stops the console.
// It blocks until all sessions are closed or the shutdown timeout is
// reached. Safe to call multiple times; subsequent calls are no-ops.
func (c *Console) Stop() error {
	if !c.TransitionToStopping() {
		c.WaitForShutdown()
		return nil
	}
	return c.doStop()
}

// doStop performs the actual shutdown logic.
func (c *Console) doStop() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	c.srvMu.Lock()
	if c.srv != nil {
		shutdownErr = c.srv.Shutdown(shutdownCtx)
		if shutdownErr != nil && !isClosedConnError(shutdownErr) {
			c.logger.Error("shutdown error", "error", shutdownErr)
		} else {
			shutdownErr = nil
		}
	}
	if c.listener != nil {
		_ = c.listener.Close() //nolint:errcheck // Best-effort cleanup during shutdown
	}
	c.srvMu.Unlock()

	c.WaitForShutdown()

	c.TransitionToStopped()
	c.CloseErrChannel()
	c.logger.Info("console stopped")

	return shutdownErr
}

// serve runs the SSH server and handles errors.
func (c *Console) serve() {
	defer c.DoneGoroutine()

	// Transition: Starting -> Running (signals readiness)
	c.TransitionToRunning()

	c.srvMu.Lock()
	srv := c.srv
	listener := c.listener
	c.srvMu.Unlock()

	if srv == nil || listener == nil {
		return
	}

	err := srv.Serve(listener)
	if err != nil {
		// Ignore expected shutdown errors
		if errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		c.SendError(fmt.Errorf("serve error: %w", err))
	}
}

// Address returns the console's bound address (host:port).
// Blocks until the console has started or failed.
// Returns empty string if the console never started or failed.
func (c *Console) Address() string {
	select {
	case <-c.StartedChannel():
		c.srvMu.Lock()
		defer c.srvMu.Unlock()
		return c.addr
	default:
		ctx := c.Context()
		if ctx == nil {
			return ""
		}
		select {
		case <-c.StartedChannel():
			c.srvMu.Lock()
			defer c.srvMu.Unlock()
			return c.addr
		case <-ctx.Done():
			return ""
		}
	}
}

// Port returns the console's listening port.
// Blocks until the console has started or failed.
// Returns 0 if the console never started or failed.
func (c *Console) Port() int {
	addr := c.Address()
	if addr == "" {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0
	}
	return port
}

// Host returns the console's configured host address.
func (c *Console) Host() string {
	return c.cfg.Host.String()
}

// Wait blocks until the console stops (either gracefully or due to error).
// Returns the error if the console failed, nil otherwise.
func (c *Console) Wait() error {
	c.WaitForShutdown()

	if c.State() == serverbase.StateFailed {
		return c.LastError()
	}
	return nil
}

// sessionMiddleware routes authenticated sessions: a session with a command
// runs it once and exits; an interactive session gets the operator prompt.
func (c *Console) sessionMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			argv := sess.Command()

			if len(argv) == 0 {
				c.runPrompt(sess)
			} else {
				c.runOnce(sess, argv)
			}
		}
	}
}

// runOnce dispatches a single command and exits with 0 on success, 1 on failure.
func (c *Console) runOnce(sess ssh.Session, argv []string) {
	cmd, err := parseCommandLine(strings.Join(argv, " "))
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "Error: %v\n", err)
		_ = sess.Exit(1) //nolint:errcheck // Terminal operation; error non-critical
		return
	}

	result, err := c.reg.Dispatch(sess.Context(), cmd)
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "Error: %v\n", err)
		_ = sess.Exit(1) //nolint:errcheck // Terminal operation; error non-critical
		return
	}

	c.printResult(sess, result)
	_ = sess.Exit(0) //nolint:errcheck // Terminal operation; error non-critical
}

// runPrompt runs the interactive operator prompt until the session closes
// or the operator types exit.
func (c *Console) runPrompt(sess ssh.Session) {
	_, _ = fmt.Fprintf(sess, "%s operator console. Type help for commands, exit to leave.\n", c.cfg.Name)

	scanner := bufio.NewScanner(sess)
	for {
		_, _ = fmt.Fprintf(sess, "%s> ", c.cfg.Name)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "exit", "quit":
			_ = sess.Exit(0) //nolint:errcheck // Terminal operation; error non-critical
			return
		case "help":
			_, _ = fmt.Fprintf(sess, "commands: %s\n", strings.Join(c.reg.Commands(), ", "))
			_, _ = fmt.Fprintln(sess, "builtins: help, shell, exit")
			continue
		case "shell":
			c.runShell(sess)
			continue
		}

		cmd, err := parseCommandLine(line)
		if err != nil {
			_, _ = fmt.Fprintf(sess, "Error: %v\n", err)
			continue
		}
		result, err := c.reg.Dispatch(sess.Context(), cmd)
		if err != nil {
			_, _ = fmt.Fprintf(sess, "Error: %v\n", err)
			continue
		}
		c.printResult(sess, result)
	}
	_ = sess.Exit(0) //nolint:errcheck // Terminal operation; error non-critical
}

// runShell drops the operator into the configured shell on a pseudo-terminal.
func (c *Console) runShell(sess ssh.Session) {
	cmd := exec.CommandContext(sess.Context(), c.cfg.DefaultShell)
	cmd.Env = append(os.Environ(), sess.Environ()...)

	ptyReq, winCh, isPty := sess.Pty()
	if isPty {
		cmd.Env = append(cmd.Env, fmt.Sprintf("TERM=%s", ptyReq.Term))
	}

	f, err := startPty(cmd)
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "Error starting shell: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }() // PTY cleanup; error non-critical

	// Handle window size changes
	go func() {
		for win := range winCh {
			setWinsize(f, win.Width, win.Height)
		}
	}()

	// Copy I/O
	go func() {
		_, _ = copyBuffer(f, sess) //nolint:errcheck // I/O copy; errors are non-recoverable
	}()
	_, _ = copyBuffer(sess, f) //nolint:errcheck // I/O copy; errors are non-recoverable

	_ = cmd.Wait() //nolint:errcheck // Shell exit status is not the session's
}

// printResult serializes a dispatch result for the operator.
func (c *Console) printResult(sess ssh.Session, result any) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(sess, "%v\n", result)
		return
	}
	_, _ = sess.Write(append(out, '\n')) //nolint:errcheck // Terminal write; error non-critical
}

// parseCommandLine turns an operator input line into a Command. The first
// field is the command name; a trailing JSON object becomes the payload,
// any other trailing fields become {"args": [...]}.
func parseCommandLine(line string) (Command, error) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}

	cmd := Command{Name: fields[0]}
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "{"):
		if !json.Valid([]byte(rest)) {
			return Command{}, fmt.Errorf("invalid JSON payload for %q", cmd.Name)
		}
		cmd.Data = json.RawMessage(rest)
	default:
		data, err := json.Marshal(map[string][]string{"args": fields[1:]})
		if err != nil {
			return Command{}, err
		}
		cmd.Data = data
	}
	return cmd, nil
}

// isClosedConnError checks if the error is a "use of closed network connection" error.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Err.Error() == "use of closed network connection"
	}
	return false
}
