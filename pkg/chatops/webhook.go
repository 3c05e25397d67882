// SPDX-License-Identifier: MPL-2.0

package chatops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"labkit/internal/core/serverbase"
)

// authHeader is the request header carrying the shared webhook secret.
const authHeader = "X-Labkit-Token"

type (
	// WebhookServer serves operator commands over HTTP. It answers JSON on
	// the configured URL path and a plain-text 404 everywhere else.
	// A WebhookServer instance is single-use: once stopped or failed,
	// create a new instance.
	WebhookServer struct {
		*serverbase.Base

		cfg Config
		reg *Registry

		srvMu    sync.Mutex
		srv      *http.Server
		listener net.Listener
		addr     string // Actual bound address (including resolved port)

		logger *log.Logger
	}

	// Response is the JSON envelope for every webhook reply on the
	// configured path.
	Response struct {
		OK     bool   `json:"ok"`
		Name   string `json:"name,omitempty"`
		Result any    `json:"result,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	// statusPayload answers GET requests on the configured path.
	statusPayload struct {
		Name     string   `json:"name"`
		State    string   `json:"state"`
		Commands []string `json:"commands"`
	}
)

// NewWebhookServer creates a webhook server over the given registry.
// The server is not started; call Start() to begin accepting connections.
func NewWebhookServer(cfg Config, reg *Registry) *WebhookServer {
	return &WebhookServer{
		Base: serverbase.NewBase(),
		cfg:  cfg.withDefaults(),
		reg:  reg,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "chatops-webhook",
		}),
	}
}

// Start starts the webhook server and blocks until either the server is
// ready to accept connections, it fails to start, the context is cancelled,
// or the startup timeout is exceeded.
//
// After Start() returns nil, use Err() to monitor for runtime errors.
func (s *WebhookServer) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		s.TransitionToFailed(err)
		return s.LastError()
	}
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer startupCancel()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		s.TransitionToFailed(fmt.Errorf("failed to listen on %s: %w", addr, err))
		return s.LastError()
	}

	s.srvMu.Lock()
	s.listener = listener
	s.addr = listener.Addr().String()
	s.srv = &http.Server{Handler: http.HandlerFunc(s.handle)}
	s.srvMu.Unlock()

	s.AddGoroutine()
	go s.serve()

	select {
	case <-s.StartedChannel():
		s.logger.Info("webhook server started", "address", s.addr, "path", s.cfg.Path)
		return nil

	case err := <-s.Err():
		s.TransitionToFailed(err)
		return err

	case <-startupCtx.Done():
		s.TransitionToFailed(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return s.LastError()
	}
}

// Stop gracefully stops the webhook server.
// It blocks until in-flight requests finish or the shutdown timeout is
// reached. Safe to call multiple times; subsequent calls are no-ops.
func (s *WebhookServer) Stop() error {
	if !s.TransitionToStopping() {
		s.WaitForShutdown()
		return nil
	}
	return s.doStop()
}

// doStop performs the actual shutdown logic.
func (s *WebhookServer) doStop() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	s.srvMu.Lock()
	if s.srv != nil {
		shutdownErr = s.srv.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, net.ErrClosed) {
			s.logger.Error("shutdown error", "error", shutdownErr)
		} else {
			shutdownErr = nil
		}
	}
	if s.listener != nil {
		_ = s.listener.Close() //nolint:errcheck // Best-effort cleanup during shutdown
	}
	s.srvMu.Unlock()

	s.WaitForShutdown()

	s.TransitionToStopped()
	s.CloseErrChannel()
	s.logger.Info("webhook server stopped")

	return shutdownErr
}

// serve runs the HTTP server and handles errors.
func (s *WebhookServer) serve() {
	defer s.DoneGoroutine()

	// Transition: Starting -> Running (signals readiness)
	s.TransitionToRunning()

	s.srvMu.Lock()
	srv := s.srv
	listener := s.listener
	s.srvMu.Unlock()

	if srv == nil || listener == nil {
		return
	}

	err := srv.Serve(listener)
	if err != nil {
		// Ignore expected shutdown errors
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return
		}
		s.SendError(fmt.Errorf("serve error: %w", err))
	}
}

// Address returns the server's bound address (host:port).
// Blocks until the server has started or failed.
// Returns empty string if server never started or failed.
func (s *WebhookServer) Address() string {
	select {
	case <-s.StartedChannel():
		s.srvMu.Lock()
		defer s.srvMu.Unlock()
		return s.addr
	default:
		ctx := s.Context()
		if ctx == nil {
			return ""
		}
		select {
		case <-s.StartedChannel():
			s.srvMu.Lock()
			defer s.srvMu.Unlock()
			return s.addr
		case <-ctx.Done():
			return ""
		}
	}
}

// URL returns the full webhook URL (http://host:port/path).
// Blocks until the server has started or failed.
func (s *WebhookServer) URL() string {
	addr := s.Address()
	if addr == "" {
		return ""
	}
	return fmt.Sprintf("http://%s%s", addr, s.cfg.Path)
}

// handle routes a single HTTP request. Everything off the configured path
// gets a plain 404; on-path requests get a JSON envelope.
func (s *WebhookServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.cfg.Path.String() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprintln(w, "Not found") //nolint:errcheck // Best-effort reply
		return
	}

	if s.cfg.AuthToken != "" && TokenValue(r.Header.Get(authHeader)) != s.cfg.AuthToken {
		s.logger.Warn("rejected webhook request", "remote", r.RemoteAddr)
		s.writeJSON(w, http.StatusUnauthorized, Response{OK: false, Error: "invalid auth token"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, Response{
			OK:   true,
			Name: s.cfg.Name,
			Result: statusPayload{
				Name:     s.cfg.Name,
				State:    s.State().String(),
				Commands: s.reg.Commands(),
			},
		})

	case http.MethodPost:
		s.dispatch(w, r)

	default:
		s.writeJSON(w, http.StatusMethodNotAllowed, Response{OK: false, Error: "method not allowed"})
	}
}

// dispatch decodes a Command from the request body and runs it through
// the registry.
func (s *WebhookServer) dispatch(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if cmd.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "missing command name"})
		return
	}

	result, err := s.reg.Dispatch(r.Context(), cmd)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownCommand) {
			status = http.StatusNotFound
		}
		s.logger.Warn("command failed", "command", cmd.Name, "error", err)
		s.writeJSON(w, status, Response{OK: false, Name: s.cfg.Name, Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, Response{OK: true, Name: s.cfg.Name, Result: result})
}

func (s *WebhookServer) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
