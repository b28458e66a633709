// ABOUTME: HTTP protocol server: push stream at /sse, tool invocation at /execute.
// ABOUTME: Invocation outcomes are broadcast to every open stream, not just the caller.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/membank/internal/auth"
	"github.com/2389/membank/internal/observe"
	"github.com/2389/membank/internal/session"
	"github.com/2389/membank/internal/store"
	"github.com/2389/membank/internal/tools"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Event names pushed on the stream.
const (
	EventServerInfo   = "server_info"
	EventToolResponse = "tool_response"
)

const (
	defaultWriteTimeout = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Info identifies the server to subscribers.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ServerInfo is the data of the first frame on every stream.
type ServerInfo struct {
	Info
	Tools []tools.Info `json:"tools"`
}

// Recorder persists invocation outcomes.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv *store.Invocation) error
}

// Config holds configuration for the protocol server.
type Config struct {
	Registry *tools.Registry  // required
	Sessions *session.Manager // required
	Info     Info
	Logger   *slog.Logger

	// Recorder receives every invocation. Optional.
	Recorder Recorder

	// Verifier enables bearer auth on /sse and /execute. Optional.
	Verifier auth.TokenVerifier

	Metrics *observe.Metrics

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// HeartbeatInterval between ": ping" comments. Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds each stream write. Default 10s.
	WriteTimeout time.Duration
}

// Server serves the protocol endpoints.
type Server struct {
	registry       *tools.Registry
	sessions       *session.Manager
	info           Info
	logger         *slog.Logger
	recorder       Recorder
	verifier       auth.TokenVerifier
	metrics        *observe.Metrics
	metricsHandler http.Handler
	metricsPath    string
	heartbeat      time.Duration
	writeTimeout   time.Duration
}

// New creates a server. Tools must be registered before the server starts
// accepting connections.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	return &Server{
		registry:       cfg.Registry,
		sessions:       cfg.Sessions,
		info:           cfg.Info,
		logger:         logger.With("component", "server"),
		recorder:       cfg.Recorder,
		verifier:       cfg.Verifier,
		metrics:        cfg.Metrics,
		metricsHandler: cfg.MetricsHandler,
		metricsPath:    metricsPath,
		heartbeat:      cfg.HeartbeatInterval,
		writeTimeout:   writeTimeout,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	protect := func(h http.HandlerFunc) http.Handler {
		if s.verifier == nil {
			return h
		}
		return auth.HTTPAuthMiddleware(s.verifier, s.logger)(h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /sse", protect(s.handleSSE))
	mux.Handle("POST /execute", protect(s.handleExecute))
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
	}
	// Catch-all: unmatched paths and methods.
	mux.HandleFunc("/", s.handleNotFound)

	return withCORS(s.withRecover(mux))
}

// Serve listens on addr and serves until ctx is done. A bind failure is
// returned immediately.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then closes every session
// and shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	// Streams never finish on their own; closing them lets Shutdown drain.
	s.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) serverInfo() ServerInfo {
	return ServerInfo{Info: s.info, Tools: s.registry.List()}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"tools":    s.registry.Len(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("not found", "method", r.Method, "path", r.URL.Path)
	s.writeError(w, http.StatusNotFound, "Not found")
}

// withCORS sets permissive CORS headers on every response and answers
// preflight requests with 204.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRecover converts a panic in a handler into a 500 JSON error.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				s.writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
