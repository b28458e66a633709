// ABOUTME: Gateway orchestrator that wires the memory bank, tools, sessions and HTTP server
// ABOUTME: Owns startup checks, the invocation store, telemetry and shutdown lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/2389/membank/internal/auth"
	"github.com/2389/membank/internal/builtins"
	"github.com/2389/membank/internal/commands"
	"github.com/2389/membank/internal/config"
	"github.com/2389/membank/internal/memorybank"
	"github.com/2389/membank/internal/observe"
	"github.com/2389/membank/internal/server"
	"github.com/2389/membank/internal/session"
	"github.com/2389/membank/internal/store"
	"github.com/2389/membank/internal/tools"
)

// Gateway owns every long-lived component of the server.
type Gateway struct {
	config    *config.Config
	logger    *slog.Logger
	bank      *memorybank.Manager
	registry  *tools.Registry
	sessions  *session.Manager
	processor *commands.Processor
	store     *store.SQLiteStore // nil when the invocation log is disabled
	telemetry *observe.Provider
	server    *server.Server
}

// ResolveDBPath returns the invocation log path for cfg. Relative paths are
// resolved against the workspace; "" means disabled.
func ResolveDBPath(cfg *config.Config) string {
	path := cfg.Database.Path
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.Workspace.Path, path)
}

// initStore opens the invocation log, or returns nil when disabled.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	path := ResolveDBPath(cfg)
	if path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening invocation store: %w", err)
	}
	return s, nil
}

// New builds a gateway from cfg. Every tool is registered before the
// returned gateway can accept connections.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bank, err := memorybank.NewManager(memorybank.Options{
		Workspace: cfg.Workspace.Path,
		BankDir:   cfg.Workspace.BankDir,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	telemetry, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    cfg.Server.Name,
		ServiceVersion: cfg.Server.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	sessions := session.NewManager(logger.With("component", "sessions"), telemetry.Metrics)
	registry := tools.NewRegistry(logger.With("component", "tools"))
	processor := commands.NewProcessor(bank, logger)

	if err := builtins.RegisterMemoryBankPack(registry, bank, processor); err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	st, err := initStore(cfg)
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, err
	}

	srvCfg := server.Config{
		Registry: registry,
		Sessions: sessions,
		Info: server.Info{
			Name:        cfg.Server.Name,
			Description: cfg.Server.Description,
			Version:     cfg.Server.Version,
		},
		Logger:            logger,
		Metrics:           telemetry.Metrics,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		WriteTimeout:      cfg.Stream.WriteTimeout,
	}
	// Assigned conditionally so a nil store never becomes a non-nil interface.
	if st != nil {
		srvCfg.Recorder = st
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsHandler = telemetry.Handler
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			closeQuietly(st, telemetry)
			return nil, fmt.Errorf("creating token verifier: %w", err)
		}
		srvCfg.Verifier = verifier
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		closeQuietly(st, telemetry)
		return nil, err
	}

	return &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		bank:      bank,
		registry:  registry,
		sessions:  sessions,
		processor: processor,
		store:     st,
		telemetry: telemetry,
		server:    srv,
	}, nil
}

func closeQuietly(st *store.SQLiteStore, telemetry *observe.Provider) {
	if st != nil {
		_ = st.Close()
	}
	_ = telemetry.Shutdown(context.Background())
}

// StartupChecks prepares the workspace: .cursorrules, global rules, and a
// report on whether a memory bank already exists. Problems are logged, not
// returned, so a read-only workspace still serves.
func (g *Gateway) StartupChecks(ctx context.Context) {
	created, err := g.bank.EnsureCursorRules(ctx)
	switch {
	case err != nil:
		g.logger.Warn("could not create .cursorrules", "error", err)
	case created:
		g.logger.Info("created .cursorrules", "workspace", g.bank.Workspace())
	default:
		g.logger.Debug(".cursorrules present")
	}

	if _, err := g.bank.InitializeGlobalRules(ctx); err != nil {
		g.logger.Warn("could not initialize global rules", "path", g.bank.RulesPath(), "error", err)
	}

	if !g.bank.DetectCline(ctx) {
		g.logger.Info("no memory bank found; use initialize_memory_bank to create one", "dir", g.bank.Dir())
		return
	}
	files, err := g.bank.ReadAll(ctx)
	if err != nil {
		g.logger.Warn("memory bank present but unreadable", "dir", g.bank.Dir(), "error", err)
		return
	}
	g.logger.Info("memory bank found", "dir", g.bank.Dir(), "files", len(files))
}

// Run performs startup checks and serves until ctx is canceled. A bind
// failure aborts startup.
func (g *Gateway) Run(ctx context.Context) error {
	g.StartupChecks(ctx)

	g.logger.Info("starting server",
		"addr", g.config.Server.Addr,
		"tools", g.registry.Len(),
		"auth", g.config.Auth.JWTSecret != "",
		"metrics", g.config.Metrics.Enabled,
	)
	serveErr := g.server.Serve(ctx, g.config.Server.Addr)

	shutdownErr := g.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown closes sessions and releases the store and telemetry.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.sessions.CloseAll()

	var errs []error
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	errs = appendCloseError(errs, "telemetry shutdown", g.telemetry.Shutdown(ctx))

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func appendCloseError(errs []error, what string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", what, err))
	}
	return errs
}

// Handler exposes the HTTP handler without binding a listener.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler()
}

// Registry returns the tool registry.
func (g *Gateway) Registry() *tools.Registry { return g.registry }

// Sessions returns the session manager.
func (g *Gateway) Sessions() *session.Manager { return g.sessions }

// Bank returns the memory bank manager.
func (g *Gateway) Bank() *memorybank.Manager { return g.bank }

// Store returns the invocation store, nil when disabled.
func (g *Gateway) Store() *store.SQLiteStore { return g.store }
