// Package gateway wires the membank server together.
//
// # Overview
//
// The Gateway owns every long-lived component:
//
//	type Gateway struct {
//	    config    *config.Config
//	    bank      *memorybank.Manager
//	    registry  *tools.Registry
//	    sessions  *session.Manager
//	    processor *commands.Processor
//	    store     *store.SQLiteStore
//	    telemetry *observe.Provider
//	    server    *server.Server
//	}
//
// New registers the memory bank tools before the server is constructed, so
// the registry is complete before any connection is accepted.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil { ... }
//	err = gw.Run(ctx) // startup checks, serve, graceful shutdown
//
// Run returns when ctx is canceled or when the listen address cannot be
// bound. Shutdown closes every session, the invocation store and the
// telemetry providers.
//
// # Startup Checks
//
// StartupChecks creates .cursorrules and the global rules file when
// missing and logs whether a memory bank already exists. Failures are
// logged and do not stop the server.
package gateway
