// Package store persists the tool invocation log in SQLite.
//
// # Schema
//
// A single table records one row per executed tool call:
//
//	invocations(invocation_id, tool, correlation_id, ok, error, params_json, duration_ms, ts)
//
// Timestamps are stored as fixed-width UTC strings so lexical order matches
// time order. Params are stored as JSON and dropped when they exceed 64KB.
//
// # Usage
//
//	st, err := store.NewSQLiteStore(".membank/history.db")
//	if err != nil { ... }
//	defer st.Close()
//
//	_ = st.RecordInvocation(ctx, &store.Invocation{Tool: "read_memory_bank", OK: true})
//	invs, _ := st.ListInvocations(ctx, store.InvocationFilter{Limit: 20})
//
// ListInvocations returns newest first. The default limit is 100 and the
// maximum is 1000.
//
// The driver is modernc.org/sqlite, so the binary builds without cgo.
package store
