package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/membank/internal/auth"
	"github.com/2389/membank/internal/config"
	"github.com/2389/membank/internal/store"
)

func init() {
	color.NoColor = true
}

func TestSetupLogger_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.With("component", "server").WithGroup("req").Warn("slow request", "ms", 120)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN slow request")
	assert.Contains(t, out, " component=server")
	assert.Contains(t, out, "req.ms=120")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("tool executed", slog.String("tool", "read_memory_bank"))

	assert.Contains(t, buf.String(), `"msg":"tool executed"`)
	assert.Contains(t, buf.String(), `"tool":"read_memory_bank"`)
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":3000", "http://localhost:3000/health"},
		{"0.0.0.0:8080", "http://localhost:8080/health"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/health"},
		{"[::]:3000", "http://localhost:3000/health"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, healthURL(tt.addr))
		})
	}
}

func TestRunHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","sessions":0,"tools":6}` + "\n"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), &out, srv.URL+"/health"))
	assert.Equal(t, `{"status":"ok","sessions":0,"tools":6}`+"\n", out.String())

	err := runHealth(context.Background(), &out, srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printHistory(&out, nil))
	assert.Equal(t, "No invocations recorded.\n", out.String())

	out.Reset()
	invs := []store.Invocation{
		{Tool: "read_memory_bank", OK: true, CorrelationID: "c-1", Duration: 3 * time.Millisecond, Timestamp: time.Now()},
		{Tool: "update_memory_bank_file", OK: false, Error: "File nope not found in memory bank", Timestamp: time.Now()},
	}
	require.NoError(t, printHistory(&out, invs))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TOOL")
	assert.Contains(t, lines[1], "read_memory_bank")
	assert.Contains(t, lines[1], "c-1")
	assert.Contains(t, lines[2], "error: File nope not found in memory bank")
}

func TestTokenCmd(t *testing.T) {
	secret := strings.Repeat("s", auth.MinSecretLength)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "membank.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("auth:\n  jwt_secret: "+secret+"\n"), 0600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--config", cfgPath, "--subject", "alice", "--ttl", "1h"})
	require.NoError(t, root.Execute())

	verifier, err := auth.NewJWTVerifier([]byte(secret))
	require.NoError(t, err)
	sub, err := verifier.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestTokenCmd_NoSecret(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "membank.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: \":4000\"\n"), 0600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--config", cfgPath})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membank.toml")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", path})
	require.NoError(t, root.Execute())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--config", path})
	assert.Error(t, root.Execute(), "existing file is kept without --force")
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.RecordInvocation(context.Background(), &store.Invocation{Tool: "read_global_rules", OK: true}))
	require.NoError(t, st.RecordInvocation(context.Background(), &store.Invocation{Tool: "read_memory_bank", OK: false, Error: "boom"}))
	require.NoError(t, st.Close())

	cfgPath := filepath.Join(dir, "membank.yaml")
	cfgYAML := "workspace:\n  path: " + dir + "\ndatabase:\n  path: history.db\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"history", "--config", cfgPath, "--failed"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "read_memory_bank")
	assert.NotContains(t, out.String(), "read_global_rules")
}

func TestRootCmd_ReportsBuildVersion(t *testing.T) {
	saved := version
	version = "v1.2.3"
	t.Cleanup(func() { version = saved })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "v1.2.3")
}
