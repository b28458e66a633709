// ABOUTME: Auxiliary CLI commands: init, health, history and token
// ABOUTME: Each reads the same config as serve so flags and files stay consistent

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/membank/internal/auth"
	"github.com/2389/membank/internal/config"
	"github.com/2389/membank/internal/gateway"
	"github.com/2389/membank/internal/store"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = "membank.yaml"
			}
			force, _ := cmd.Flags().GetBool("force")

			if err := config.WriteDefault(path, force); err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			green.Print("✓ ")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a running server's health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHealth(cmd.Context(), cmd.OutOrStdout(), healthURL(cfg.Server.Addr))
		},
	}
}

// healthURL turns a listen address such as ":3000" into a dialable URL.
func healthURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/health"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

func runHealth(ctx context.Context, out io.Writer, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent tool invocations",
		RunE:  runHistory,
	}
	cmd.Flags().StringP("workspace", "w", "", "Project workspace holding the memory bank")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of invocations to show")
	cmd.Flags().String("tool", "", "Only show invocations of this tool")
	cmd.Flags().Bool("failed", false, "Only show failed invocations")
	cmd.Flags().Duration("since", 0, "Only show invocations newer than this, e.g. 1h")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := gateway.ResolveDBPath(cfg)
	if path == "" || path == ":memory:" {
		return errors.New("invocation history is disabled (database.path is empty)")
	}

	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening invocation store: %w", err)
	}
	defer func() { _ = st.Close() }()

	filter := store.InvocationFilter{}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.FailedOnly, _ = cmd.Flags().GetBool("failed")
	if tool, _ := cmd.Flags().GetString("tool"); tool != "" {
		filter.Tool = &tool
	}
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}

	invs, err := st.ListInvocations(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return printHistory(cmd.OutOrStdout(), invs)
}

func printHistory(out io.Writer, invs []store.Invocation) error {
	if len(invs) == 0 {
		fmt.Fprintln(out, "No invocations recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tDURATION\tID\tSTATUS")
	for _, inv := range invs {
		status := color.GreenString("ok")
		if !inv.OK {
			status = color.RedString("error: %s", inv.Error)
		}
		id := inv.CorrelationID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			inv.Timestamp.Local().Format(time.DateTime),
			inv.Tool,
			inv.Duration.Round(time.Microsecond),
			id,
			status,
		)
	}
	return tw.Flush()
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}

			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}
			token, err := verifier.Generate(subject, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "cursor", "Token subject")
	cmd.Flags().Duration("ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
