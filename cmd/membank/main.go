// ABOUTME: Entry point for the membank tool server
// ABOUTME: Serves the memory bank tools over HTTP with a push stream for results

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/membank/internal/config"
	"github.com/2389/membank/internal/gateway"
)

// version is overridden at build time with -ldflags "-X main.version=<tag>".
var version = "dev"

const banner = `
                           _                 _
 _ __ ___   ___ _ __ ___ | |__   __ _ _ __ | | __
| '_ ' _ \ / _ \ '_ ' _ \| '_ \ / _' | '_ \| |/ /
| | | | | |  __/ | | | | | |_) | (_| | | | |   <
|_| |_| |_|\___|_| |_| |_|_.__/ \__,_|_| |_|_|\_\
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "membank",
		Short:         "Memory bank tool server for editor agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to membank.yaml or membank.toml (default: $MEMBANK_CONFIG or ./membank.yaml)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newHealthCmd(),
		newHistoryCmd(),
		newTokenCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("workspace", "w", "", "Project workspace holding the memory bank")
	cmd.Flags().String("addr", "", "Listen address, e.g. :3000")
	return cmd
}

// loadConfig resolves the config file from --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, loaded, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	if f := cmd.Flags().Lookup("workspace"); f != nil && f.Changed {
		cfg.Workspace.Path = f.Value.String()
	}
	if f := cmd.Flags().Lookup("addr"); f != nil && f.Changed {
		cfg.Server.Addr = f.Value.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("validating config: %w", err)
	}
	return cfg, loaded, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = "(defaults)"
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Workspace: %s\n", cfg.Workspace.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.Addr)
	if path := gateway.ResolveDBPath(cfg); path != "" {
		green.Print("    ▶ ")
		fmt.Printf("History:   %s\n", path)
	}
	if cfg.Auth.JWTSecret != "" {
		green.Print("    ▶ ")
		fmt.Print("Auth:      ")
		yellow.Println("bearer token required")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting membank",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"workspace", cfg.Workspace.Path,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(cmd.Context())
}
