// Package main is the entry point for the odoo-mcp CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pantalytics/odoo-mcp-pro/internal/config"
	"github.com/pantalytics/odoo-mcp-pro/internal/security"
	"github.com/pantalytics/odoo-mcp-pro/internal/server"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "odoo-mcp",
		Short:         "An MCP server exposing an Odoo backend to AI clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("odoo-mcp %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the backend and serve MCP clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := newLogger(cfg)
			slog.SetDefault(logger)

			srv, err := server.New(server.Options{
				Config:  cfg,
				Logger:  logger,
				Version: version,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringP("config", "c", "config.yaml", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (transport: %s, dialect: %s, access mode: %s)\n",
				cfg.Server.Transport, cfg.OdooConfig().Normalized().Dialect, cfg.Access.Mode)
			return nil
		},
	})
	return cmd
}

// newLogger builds the process logger. On the stdio transport stdout
// carries the protocol, so logs always go to stderr; every record passes
// through the redactor before leaving the process.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	redactor := security.NewRedactor()
	creds := security.NewCredentialStore()
	creds.Set("odoo.api_key", cfg.Odoo.APIKey)
	creds.Set("odoo.password", cfg.Odoo.Password)
	creds.Set("oauth.client_secret", cfg.OAuth.ClientSecret)
	redactor.SyncCredentials(creds)

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}
