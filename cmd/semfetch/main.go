// Package main provides the semfetch binary entry point.
// Semfetch fetches web pages on behalf of LLM agents and returns their
// readable text, refusing private and reserved network destinations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semfetch/config"
	"github.com/c360studio/semfetch/tools/urlsearch"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semfetch"
)

// errFetchFailed marks a fetch that ran but did not succeed. The response
// has already been printed.
var errFetchFailed = errors.New("fetch failed")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errFetchFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Safe URL fetching for LLM agents",
		Long: `Semfetch fetches web pages on behalf of LLM agents and returns their
readable text.

It provides:
- An MCP server exposing the search_url tool over stdio
- URL validation that refuses private, loopback and reserved addresses
- Size, time and rate limits on every fetch
- Text extraction from HTML, plain text and XML`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(flags), fetchCmd(flags), configCmd(flags))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdin/stdout, exposing the search_url tool.

Logs go to stderr. When server.metrics_addr is configured, Prometheus
metrics are served on /metrics at that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel, cmd.ErrOrStderr())
			cfg, err := config.NewLoader(logger).Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	printBanner(os.Stderr)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if cfg.Server.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.Server.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	server := urlsearch.NewServer(a.pipeline, Version, nil)
	server.AddReceivingMiddleware(urlsearch.RecordingMiddleware(logger))

	logger.Info("MCP server started", "tool", urlsearch.ToolName, "version", Version)
	err = server.Run(signalCtx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	logger.Info("MCP server stopped")
	return nil
}

func fetchCmd(flags *globalFlags) *cobra.Command {
	var (
		timeout float64
		output  string
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one URL and print the result",
		Long: `Fetch one URL through the same pipeline the MCP tool uses and print the
result to stdout. Exits with status 1 when the fetch fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel, cmd.ErrOrStderr())
			cfg, err := config.NewLoader(logger).Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}

			var requested *float64
			if cmd.Flags().Changed("timeout") {
				requested = &timeout
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resp := a.pipeline.Run(ctx, args[0], requested)

			if err := writeResponse(cmd.OutOrStdout(), resp, output); err != nil {
				return err
			}
			if !resp.Success {
				return errFetchFailed
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&timeout, "timeout", 0, "Timeout in seconds (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json, text)")
	return cmd
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel, cmd.ErrOrStderr())
			cfg, err := config.NewLoader(logger).Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel, cmd.ErrOrStderr())
			path, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return cmd
}

func writeResponse(w io.Writer, resp any, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "text":
		s, ok := resp.(interface{ Summary() string })
		if !ok {
			return fmt.Errorf("response has no text form")
		}
		_, err := fmt.Fprintln(w, s.Summary())
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// newLogger builds the process logger. Logs always go to stderr because
// stdout carries MCP messages and fetch results.
func newLogger(logLevel string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║             Semfetch v"+Version+"                    ║")
	fmt.Fprintln(w, "║      Safe URL Fetching for Agents             ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════╝")
}
