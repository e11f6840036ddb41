package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/counselhq/counsel/internal/api"
	"github.com/counselhq/counsel/internal/config"
	"github.com/counselhq/counsel/internal/dispatch"
	"github.com/counselhq/counsel/internal/enrich"
	"github.com/counselhq/counsel/internal/fetch"
	"github.com/counselhq/counsel/internal/llm"
	"github.com/counselhq/counsel/internal/stage"
	"github.com/counselhq/counsel/internal/storage"
	"github.com/counselhq/counsel/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the counsel server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running counsel server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counsel system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one scheduler sweep against the local database and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "counsel.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseInterval(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in config, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "counsel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice: probe the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("counsel is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("counsel is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the pipeline stages.
	chatClient := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if !chatClient.Configured() {
		slog.Warn("no LLM API key configured; retrieval degrades to placeholder payloads")
	}
	fetcher := fetch.New(&http.Client{Timeout: 15 * time.Second})
	retriever := stage.NewRetriever(store, chatClient, fetcher, cfg.LLM.Model, 0)
	summarizer := stage.NewSummarizer(store, chatClient, cfg.LLM.Model, 0)

	var enricher worker.Runner
	if cfg.MCP.Command != "" {
		tool := enrich.NewStdioTool(cfg.MCP.Command, strings.Fields(cfg.MCP.Args), nil, cfg.MCP.Tool, cfg.MCP.ArgName)
		defer tool.Close()
		enricher = enrich.NewEnricher(store, tool, 0)
		slog.Info("mcp enrichment enabled", "command", cfg.MCP.Command, "tool", cfg.MCP.Tool)
	}

	// Queue worker and scheduler dispatcher.
	w := worker.NewWorker(store, retriever, summarizer, enricher,
		parseInterval(cfg.Worker.PollInterval, 500*time.Millisecond))
	go w.Run(ctx)

	dispatcher := dispatch.NewDispatcher(store,
		parseInterval(cfg.Scheduler.SweepInterval, 30*time.Second), nil)
	go dispatcher.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Token:      cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("counsel listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("counsel is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop counsel (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to counsel (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.LLM.APIKey == "" {
		printStatus("LLM", "not configured (placeholder mode)")
	} else {
		printStatus("LLM", "%s via %s", cfg.LLM.Model, cfg.LLM.BaseURL)
	}
	if cfg.MCP.Command == "" {
		printStatus("Enrichment", "disabled")
	} else {
		printStatus("Enrichment", "%s (tool %s)", cfg.MCP.Command, cfg.MCP.Tool)
	}

	// Task queue depth straight from the local database.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err == nil {
		defer store.Close()
		if counts, err := store.CountTasks(); err == nil {
			printStatus("Tasks", "%d pending, %d running, %d failed",
				counts["pending"], counts["running"], counts["failed"])
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// runSweep performs one dispatcher pass without the server. Useful from
// cron or for debugging schedule definitions.
func runSweep(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	dispatcher := dispatch.NewDispatcher(store, 0, nil)
	n, err := dispatcher.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	printSuccess("Sweep dispatched %d prompt(s)", n)
	return nil
}
