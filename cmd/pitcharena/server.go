package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/pitcharena/internal/api"
	"github.com/kalambet/pitcharena/internal/chat"
	"github.com/kalambet/pitcharena/internal/config"
	"github.com/kalambet/pitcharena/internal/enrich"
	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/genai"
	"github.com/kalambet/pitcharena/internal/keypool"
	"github.com/kalambet/pitcharena/internal/queue"
	"github.com/kalambet/pitcharena/internal/search"
	"github.com/kalambet/pitcharena/internal/storage"
)

const fetchByteBudget = 2 << 20 // 2MB per enrichment page

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pitcharena server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pitcharena server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pitcharena system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pitcharena.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "pitcharena version %s\n", version)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start a second copy. The health endpoint is the source of
	// truth; the PID file just names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pitcharena is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pitcharena is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the generation client on the round-robin credential pool.
	pool, err := keypool.New(cfg.Generation.APIKeys)
	if err != nil {
		return fmt.Errorf("initializing credential pool: %w", err)
	}
	slog.Info("credential pool ready", "keys", pool.Size(), "model", cfg.Generation.Model)

	var gen *genai.Client
	if cfg.Generation.BaseURL != "" {
		gen = genai.NewClientWithBaseURL(pool, cfg.Generation.Model, cfg.Generation.Timeout, cfg.Generation.BaseURL)
	} else {
		gen = genai.NewClient(pool, cfg.Generation.Model, cfg.Generation.Timeout)
	}

	// Wire the optional agentic tier; without search credentials the
	// engine starts at the baseline tier.
	var enricher eval.ContextProvider
	if cfg.Search.Configured() {
		searchClient := search.NewClient(cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.Timeout)
		fetcher := enrich.NewFetcher(cfg.Search.Timeout, fetchByteBudget)
		enricher = enrich.New(searchClient, fetcher, enrich.Options{
			ResultsPerQuery: cfg.Search.ResultsPerQuery,
			FetchPages:      cfg.Enrich.FetchPages,
			ExcerptChars:    cfg.Enrich.ExcerptChars,
			CharBudget:      cfg.Enrich.CharBudget,
		})
		slog.Info("context enrichment enabled")
	} else {
		slog.Info("search credentials not configured, agentic tier disabled")
	}

	engine := eval.New(gen, enricher)

	// The prototyping helper shares the generation client and key pool
	// with the evaluator.
	assistant := chat.New(gen)

	queueOpts := queue.Options{
		Capacity:  cfg.Queue.Capacity,
		Retention: cfg.Queue.Retention,
	}
	if cfg.Queue.AllowResubmit {
		queueOpts.Resubmit = queue.RetryAfterCompletion
	}
	q := queue.New(engine, store, queueOpts)
	go q.Run(ctx)

	// Build HTTP handler and server.
	handler := api.NewAppHandler(api.AppDeps{Queue: q, Store: store, Chat: assistant})
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over streamable HTTP on its own port.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Queue: q, Store: store, Chat: assistant})
	httpMCP := server.NewStreamableHTTPServer(mcpSrv)
	mcpAddr := fmt.Sprintf(":%d", cfg.Server.MCPPort)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := httpMCP.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "pitcharena listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpMCP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pitcharena is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pitcharena (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pitcharena (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(cfgFile)
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
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			var health struct {
				Pending int `json:"pending"`
			}
			if json.NewDecoder(resp.Body).Decode(&health) == nil {
				printStatus("Server", "running on port %d (%d pending)", cfg.Server.Port, health.Pending)
			} else {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			}
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Generation.Model)
	printStatus("API keys", "%d", len(cfg.Generation.APIKeys))
	if cfg.Search.Configured() {
		printStatus("Enrichment", "enabled")
	} else {
		printStatus("Enrichment", "disabled (no search credentials)")
	}

	// Show leaderboard size if the server answers.
	if lbResp, err := client.Get(serverURL + "/v1/leaderboard?limit=100"); err == nil {
		var entries []json.RawMessage
		if json.NewDecoder(lbResp.Body).Decode(&entries) == nil {
			printStatus("Leaderboard", "%d entries", len(entries))
		}
		lbResp.Body.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
