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

	"github.com/mskwm/briefd/internal/agent"
	"github.com/mskwm/briefd/internal/api"
	"github.com/mskwm/briefd/internal/config"
	"github.com/mskwm/briefd/internal/ingest"
	"github.com/mskwm/briefd/internal/kb"
	"github.com/mskwm/briefd/internal/llm"
	"github.com/mskwm/briefd/internal/pipeline"
	"github.com/mskwm/briefd/internal/rerank"
	"github.com/mskwm/briefd/internal/session"
	"github.com/mskwm/briefd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the briefd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running briefd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show briefd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "briefd.pid")
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

// syncAdapter exposes ingestion control to MCP hosts, which issue one-shot
// tool calls instead of holding a stream open.
type syncAdapter struct {
	jobs *kb.Client
}

func (a *syncAdapter) StartSync(ctx context.Context) (string, string, error) {
	job, err := a.jobs.StartIngestionJob(ctx)
	if err != nil {
		return "", "", err
	}
	return job.ID, string(job.Status), nil
}

func (a *syncAdapter) SyncStatus(ctx context.Context, jobID string) (string, error) {
	status, err := a.jobs.GetIngestionJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return string(status), nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "briefd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the bearer token exists before anything binds to a port.
	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("briefd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("briefd is already running on port %d", cfg.Server.Port)
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

	// Build the retrieval pipeline and the agent on top of it.
	kbClient := kb.NewClient(kb.Config{
		BaseURL:         cfg.Knowledge.BaseURL,
		APIKey:          cfg.Knowledge.APIKey,
		KnowledgeBaseID: cfg.Knowledge.KnowledgeBaseID,
		DataSourceID:    cfg.Knowledge.DataSourceID,
	})
	reranker := rerank.NewClient(rerank.Config{
		BaseURL: cfg.Rerank.BaseURL,
		APIKey:  cfg.Rerank.APIKey,
		Model:   cfg.Rerank.Model,
	})
	pipe := pipeline.New(kbClient, reranker, cfg.Knowledge.Candidates, cfg.Rerank.TopN)

	reasoner := llm.NewClient(llm.Config{
		BaseURL:     cfg.Reasoning.BaseURL,
		APIKey:      cfg.Reasoning.APIKey,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
	})
	runner := agent.New(reasoner, cfg.Agent.MaxRounds)
	chat := session.NewManager(runner, pipe, store)

	pollInterval, err := time.ParseDuration(cfg.Sync.PollInterval)
	if err != nil {
		slog.Warn("invalid sync poll interval, using default 3s", "value", cfg.Sync.PollInterval, "error", err)
		pollInterval = ingest.DefaultPollInterval
	}
	monitor := ingest.NewMonitor(kbClient, pollInterval)

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Chat:     chat,
		Syncer:   monitor,
		Uploader: kbClient,
		Sessions: store,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Querier: pipe,
		Sync:    &syncAdapter{jobs: kbClient},
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "briefd listening on %s\n", addr)
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
		printError("briefd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop briefd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to briefd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
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

	printStatus("Knowledge base", "%s", cfg.Knowledge.KnowledgeBaseID)
	printStatus("Reasoning model", "%s", cfg.Reasoning.Model)
	printStatus("Rerank model", "%s", cfg.Rerank.Model)

	// Show session count if server is running.
	apiToken, tokenErr := config.GetAPIToken(cfg.Storage.DataDir)
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		sessResp, err := apiGet(client, serverURL+"/v1/sessions", apiToken)
		if err == nil {
			var sessions []json.RawMessage
			if json.NewDecoder(sessResp.Body).Decode(&sessions) == nil {
				printStatus("Sessions", "%d", len(sessions))
			}
			sessResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
