package main

import (
	"context"
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
	"golang.org/x/sync/errgroup"

	"github.com/castorp/soulforge/internal/api"
	"github.com/castorp/soulforge/internal/audit"
	"github.com/castorp/soulforge/internal/config"
	"github.com/castorp/soulforge/internal/extract"
	"github.com/castorp/soulforge/internal/interview"
	"github.com/castorp/soulforge/internal/ollama"
	"github.com/castorp/soulforge/internal/storage"
	"github.com/castorp/soulforge/internal/sweep"
	"github.com/castorp/soulforge/internal/template"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the soulforge server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running soulforge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show soulforge system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "soulforge.pid")
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
	fmt.Fprintf(os.Stderr, "soulforge version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse a second instance. The PID file plus a live health endpoint is
	// the running-server signal.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("soulforge is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("soulforge is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local model readiness. Extraction degrades gracefully when the
	// model misbehaves at runtime, but an unreachable Ollama at startup
	// is an operator error worth failing on.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ExtractModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the interview stack.
	catalog := template.NewCatalog(store)
	if err := seedTemplates(store, catalog); err != nil {
		return err
	}
	emitter := audit.NewEmitter(store)
	runner := interview.NewRunner(store, catalog, emitter)
	extractor := extract.NewExtractor(ollamaClient, cfg.Ollama.ExtractModel)

	handler := api.NewAppHandler(api.AppDeps{
		Store:           store,
		Runner:          runner,
		Templates:       catalog,
		Extractor:       extractor,
		Token:           apiToken,
		DefaultTemplate: cfg.Interview.DefaultTemplate,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	idleTimeout, err := time.ParseDuration(cfg.Interview.IdleTimeout)
	if err != nil {
		slog.Warn("invalid idle timeout, using default 30m", "value", cfg.Interview.IdleTimeout, "error", err)
		idleTimeout = 30 * time.Minute
	}
	sweepInterval, err := time.ParseDuration(cfg.Interview.SweepInterval)
	if err != nil {
		slog.Warn("invalid sweep interval, using default 1m", "value", cfg.Interview.SweepInterval, "error", err)
		sweepInterval = time.Minute
	}
	sweeper := sweep.NewSweeper(store, runner, idleTimeout, sweepInterval)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:           store,
		Runner:          runner,
		Templates:       catalog,
		Extractor:       extractor,
		DefaultTemplate: cfg.Interview.DefaultTemplate,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "soulforge listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// seedTemplates upserts the built-in templates so a fresh data dir starts
// usable. Operator-edited copies keep their stored version; built-ins are
// only written when absent.
func seedTemplates(store *storage.Store, catalog *template.Catalog) error {
	existing, err := store.ListTemplates()
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}
	for _, t := range template.Builtins() {
		if known[t.ID] {
			continue
		}
		if err := store.SaveTemplate(t); err != nil {
			return fmt.Errorf("seeding template %s: %w", t.ID, err)
		}
		slog.Info("seeded built-in template", "template_id", t.ID)
	}
	catalog.Invalidate()
	return nil
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
		printError("soulforge is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop soulforge (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to soulforge (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			running = true
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Extract model", "%s", cfg.Ollama.ExtractModel)

	if running {
		if c, err := newAPIClient(); err == nil {
			if listResp, err := c.get(ctx, "/interviews?limit=100"); err == nil {
				var sessions []struct {
					Status string `json:"status"`
				}
				if decodeJSON(listResp, &sessions) == nil {
					active := 0
					for _, s := range sessions {
						if s.Status == "capturing" || s.Status == "resumable_unsaved" {
							active++
						}
					}
					printStatus("Interviews", "%s (%d active)", countLabel(len(sessions), 100), active)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
