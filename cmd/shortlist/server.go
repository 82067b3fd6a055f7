package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/shortlist/internal/api"
	"github.com/kalambet/shortlist/internal/config"
	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/ollama"
	"github.com/kalambet/shortlist/internal/pipeline"
	"github.com/kalambet/shortlist/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the shortlist over HTTP and MCP and run queued jobs (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, run and service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout")
	rootCmd.AddCommand(stopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "shortlist.pid")
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

// runJob executes a queued run request. Empty input completes the job.
func (a *app) runJob(ctx context.Context, req worker.RunRequest) error {
	runner, closer, err := a.newRunner(ctx)
	if err != nil {
		return err
	}
	defer closer()

	inputs := req.Inputs
	if len(inputs) == 0 {
		inputs = a.cfg.InputPaths()
	}
	rep, err := runner.Run(ctx, inputs, req.Crawl)
	if pipeline.IsEmptyInput(err) {
		slog.Warn("run finished without results", "reason", err)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("run stored", "run_id", rep.Run.ID, "items", len(rep.Result.Items), "rescorer", rep.Run.Rescorer)
	return nil
}

func runServer(ctx context.Context, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "shortlist version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Data.Dir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token is not set; API is unauthenticated on localhost")
	}
	deps := api.Deps{
		Store:  a.store,
		Ledger: a.ledger,
		Pages:  a.pages,
		Token:  cfg.Server.APIToken,
	}

	w := worker.NewWorker(a.store, 500*time.Millisecond)
	w.Handle(worker.JobCurateRun, worker.CurateRunHandler(a.runJob))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(ctx)
	}()

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "ledger", cfg.Ledger.Backend)
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
	err = srv.Shutdown(shutdownCtx)
	<-workerDone
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Data.Dir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("shortlist is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("could not stop shortlist (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to shortlist (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Partial status is still useful.
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	running := false
	if resp, err := client.get(ctx, "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		running = resp.StatusCode == http.StatusOK
		if running {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	oc := ollama.New(cfg.Ollama.BaseURL)
	if oc.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", oc.BaseURL())
	} else {
		printStatus("Ollama", "not running")
	}
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Rescore model", "%s", cfg.Ollama.RescoreModel)

	// A running server owns the database; ask it rather than opening the
	// files underneath it.
	var st api.StatsResponse
	if running {
		resp, err := client.get(ctx, "/stats")
		if err == nil {
			err = decodeJSON(resp, &st)
		}
		if err != nil {
			printWarning("stats unavailable: %v", err)
		}
	} else {
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		records, err := a.ledger.Records(ctx)
		if err != nil {
			return err
		}
		st.Ledger = ledger.Summarize(records)
		if run, err := a.store.LatestRun(ctx); err == nil {
			st.LatestRun = &run
		}
	}

	printLedgerStats(cfg.Ledger.Backend, st.Ledger)
	if r := st.LatestRun; r != nil {
		printStatus("Latest run", "%s at %s, %d items", shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.TopN)
	} else {
		printStatus("Latest run", "none")
	}
	printStatus("Data dir", "%s", cfg.Data.Dir)
	return nil
}
