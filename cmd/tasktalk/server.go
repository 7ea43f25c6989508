package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tasktalk/internal/api"
	"github.com/kalambet/tasktalk/internal/auth"
	"github.com/kalambet/tasktalk/internal/config"
	"github.com/kalambet/tasktalk/internal/ollama"
	"github.com/kalambet/tasktalk/internal/operations"
	"github.com/kalambet/tasktalk/internal/orchestrator"
	"github.com/kalambet/tasktalk/internal/reasoning"
	"github.com/kalambet/tasktalk/internal/storage"
	"github.com/kalambet/tasktalk/internal/titler"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task operations as MCP tools over stdio",
	Long: `Serve the task operations as MCP tools over stdio.

The owner is taken from the verified --token (or TASKTALK_TOKEN); tools never
accept an owner argument.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runMCP(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tasktalk system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func reasoningConfig(cfg config.Config) reasoning.Config {
	return reasoning.Config{
		Provider:      cfg.Reasoning.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OllamaModel:   cfg.Ollama.Model,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OpenAIModel:   cfg.OpenAI.Model,
		GeminiAPIKey:  cfg.Gemini.APIKey,
		GeminiModel:   cfg.Gemini.Model,
	}
}

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.HistoryLimit = cfg.Chat.HistoryLimit
	oc.MaxOperations = cfg.Chat.MaxOperations
	oc.ResolverTimeout = cfg.Chat.ResolverTimeout
	oc.StoreTimeout = cfg.Chat.StoreTimeout
	oc.DisableTitleJobs = !cfg.Titler.Enabled
	return oc
}

// newTitler uses the local model when ollama is the reasoning provider and
// the first-message heuristic otherwise.
func newTitler(cfg config.Config) titler.Titler {
	if cfg.Reasoning.Provider == reasoning.ProviderOllama {
		return titler.NewModel(ollama.New(cfg.Ollama.BaseURL), cfg.Ollama.Model)
	}
	return titler.Heuristic{}
}

func openStore(dataDir string) (*storage.Store, func(), error) {
	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}, nil
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "tasktalk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("%w: set TASKTALK_JWT_SECRET", err)
	}

	if cfg.Reasoning.Provider == reasoning.ProviderOllama {
		if err := ollama.EnsureReady(ctx, ollama.New(cfg.Ollama.BaseURL), cfg.Ollama.Model, os.Stderr); err != nil {
			return err
		}
	}

	resolver, err := reasoning.New(ctx, reasoningConfig(cfg))
	if err != nil {
		return fmt.Errorf("building resolver: %w", err)
	}

	store, closeStore, err := openStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer closeStore()

	orch := orchestrator.New(store, operations.NewExecutor(store), resolver, orchestratorConfig(cfg))
	handler := api.NewHandler(api.Deps{
		Turns:         orch,
		Conversations: store,
		Verifier:      verifier,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("tasktalk listening", "addr", cfg.Server.Addr, "provider", cfg.Reasoning.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if cfg.Titler.Enabled {
		worker := titler.NewWorker(store, newTitler(cfg), cfg.Titler.PollInterval)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("%w: set TASKTALK_JWT_SECRET", err)
	}
	principal, err := verifier.Verify(viper.GetString("token"))
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer closeStore()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Executor:      operations.NewExecutor(store),
		Conversations: store,
		Owner:         principal.Owner,
		Version:       version,
	})
	slog.Info("MCP server started (stdio transport)", "owner", principal.Owner)
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	base := serverURL(cfg.Server.Addr)
	if s := viper.GetString("server"); s != "" {
		base = s
	}

	if code, err := probe(ctx, client, base+"/health"); err != nil {
		printStatus("Server", "stopped")
	} else if code == http.StatusOK {
		printStatus("Server", "running at %s", base)
	} else {
		printStatus("Server", "error (HTTP %d)", code)
	}

	printStatus("Provider", "%s", cfg.Reasoning.Provider)
	switch cfg.Reasoning.Provider {
	case reasoning.ProviderOllama:
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		printStatus("Model", "%s", cfg.Ollama.Model)
	case reasoning.ProviderOpenAI:
		printStatus("Model", "%s via %s", cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	case reasoning.ProviderGemini:
		printStatus("Model", "%s", cfg.Gemini.Model)
	}

	if cfg.Auth.JWTSecret == "" {
		printWarning("TASKTALK_JWT_SECRET is not set; serve will refuse to start")
	}

	if store, err := storage.Open(cfg.Storage.DataDir); err == nil {
		if n, err := store.PendingJobCount(); err == nil {
			printStatus("Title jobs", "%d pending", n)
		}
		store.Close()
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config", "%s", config.Path())
	return nil
}

func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
