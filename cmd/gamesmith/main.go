package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gamesmith/internal/api"
	"gamesmith/internal/assets"
	"gamesmith/internal/config"
	"gamesmith/internal/directives"
	"gamesmith/internal/executor"
	"gamesmith/internal/imagegen"
	"gamesmith/internal/llm"
	"gamesmith/internal/logging"
	"gamesmith/internal/orchestrator"
	"gamesmith/internal/session"
	"gamesmith/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gamesmith",
	Short: "gamesmith - iterative AI game builder",
	Long: `gamesmith turns natural-language prompts into playable browser games.

A planning call produces a build plan. Each coding cycle sends the session
context to the model, validates the returned batch of fragment edits, applies
them atomically, and persists the result. The preview page runs the assembled
document in a sandboxed iframe and relays runtime errors back into the
session so the next cycle can fix them.

Run 'gamesmith serve' to start the API server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal outside development.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}

		logging.Configure(logging.Options{
			Debug:      cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
			JSONFormat: cfg.Logging.Format == "json",
		})
		if err := logging.Initialize(cfg.StateDir); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
		logging.CloseAll()
	},
}

// serveCmd runs the API server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gamesmith API server",
	Long: `Starts the HTTP and WebSocket surface.

Endpoints:
  POST /api/plan                      Create a session (or replan an existing one)
  POST /api/sessions/{id}/cycle       Run one coding cycle
  GET  /api/sessions/{id}/document    The assembled game document
  GET  /api/sessions/{id}/preview     Sandboxed preview page with error relay
  GET  /api/sessions/{id}/events      WebSocket: session events, runtime reports

Requires GEMINI_API_KEY (or llm.api_key in the config file).`,
	RunE: runServe,
}

// sessionsCmd lists stored sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  listSessions,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gamesmith version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gamesmith.yaml", "Path to the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe wires the full service and blocks until shutdown.
func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	assetStore := assets.NewFileStore(cfg.Assets.Dir, cfg.Assets.BaseURL)
	model := llm.NewGeminiClient(cfg.LLM)

	var images imagegen.Generator = imagegen.Disabled{}
	if cfg.Images.Enabled {
		gen, err := imagegen.NewGeminiGenerator(ctx, cfg.Images, cfg.LLM.APIKey)
		if err != nil {
			logger.Warn("Image generation unavailable, continuing without it", zap.Error(err))
		} else {
			images = gen
		}
	}

	source, err := directives.NewSource(cfg.Directives.Dir, orchestrator.DefaultDirective)
	if err != nil {
		return fmt.Errorf("failed to set up directive source: %w", err)
	}
	if cfg.Directives.HotReload {
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("failed to start directive watcher: %w", err)
		}
		defer source.Stop()
	} else {
		source.Refresh()
	}

	manager := session.NewManager()
	exec := executor.New(st, assetStore, images, model)
	orch := orchestrator.New(st, model, exec, manager, source, cfg.Orchestrator)
	server := api.NewServer(cfg, st, assetStore, orch, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gamesmith listening",
			zap.String("addr", cfg.Address()),
			zap.String("model", cfg.LLM.Model),
			zap.Bool("images", cfg.Images.Enabled),
			zap.Bool("directive_hot_reload", cfg.Directives.HotReload))
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down", zap.Duration("grace", cfg.GetShutdownTimeout()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("Shutdown complete")
	}
	return nil
}

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7c3aed"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6b7280"))

	statusStyles = map[session.Status]lipgloss.Style{
		session.StatusInitial:          lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")),
		session.StatusPlanningComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("#3b82f6")),
		session.StatusOrchestrating:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")).Bold(true),
		session.StatusCodingComplete:   lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
	}
)

// listSessions prints the stored sessions, newest first.
func listSessions(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	rows, err := st.List()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("No sessions yet. Start one with POST /api/plan."))
		return nil
	}

	fmt.Println(headingStyle.Render(fmt.Sprintf("Sessions (%d)", len(rows))))
	for _, row := range rows {
		title := row.Title
		if title == "" {
			title = "(untitled)"
		}
		style, ok := statusStyles[row.Status]
		if !ok {
			style = mutedStyle
		}
		fmt.Printf("  %s  %s  %s %s\n",
			mutedStyle.Render(shortID(row.ID)),
			style.Width(18).Render(string(row.Status)),
			title,
			mutedStyle.Render(row.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

// shortID trims a UUID down to its first block for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
