package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/hem26/Discord-Copilot/pkg/copilot"
	"github.com/hem26/Discord-Copilot/pkg/copilot/channels/discord"
	"github.com/hem26/Discord-Copilot/pkg/copilot/store"
	"github.com/hem26/Discord-Copilot/pkg/copilot/webui"
)

// newServeCmd creates the `copilot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Discord daemon",
		Long: `Start Discord Copilot as a daemon service: connect to the Discord
gateway, answer mentions in allowed channels, and serve the admin API.

Examples:
  copilot serve
  copilot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	switch {
	case verbose || cfg.Logging.Level == "debug":
		logLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		logLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── Resolve secrets ──
	copilot.ResolveAPIKey(cfg, logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── Open storage ──
	var st store.Store
	switch cfg.Storage.Driver {
	case "postgres":
		st, err = store.OpenPostgres(cfg.Storage.DSN, logger)
	case "sqlite":
		st, err = store.OpenSQLite(cfg.Storage.Path, logger)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Runtime config cache ──
	runtime := copilot.NewRuntimeConfig(st, logger)
	runtime.Refresh(ctx)

	// Change feed keeps the cache current between refreshes. Only the
	// postgres backend has one; sqlite converges via the cron refresh below.
	if cfg.Storage.Driver == "postgres" {
		listener := store.NewListener(cfg.Storage.DSN, runtime.ApplyDelta, logger)
		go listener.Run(ctx)
	}

	// Periodic refresh doubles as a staleness guard if the feed drops events.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Storage.RefreshSchedule, func() {
		runtime.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.Storage.RefreshSchedule, err)
	}
	scheduler.Start()

	// ── Create assistant ──
	llm := copilot.NewLLMClient(cfg, logger)
	gateway := discord.New(cfg.Discord, logger)
	assistant := copilot.New(cfg, runtime, st, llm, gateway, logger)

	if err := assistant.ChannelManager().Register(gateway); err != nil {
		return fmt.Errorf("registering Discord channel: %w", err)
	}

	// ── Start ──
	if err := assistant.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var admin *webui.Server
	if cfg.WebUI.Enabled {
		admin = webui.New(cfg.WebUI, st, assistant.ChannelManager(), logger)
		admin.Start()
	}

	// ── Wait for shutdown ──
	logger.Info("Discord Copilot running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"model", cfg.API.Model,
		"storage", cfg.Storage.Driver,
		"allowed_channels", runtime.AllowedCount(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		cancel()
		scheduler.Stop()
		if admin != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin API shutdown failed", "error", err)
			}
			shutdownCancel()
		}
		assistant.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// resolveConfig loads config from the --config flag, a discovered config
// file, or falls back to environment-only configuration.
func resolveConfig(cmd *cobra.Command) (*copilot.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	// Try explicit path first.
	if configPath != "" {
		cfg, err := copilot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	// Auto-discover config file.
	if found := copilot.FindConfigFile(); found != "" {
		cfg, err := copilot.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	// No config file. Defaults plus environment cover the container case
	// where everything arrives as env vars.
	slog.Info("no config file found, using defaults plus environment")
	return copilot.LoadConfigFromEnv(), nil
}
