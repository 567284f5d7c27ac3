// Command channel-tender keeps a Discord guild's channels filed by activity.
// It:
//   - Loads configuration and initializes structured logging.
//   - Loads the archive override table (binary file or Postgres).
//   - Opens a gateway session and runs a reconciliation pass on Ready, on every message,
//     channel create, and channel delete in the guild, and on a periodic timer.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /overrides, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/config"
	"github.com/onnwee/channel-tender/db"
	"github.com/onnwee/channel-tender/discord"
	"github.com/onnwee/channel-tender/lifecycle"
	"github.com/onnwee/channel-tender/server"
	"github.com/onnwee/channel-tender/telemetry"
)

const sessionRetryInterval = 5 * time.Second

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("channel-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persister, database, err := db.OpenPersister(ctx, cfg)
	if err != nil {
		slog.Error("failed to open override backend", slog.Any("err", err), slog.String("backend", cfg.OverrideBackend))
		os.Exit(1)
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}
	store := archive.NewStore(persister)
	store.Load(ctx)
	slog.Info("overrides loaded", slog.Int("count", store.Len()), slog.String("backend", cfg.OverrideBackend))

	client, err := discord.New(cfg.BotToken, cfg.GuildID)
	if err != nil {
		slog.Error("discord client init failed", slog.Any("err", err))
		os.Exit(1)
	}

	var platform lifecycle.Platform = client
	if cfg.DryRun {
		slog.Warn("dry run enabled: channel edits and message deletions are logged, not sent")
		platform = lifecycle.DryRun(client)
	}
	driver := lifecycle.NewDriver(platform, store, lifecycle.OptionsFromConfig(cfg))

	client.OnEvent(func(reason string) {
		if _, err := driver.Run(ctx, reason); err != nil {
			slog.Warn("event pass failed", slog.String("reason", reason), slog.Any("err", err))
		}
	})

	go lifecycle.StartPeriodicJob(ctx, driver, cfg.ReconcileInterval)

	go func() {
		deps := server.Deps{Reconciler: driver, Store: store, SessionReady: client.Ready, DB: database}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("starting discord session",
		slog.Uint64("guild", cfg.GuildID),
		slog.Duration("stale_after", cfg.StaleAfter),
		slog.String("trigger", cfg.Trigger))
	if err := client.Run(ctx, sessionRetryInterval); err != nil && ctx.Err() == nil {
		slog.Error("discord session error", slog.Any("err", err))
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT. Defaults: level=info,
// format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
