package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk"
	"github.com/nextlevelbuilder/clawbridge/internal/agentsdk/claudecli"
	"github.com/nextlevelbuilder/clawbridge/internal/clientmanager"
	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/historyindex"
	"github.com/nextlevelbuilder/clawbridge/internal/skills"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
	"github.com/nextlevelbuilder/clawbridge/internal/telegram"
	"github.com/nextlevelbuilder/clawbridge/internal/telemetry"
)

// runServe loads configuration, wires every component, and blocks serving
// Telegram updates until SIGINT/SIGTERM.
func runServe() error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("CLAWBRIDGE_TELEGRAM_TOKEN is not set")
	}

	tp := telemetry.NewProvider()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	history := historyindex.New(expandHome(cfg.Sessions.HistoryPath), expandHome(cfg.Sessions.ProjectsDir), logger)
	if warning, err := history.HealthWarning(); err != nil {
		logger.Warn("history health check failed", "error", err)
	} else if warning != "" {
		logger.Warn("history index warning", "message", warning)
	}

	skillPaths := skills.DiscoveryPaths{
		ProjectDir:          firstApprovedDirectory(cfg.Agent.ApprovedDirectories),
		PersonalSkillsDir:   cfg.Skills.PersonalSkillsDir,
		PersonalCommandsDir: cfg.Skills.PersonalCommandsDir,
		PluginsJSON:         cfg.Skills.PluginsJSON,
		SettingsJSON:        cfg.Skills.SettingsJSON,
	}
	discovered, err := skills.Discover(skillPaths)
	if err != nil {
		logger.Warn("skill discovery failed", "error", err)
	}

	var sessionStore clientmanager.SessionStore
	if cfg.IsManagedMode() {
		var db *sql.DB
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = store.OpenDB(ctx, cfg.Database.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		sessionStore = store.NewPGStore(db)
		logger.Info("running in managed mode", "persistence", "postgres")
	} else {
		logger.Info("running in standalone mode", "persistence", "history index only")
	}

	factory := agentsdk.ClientFactory(func() agentsdk.Client { return claudecli.New("claude") })
	idleTimeout := time.Duration(cfg.Agent.IdleTimeoutMinutes) * time.Minute
	manager := clientmanager.New(factory, sessionStore, history,
		clientmanager.WithIdleTimeout(idleTimeout),
		clientmanager.WithLogger(logger),
	)

	channel, err := telegram.New(cfg.Telegram, cfg.Agent, os.Getenv("CLAWBRIDGE_PROXY"), manager, history,
		telegram.WithLogger(logger),
		telegram.WithSkills(discovered),
	)
	if err != nil {
		return fmt.Errorf("build telegram channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher, err := skills.NewWatcher(skillPaths, channel.SetSkills); err != nil {
		logger.Warn("skills watcher unavailable", "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	if err := channel.Start(ctx); err != nil {
		return fmt.Errorf("start telegram channel: %w", err)
	}
	logger.Info("clawbridge serving", "approved_directories", cfg.Agent.ApprovedDirectories)

	waitForShutdown(ctx, cancel)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := channel.Stop(stopCtx); err != nil {
		logger.Warn("telegram channel stop failed", "error", err)
	}
	manager.DisconnectAll(stopCtx)

	return nil
}

func firstApprovedDirectory(dirs []string) string {
	if len(dirs) > 0 {
		return dirs[0]
	}
	return "."
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		cancel()
	case <-ctx.Done():
	}
}
