package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/approval"
	"github.com/nitishxyz/agi-sub004/internal/config"
	"github.com/nitishxyz/agi-sub004/internal/repl"
	"github.com/nitishxyz/agi-sub004/internal/storage"
	"github.com/nitishxyz/agi-sub004/internal/stream"
	"github.com/nitishxyz/agi-sub004/internal/tui"
)

func main() {
	var (
		configPath string
		serverURL  string
		sessionID  string
		plain      bool
		initCfg    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.StringVar(&serverURL, "server", "", "Server URL override")
	flag.StringVar(&sessionID, "session", "", "Session id to open on start")
	flag.BoolVar(&plain, "plain", false, "Use the line REPL instead of the full-screen TUI")
	flag.BoolVar(&initCfg, "init", false, "Write a project config scaffold and exit")
	flag.Parse()

	if initCfg {
		if err := config.InitProjectConfigScaffold(); err != nil {
			fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote .agi/config.json")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if plain {
		cfg.UI.Plain = true
	}

	logger, logFile, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging failed: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	client := api.NewClient(cfg.Server.URL, time.Duration(cfg.Server.TimeoutMS)*time.Millisecond)
	controller := stream.NewController(client, logger)
	gate := approval.NewGate(client, controller.Dispatch)

	recents, err := storage.OpenRecentStore(filepath.Join(cfg.Storage.BaseDir, "recents.db"))
	if err != nil {
		// The client works without local history; log and continue.
		logger.Warn("recents store unavailable", "err", err)
		recents = nil
	} else {
		defer recents.Close()
	}

	initial := resolveInitialSession(client, recents, cfg, sessionID, logger)

	if cfg.UI.Plain {
		loop, err := repl.New(repl.Deps{
			Client:     client,
			Controller: controller,
			Gate:       gate,
			Recents:    recents,
			Logger:     logger,
			Config:     cfg,
		}, filepath.Join(cfg.Storage.BaseDir, "repl.history"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "init repl failed: %v\n", err)
			os.Exit(1)
		}
		if err := loop.Run(initial); err != nil {
			fmt.Fprintf(os.Stderr, "repl failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	err = tui.Run(tui.Deps{
		Client:     client,
		Controller: controller,
		Gate:       gate,
		Recents:    recents,
		Logger:     logger,
		Config:     cfg,
	}, initial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tui failed: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger writes structured logs to <storage>/logs/agi.log so the
// full-screen TUI never fights with log output over the terminal. The
// file is truncated when it outgrows the configured cap.
func buildLogger(cfg config.Config) (*log.Logger, *os.File, error) {
	dir := filepath.Join(cfg.Storage.BaseDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, "agi.log")

	if cfg.Storage.LogMaxMB > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > int64(cfg.Storage.LogMaxMB)*1024*1024 {
			_ = os.Remove(path)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return logger, f, nil
}

// resolveInitialSession decides what to open on start: the -session
// flag wins, then the most recent session when reopen_last is set.
// Returns nil when nothing should be opened.
func resolveInitialSession(client *api.Client, recents *storage.RecentStore, cfg config.Config, sessionID string, logger *log.Logger) *api.Session {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lookup := func(id string) *api.Session {
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			logger.Warn("session lookup failed", "err", err)
			return nil
		}
		for _, s := range sessions {
			if s.ID == id {
				return &s
			}
		}
		logger.Warn("session not found", "session", id)
		return nil
	}

	if sessionID != "" {
		return lookup(sessionID)
	}

	if cfg.Session.ReopenLast && recents != nil {
		last, err := recents.Last(client.BaseURL())
		if err != nil {
			logger.Warn("recents lookup failed", "err", err)
			return nil
		}
		if last != "" {
			return lookup(last)
		}
	}
	return nil
}
