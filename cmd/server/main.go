// Package main is the entry point for the GuildHub web server.
//
// Its job is deliberately small: read configuration, build the logger,
// hand both to the server package. All actual wiring lives in
// internal/server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/guildhub/internal/config"
	"github.com/sakif/guildhub/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("loading configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.DiscordClientID == "" || cfg.DiscordClientSecret == "" {
		logger.Warn("DISCORD_CLIENT_ID / DISCORD_CLIENT_SECRET not set — Discord sign-in will fail")
	}

	// Ensure the data directory exists before SQLite tries to create the
	// database file inside it.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("creating database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
