package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cameronmore/nerdauth/config"
	"github.com/cameronmore/nerdauth/logging"
	"github.com/cameronmore/nerdauth/server"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	addr := flag.String("addr", "", "listen address, overrides ADDR")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			for _, p := range cfgErr.Problems {
				slog.Error("configuration", "problem", p)
			}
		} else {
			slog.Error("configuration", "error", err)
		}
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stdout, cfg.IsProduction(), level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server error", "error", err)
		app.Close()
		os.Exit(1)
	}
}
