// Package server assembles the stores, session backend and router from a
// Config and runs the HTTP server until its context is cancelled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cameronmore/nerdauth/auth"
	"github.com/cameronmore/nerdauth/config"
	"github.com/cameronmore/nerdauth/logging"
	"github.com/cameronmore/nerdauth/migrations"
	"github.com/cameronmore/nerdauth/sessions"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler
	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	users, err := app.openUserStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	store, err := app.openSessionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	ac, err := auth.NewAuthContext(store, users, logger, auth.Settings{
		Production: cfg.IsProduction(),
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.handler = auth.NewRouter(ac)
	return app, nil
}

func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) openUserStore(ctx context.Context) (sessions.UserStore, error) {
	var driverName string
	switch app.config.DatabaseDriver {
	case config.DriverMemory:
		return auth.NewMemoryUserStore(), nil
	case config.DriverSQLite:
		driverName = "sqlite3"
	case config.DriverPostgres:
		driverName = auth.PostgresDriverName
	default:
		return nil, fmt.Errorf("unknown database driver %q", app.config.DatabaseDriver)
	}

	db, err := sql.Open(driverName, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Up(ctx, db, driverName); err != nil {
		return nil, err
	}

	if driverName == "sqlite3" {
		return auth.NewSQLiteStore(db), nil
	}
	return auth.NewPostgresAuthStore(db), nil
}

func (app *App) openSessionStore(ctx context.Context) (sessions.Store, error) {
	opts := sessions.Options{
		Secrets:  app.config.SessionSecrets,
		Secure:   app.config.IsProduction(),
		Lifetime: app.config.SessionLifetime,
	}

	switch app.config.SessionBackend {
	case config.BackendRedis:
		kv, err := sessions.NewRedisKV(ctx, app.config.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, kv)
		return sessions.NewServerStore(kv, opts)
	default:
		return sessions.NewCookieStore(opts)
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (app *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              app.config.Addr,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting server", "addr", app.config.Addr, "env", app.config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases database and redis connections.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}
