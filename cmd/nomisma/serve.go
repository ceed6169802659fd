package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/nomisma/internal/api"
	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/config"
	"github.com/erazemk/nomisma/internal/db"
	"github.com/erazemk/nomisma/internal/imaging"
	"github.com/erazemk/nomisma/internal/janitor"
	"github.com/erazemk/nomisma/internal/scan"
	"github.com/erazemk/nomisma/internal/store"
	"github.com/erazemk/nomisma/internal/web"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the console web server",
		Long: `Starts the console. The database is created with an administrator on
first run. The server stops gracefully on SIGINT or SIGTERM.`,
		Example: `  # Serve on the default address
  nomisma serve

  # Point at a remote backend
  nomisma serve --addr :9090 --backend-url http://lab-pc:8000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := setupLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()
			return serve(cmd.Context(), cmd, *cfg)
		},
	}
	cmd.Flags().StringP(config.FlagAddr, "a", "", "listen address (default :8080)")
	cmd.Flags().StringP(config.FlagAdminUser, "u", "", "admin username on first run (default Admin)")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	if err := ensureDatabase(ctx, cmd.OutOrStdout(), cfg.DB, cfg.AdminUser); err != nil {
		return err
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DB)

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	client := backendClient(&cfg)
	checkBackend(ctx, client)

	// Background work outlives individual requests but stops with the server.
	base, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	hub := capture.NewHub(base, client, capture.PollerConfig{
		Interval:    cfg.Preview.Interval,
		IdleTimeout: cfg.Preview.IdleTimeout,
		Transform:   imaging.PreviewTransform(cfg.Preview.MaxDimension),
	})
	wizard := scan.NewWizard(client, cfg.Scan.RedirectNew, cfg.Scan.RedirectAttach)
	scans := scan.NewManager(base, client, scan.SQLStore{DB: database}, wizard, hub)

	jan := janitor.New(database, scans, cfg.Scan.SessionTTL)
	if err := jan.Start(base, ""); err != nil {
		return err
	}

	apiRouter := api.NewRouter(database, jwtSecret, client, scans)
	webRouter, err := web.NewRouter(database, jwtSecret, client, scans, cfg.Preview.Interval)
	if err != nil {
		return fmt.Errorf("setting up web router: %w", err)
	}

	// API routes take priority, web routes handle the rest.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", api.Health)
	mux.Handle("/api/", apiRouter)
	mux.Handle("/", webRouter)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Saving a scan uploads images and may run longer than a minute.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.Addr, "backend", client.BaseURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			shutdownBackground(jan, hub, stopBackground, scans)
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	shutdownBackground(jan, hub, stopBackground, scans)
	slog.Info("server stopped, closing database")
	return nil
}

// shutdownBackground stops the janitor and the preview pollers, cancels
// running analyses and waits for them before the database closes.
func shutdownBackground(jan *janitor.Janitor, hub *capture.Hub, stop context.CancelFunc, scans *scan.Manager) {
	jan.Stop()
	hub.StopAll()
	stop()
	scans.Wait()
}

// checkBackend logs whether the backend answers. The console starts either
// way; the scan pages report an unreachable backend to the operator.
func checkBackend(ctx context.Context, client *backend.Client) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := client.Health(ctx); err != nil {
		slog.Warn("backend not reachable", "url", client.BaseURL(), "error", err)
		return
	}
	slog.Info("backend reachable", "url", client.BaseURL())
}
