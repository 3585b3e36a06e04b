package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/docs"
	"github.com/ruralpay/ledger/internal/buildinfo"
	"github.com/ruralpay/ledger/internal/handlers"
	mW "github.com/ruralpay/ledger/internal/middleware"
)

func newServeCommand(configPath *string) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return runServe(ctx, a, !skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on start")

	return cmd
}

func runServe(ctx context.Context, a *app, migrate bool) error {
	if migrate {
		if err := a.store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	if a.cfg.Ledger.SeedFile != "" {
		if err := seedFromFile(ctx, a, a.cfg.Ledger.SeedFile); err != nil {
			return err
		}
	}

	docs.SwaggerInfo.Version = buildinfo.Version

	server := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      newRouter(a),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func newRouter(a *app) http.Handler {
	ledgerHandler := handlers.NewLedgerHandler(a.ledger, a.logger, a.cfg.Ledger.MinorUnits)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         86400,
	}))

	// Swagger UI loads scripts and styles; it stays outside SecurityHeaders.
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("doc.json")))

	r.Group(func(r chi.Router) {
		r.Use(mW.SecurityHeaders)
		r.Get("/health", ledgerHandler.Health)
		r.Mount("/api/v1", ledgerHandler.Routes(mW.TenantGuard))
	})

	return r
}
