package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"rental-backend/middleware"
	"rental-backend/routes"
)

func main() {
	// .env is optional; the environment wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "could not load .env:", err)
	}

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rental-backend",
		Short:         "Vacation rental booking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run reservation expiry, check-in reminders and the notification queue",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWorker(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and seed the first admin",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				slog.Info("database migrated")
				return nil
			},
		},
		&cobra.Command{
			Use:   "import-choices <category> <file.csv>",
			Short: "Import a check-in code table (tipo_alloggiato, tipo_documento, comuni, stati)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return importChoices(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "remind",
			Short: "Send today's check-in reminders once",
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()
				n, err := a.reservations.SendCheckinReminders(cmd.Context(), a.reservations.Now())
				if err != nil {
					return err
				}
				slog.Info("check-in reminders sent", slog.Int("count", n))
				return nil
			},
		},
	)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serve(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(a.cfg.RateLimitRPS),
		Burst:           a.cfg.RateLimitBurst,
		CleanupInterval: 5 * time.Minute,
	})
	defer limiter.Stop()

	router := routes.SetupRouter(a.controllers(), routes.Options{
		CORSOrigins:    a.cfg.CORSOrigins,
		UploadsDir:     a.cfg.FileStoreDir,
		Logger:         a.logger,
		Auth:           a.users,
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
		RateLimiter:    limiter,
	})

	addr := ":" + a.cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received, shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

func runWorker(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.worker().Run(ctx)
}

func importChoices(ctx context.Context, category, path string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, skipped, err := a.categories.Import(ctx, category, f)
	if err != nil {
		return err
	}
	if skipped {
		slog.Info("category already imported, skipping", slog.String("category", category))
		return nil
	}
	slog.Info("category imported", slog.String("category", category), slog.Int("rows", n))
	return nil
}
