package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jusunglee/subway-board/api/handlers"
	"github.com/jusunglee/subway-board/internal/config"
	"github.com/jusunglee/subway-board/internal/store"
	"github.com/jusunglee/subway-board/pkg/mta"
)

var (
	configPath string
	addr       string
)

var rootCmd = &cobra.Command{
	Use:          "subway-board-server",
	Short:        "Serves next-train countdowns for one station over HTTP",
	Args:         cobra.NoArgs,
	RunE:         serve,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.RequireAPIKey(); err != nil {
		logger.Error(err.Error())
		return err
	}

	client, err := mta.NewLocal(mta.FromAppConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to create MTA client", "error", err)
		return err
	}

	if cfg.DatabasePath != "" {
		db, err := store.OpenSnapshotDB(ctx, cfg.DatabasePath, logger)
		if err != nil {
			logger.Error("Failed to open snapshot database", "error", err)
			return err
		}
		defer db.Close()

		if err := client.AttachSnapshots(ctx, db); err != nil {
			logger.Warn("Continuing without stored board", "error", err)
		}
	}

	client.Start()
	defer client.Close()

	r := mux.NewRouter()
	h := handlers.NewHandler(client)
	h.RegisterRoutes(r)

	r.Use(loggingMiddleware(logger))
	r.Use(corsMiddleware)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", cfg.HTTPAddr, "station", cfg.Station, "lines", cfg.LineIDs())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed to start", "error", err)
		return err
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	logger.Info("Server stopped")
	return nil
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
