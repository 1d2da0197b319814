package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/mocklens/internal/api"
	"github.com/hyperengineering/mocklens/internal/config"
	"github.com/hyperengineering/mocklens/internal/normalize"
	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/upload"
	"github.com/hyperengineering/mocklens/internal/vision"
	"github.com/hyperengineering/mocklens/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mocklens",
	Short: "MockLens - UI mockup analysis service",
	Long: "Runs the MockLens API server. Subcommands analyze images locally, manage " +
		"projects in the SQLite store, export results and push record sets to a server.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pushCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize upload storage and its optional mirror
	mirror, err := upload.NewMirror(cfg.Uploads.S3)
	if err != nil {
		db.Close()
		return err
	}
	images, err := upload.NewDir(cfg.Uploads.Dir, mirror)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("uploads initialized",
		"dir", cfg.Uploads.Dir,
		"mirror_bucket", cfg.Uploads.S3.Bucket,
	)

	// 6. Initialize vision analyzer
	analyzer := vision.NewOpenAI(visionConfig(cfg), newNormalizer(cfg))
	slog.Info("analyzer initialized", "model", analyzer.ModelName())

	// 7. Initialize HTTP router
	handler := api.NewHandler(db, analyzer, images, cfg.Auth.APIKey, Version, cfg.Vision.MaxImageBytes)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Start background workers
	var wg sync.WaitGroup
	sweeper := worker.NewUploadSweeper(db, images,
		time.Duration(cfg.Worker.SweepInterval),
		time.Duration(cfg.Uploads.Retention))
	startWorker(ctx, &wg, "upload-sweeper", sweeper.Run)

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error after Shutdown().
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger for the configured format and level.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func visionConfig(cfg *config.Config) vision.Config {
	return vision.Config{
		APIKey:        cfg.Vision.APIKey,
		BaseURL:       cfg.Vision.BaseURL,
		Model:         cfg.Vision.Model,
		MaxTokens:     cfg.Vision.MaxTokens,
		MaxImageBytes: cfg.Vision.MaxImageBytes,
		Timeout:       time.Duration(cfg.Vision.Timeout),
	}
}

func newNormalizer(cfg *config.Config) *normalize.Normalizer {
	return normalize.New(
		normalize.WithDegradedFallback(cfg.Normalizer.AllowDegraded),
		normalize.WithPreviewLength(cfg.Normalizer.PreviewLength),
	)
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
