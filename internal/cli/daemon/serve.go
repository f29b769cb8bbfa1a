package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/api/handlers"
	"github.com/cloo-solutions/sheetrag/internal/api/middleware"
	"github.com/cloo-solutions/sheetrag/internal/config"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/jobs"
	"github.com/cloo-solutions/sheetrag/internal/server"
	"github.com/cloo-solutions/sheetrag/internal/telemetry"
	"github.com/google/gops/agent"
	"github.com/spf13/cobra"
)

var errShuttingDown = errors.New("server shutting down")

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the sheetrag API server, index the workbook if needed and answer questions about it",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default SHEETRAG_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-index", false, "Do not rebuild a stale index on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); noMigrate {
		cfg.RunMigrations = false
	}
	if noIndex, _ := cmd.Flags().GetBool("no-index"); noIndex {
		cfg.IndexOnStart = false
	}

	if shutdown := initTelemetry(); shutdown != nil {
		defer shutdown()
	}

	if cfg.GopsAgent {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			log.Printf("gops: %v", err)
		} else {
			defer agent.Close()
		}
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.RecoverInterruptedJobs(ctx)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	indexWorker := jobs.NewIndexWorker(app.Index, app.Workbook.Path)
	indexLoop := jobs.NewWorker("index", indexWorker, 0)
	indexWorker.Attach(indexLoop)
	go indexLoop.Start(workerCtx)

	var watchLoop *jobs.Worker
	if cfg.WatchInterval > 0 {
		watchLoop = jobs.NewWorker("watcher", jobs.NewWatcher(app.Index, indexWorker, app.Workbook.Path), cfg.WatchInterval)
		go watchLoop.Start(workerCtx)
	}

	if cfg.IndexOnStart {
		queueStartupRebuild(ctx, app, indexWorker)
	}

	indexHandler := handlers.NewIndexHandler(app.Index, indexWorker, app.Query, app.Workbook)
	if history := app.History(); history != nil {
		indexHandler.WithHistory(history)
	}

	routerCfg := server.RouterConfig{
		MaxUploadBytes:  cfg.MaxUploadBytes,
		IndexHandler:    indexHandler,
		WorkbookHandler: handlers.NewWorkbookHandler(app.Workbook, indexWorker),
		QueryHandler:    handlers.NewQueryHandler(app.Query),
		FilterHandler:   handlers.NewFilterHandler(app.Filter),
	}
	if cfg.HasAPIKey() {
		routerCfg.AuthValidator = middleware.StaticKey(cfg.APIKey)
	} else {
		log.Println("SHEETRAG_API_KEY not set, API is unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// A rebuild still running is cancelled; the previous index stays active.
	stopWorkers()
	if watchLoop != nil {
		watchLoop.Stop()
	}
	indexLoop.Stop()
	indexWorker.Drain(shutdownCtx, errShuttingDown)

	log.Println("server exited")
	return nil
}

// queueStartupRebuild schedules a rebuild when the workbook exists and the
// index is missing or stale.
func queueStartupRebuild(ctx context.Context, app *App, queue *jobs.IndexWorker) {
	path := app.Workbook.Path()
	if !app.Workbook.Exists() {
		log.Printf("no workbook at %s, waiting for an upload", path)
		return
	}
	needs, _, err := app.Index.NeedsRebuild(ctx, path)
	if err != nil {
		log.Printf("failed to check index freshness: %v", err)
		return
	}
	if !needs {
		log.Printf("index is up to date with %s", path)
		return
	}
	if _, err := queue.Enqueue(ctx, domain.IndexTriggerStartup); err != nil {
		log.Printf("failed to queue startup rebuild: %v", err)
		return
	}
	log.Printf("queued startup rebuild of %s", path)
}

// initTelemetry enables Sentry when SENTRY_DSN is set and returns its flush
// function, or nil.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return nil
	}
	return shutdown
}
