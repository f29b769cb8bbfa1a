// Package daemon holds the sheetragd commands.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/chatfilter"
	"github.com/cloo-solutions/sheetrag/internal/config"
	"github.com/cloo-solutions/sheetrag/internal/database"
	"github.com/cloo-solutions/sheetrag/internal/extract"
	"github.com/cloo-solutions/sheetrag/internal/openai"
	"github.com/cloo-solutions/sheetrag/internal/repository"
	"github.com/cloo-solutions/sheetrag/internal/retry"
	"github.com/cloo-solutions/sheetrag/internal/service"
	"github.com/cloo-solutions/sheetrag/internal/storage"
	"github.com/cloo-solutions/sheetrag/internal/vectorstore"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	// maxFilterSources caps the citations the chat filter injects.
	maxFilterSources = 5

	// databaseConnectTimeout covers a database container that starts
	// alongside the daemon.
	databaseConnectTimeout = 30 * time.Second
)

// provider embeds and generates; the OpenAI client is the production one.
type provider interface {
	service.Embedder
	service.Generator
}

// App is the wired service graph shared by serve and index.
type App struct {
	cfg *config.Config

	pool    *pgxpool.Pool
	store   vectorstore.Store
	history *repository.IndexJobRepository

	Index    *service.IndexService
	Query    *service.QueryService
	Workbook *service.WorkbookService
	Filter   *chatfilter.Filter
}

// NewApp connects the configured backends and the OpenAI-compatible provider.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if !cfg.HasOpenAI() {
		return nil, errors.New("SHEETRAG_OPENAI_API_KEY or SHEETRAG_OPENAI_BASE_URL is required")
	}
	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.LLMModel,
		Temperature:         cfg.LLMTemperature,
	})
	log.Printf("provider: embeddings %s (%d dims), chat %s", client.Model(), client.Dimensions(), client.ChatModel())
	return newApp(ctx, cfg, client)
}

func newApp(ctx context.Context, cfg *config.Config, llm provider) (*App, error) {
	app := &App{cfg: cfg}

	if err := app.openStore(ctx); err != nil {
		app.Close()
		return nil, err
	}

	var archive service.WorkbookArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	embedRetry := providerPolicy(cfg.EmbedMaxRetries, cfg.ProviderTimeout)

	app.Index = service.NewIndexService(
		extract.NewExtractor(cfg.Mode()),
		llm,
		app.store,
		service.IndexConfig{
			Chunk:            cfg.ChunkConfig(),
			Dimension:        cfg.EmbeddingDimensions,
			EmbedRetry:       embedRetry,
			EmbedConcurrency: service.DefaultIndexConfig().EmbedConcurrency,
		},
	)
	if app.history != nil {
		app.Index.WithRecorder(app.history)
	}

	app.Query = service.NewQueryService(app.store, llm, llm, service.QueryConfig{
		TopK:            cfg.TopK,
		SearchThreshold: cfg.SimilarityThreshold,
		EmbedRetry:      embedRetry,
		GenerateRetry:   providerPolicy(cfg.GenerateMaxRetries, cfg.ProviderTimeout),
	})
	app.Workbook = service.NewWorkbookService(cfg.WorkbookPath, archive)
	app.Filter = chatfilter.New(app.Query, maxFilterSources)

	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	if !a.cfg.UsesPostgres() {
		store, err := vectorstore.OpenSQLiteStore(ctx, a.cfg.ResolvedIndexDir())
		if err != nil {
			return fmt.Errorf("failed to open index: %w", err)
		}
		log.Printf("using sqlite index at %s", store.Path())
		a.store = store
		return nil
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:            a.cfg.DatabaseURL,
		ConnectTimeout: databaseConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("connected to database")

	if a.cfg.RunMigrations {
		if err := database.RunMigrations(a.cfg.DatabaseURL); err != nil {
			pool.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a.pool = pool
	a.store = repository.NewIndexStore(pool)
	a.history = repository.NewIndexJobRepository(pool)
	return nil
}

// History returns the job history, or nil when the backend keeps none.
func (a *App) History() *repository.IndexJobRepository {
	return a.history
}

// RecoverInterruptedJobs fails jobs a previous process left running.
func (a *App) RecoverInterruptedJobs(ctx context.Context) {
	if a.history == nil {
		return
	}
	n, err := a.history.FailInterrupted(ctx)
	if err != nil {
		log.Printf("failed to mark interrupted index jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("marked %d interrupted index jobs as failed", n)
	}
}

func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("failed to close index: %v", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func providerPolicy(maxRetries int, timeout time.Duration) retry.Policy {
	p := retry.DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	p.AttemptTimeout = timeout
	return p
}
