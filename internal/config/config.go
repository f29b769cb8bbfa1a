package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DataDir      string `envconfig:"DATA_DIR" default:"data"`
	WorkbookPath string `envconfig:"WORKBOOK_PATH" default:"data/workbook.xlsx"`
	// IndexDir holds the sqlite index; defaults to <DataDir>/index.
	IndexDir     string `envconfig:"INDEX_DIR"`
	IndexBackend string `envconfig:"INDEX_BACKEND" default:"sqlite"`
	IndexOnStart bool   `envconfig:"INDEX_ON_START" default:"true"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"true"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-large"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"3072"`
	LLMModel            string  `envconfig:"LLM_MODEL" default:"gpt-4o"`
	LLMTemperature      float32 `envconfig:"LLM_TEMPERATURE" default:"0.1"`

	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"1200"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"200"`
	ChunkMin     int    `envconfig:"CHUNK_MIN" default:"400"`
	UnitMode     string `envconfig:"UNIT_MODE" default:"row"`

	TopK                int     `envconfig:"TOP_K" default:"15"`
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.4"`

	ProviderTimeout    time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
	EmbedMaxRetries    int           `envconfig:"EMBED_MAX_RETRIES" default:"3"`
	GenerateMaxRetries int           `envconfig:"GENERATE_MAX_RETRIES" default:"2"`

	WatchInterval time.Duration `envconfig:"WATCH_INTERVAL" default:"0s"`

	APIKey         string `envconfig:"API_KEY"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"sheetrag-workbooks"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	GopsAgent bool `envconfig:"GOPS" default:"false"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("SHEETRAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	c.IndexBackend = strings.ToLower(strings.TrimSpace(c.IndexBackend))
	switch c.IndexBackend {
	case BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SHEETRAG_DATABASE_URL is required for the postgres index backend")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.IndexBackend)
	}
	if _, err := domain.ParseUnitMode(c.UnitMode); err != nil {
		return err
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return fmt.Errorf("SHEETRAG_TOP_K must be positive, got %d", c.TopK)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("SHEETRAG_EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	return nil
}

func (c *Config) ChunkConfig() domain.ChunkConfig {
	return domain.ChunkConfig{
		MaxChars: c.ChunkSize,
		MinChars: c.ChunkMin,
		Overlap:  c.ChunkOverlap,
	}
}

// Mode returns the parsed unit mode, falling back to rows.
func (c *Config) Mode() domain.UnitMode {
	mode, err := domain.ParseUnitMode(c.UnitMode)
	if err != nil {
		return domain.UnitModeRow
	}
	return mode
}

func (c *Config) ResolvedIndexDir() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	return filepath.Join(c.DataDir, "index")
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != "" || c.OpenAIBaseURL != ""
}

func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

func (c *Config) UsesPostgres() bool {
	return c.IndexBackend == BackendPostgres
}
