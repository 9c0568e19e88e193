// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	ServerAddr string `validate:"required"`

	Postgres  PostgresConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Scout     ScoutConfig
	Plan      PlanConfig

	LoaderSourceDir string
}

type PostgresConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gt=0"`
	User     string
	Password string
	DBName   string `validate:"required"`
}

// DSN builds the connection string the same way for every binary.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type EmbeddingConfig struct {
	URL         string `validate:"required,url"`
	Model       string `validate:"required"`
	Dim         int    `validate:"gt=0"`
	CachePath   string `validate:"required"`
	Concurrency int    `validate:"gt=0"`
}

type RetrievalConfig struct {
	MaxRetries int           `validate:"gte=0"`
	Timeout    time.Duration `validate:"gt=0"`
	OverFetch  int           `validate:"gte=1"`
}

type ScoutConfig struct {
	TopK          int     `validate:"gt=0"`
	MinScore      float64 `validate:"gte=-1,lte=1"`
	ChapterFilter bool
	Concurrency   int `validate:"gt=0"`
}

type PlanConfig struct {
	MinutesPerDay int    `validate:"gt=0"`
	Strategy      string `validate:"oneof=round_robin priority_first balanced"`
}

func Default() Config {
	return Config{
		ServerAddr: ":3000",
		Postgres: PostgresConfig{
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			DBName: "studyrag",
		},
		Embedding: EmbeddingConfig{
			URL:         "http://localhost:11434/api/embeddings",
			Model:       "nomic-embed-text",
			Dim:         768,
			CachePath:   "embeddings.db",
			Concurrency: 4,
		},
		Retrieval: RetrievalConfig{
			MaxRetries: 3,
			Timeout:    10 * time.Second,
			OverFetch:  4,
		},
		Scout: ScoutConfig{
			TopK:          10,
			MinScore:      0.7,
			ChapterFilter: true,
			Concurrency:   4,
		},
		Plan: PlanConfig{
			MinutesPerDay: 90,
			Strategy:      "balanced",
		},
		LoaderSourceDir: "chunks",
	}
}

// Load overlays environment variables on the defaults and validates the result.
// Callers load .env with godotenv before calling it.
func Load() (Config, error) {
	cfg := Default()

	cfg.ServerAddr = str("SERVER_ADDR", cfg.ServerAddr)

	cfg.Postgres.Host = str("PG_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = integer("PG_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = str("PG_USER", cfg.Postgres.User)
	cfg.Postgres.Password = str("PG_PASS", cfg.Postgres.Password)
	cfg.Postgres.DBName = str("PG_DB_NAME", cfg.Postgres.DBName)

	cfg.Embedding.URL = str("OLLAMA_EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Model = str("OLLAMA_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dim = integer("EMBEDDING_DIM", cfg.Embedding.Dim)
	cfg.Embedding.CachePath = str("EMBEDDING_CACHE_PATH", cfg.Embedding.CachePath)
	cfg.Embedding.Concurrency = integer("EMBEDDING_CONCURRENCY", cfg.Embedding.Concurrency)

	cfg.Retrieval.MaxRetries = integer("RETRIEVAL_MAX_RETRIES", cfg.Retrieval.MaxRetries)
	cfg.Retrieval.Timeout = duration("RETRIEVAL_TIMEOUT", cfg.Retrieval.Timeout)
	cfg.Retrieval.OverFetch = integer("RETRIEVAL_OVERFETCH", cfg.Retrieval.OverFetch)

	cfg.Scout.TopK = integer("SCOUT_TOP_K", cfg.Scout.TopK)
	cfg.Scout.MinScore = float("SCOUT_MIN_SCORE", cfg.Scout.MinScore)
	cfg.Scout.ChapterFilter = boolean("SCOUT_CHAPTER_FILTER", cfg.Scout.ChapterFilter)
	cfg.Scout.Concurrency = integer("SCOUT_CONCURRENCY", cfg.Scout.Concurrency)

	cfg.Plan.MinutesPerDay = integer("PLAN_MINUTES_PER_DAY", cfg.Plan.MinutesPerDay)
	cfg.Plan.Strategy = str("PLAN_STRATEGY", cfg.Plan.Strategy)

	cfg.LoaderSourceDir = str("LOADER_SOURCE_DIR", cfg.LoaderSourceDir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func str(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func integer(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func float(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolean(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
