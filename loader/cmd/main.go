package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studyrag/config"
	"studyrag/loader/service"
	"studyrag/model"
	"studyrag/store"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch
		log.Println("Received shutdown signal, cancelling rebuild...")
		cancel()
	}()

	pool, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN(), cfg.Embedding.Dim)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
	}

	cache, err := store.NewSQLiteCache(cfg.Embedding.CachePath)
	if err != nil {
		log.Fatal("error to open embedding cache: ", err)
	}
	defer cache.Close()

	retry := model.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Retrieval.MaxRetries
	embedder := model.NewCachedEmbedder(
		model.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model),
		cache, cfg.Embedding.Model, retry, nil)

	svc := service.New(pool, embedder, model.NewTiktokenCounter(), cfg.Embedding.Concurrency)
	stats, err := svc.Run(ctx, cfg.LoaderSourceDir)
	if err != nil {
		log.Println("index rebuild failed:", err)
		return
	}
	log.Printf("Index rebuilt: %d chunks from %d files (%d cached, %d embedded) in %s\n",
		stats.Chunks, stats.Files, stats.CacheHits, stats.CacheMisses, stats.Duration)
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
}
