package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/classmate/internal/ai"
	"github.com/xxxsen/classmate/internal/config"
	"github.com/xxxsen/classmate/internal/db"
	"github.com/xxxsen/classmate/internal/embedcache"
	"github.com/xxxsen/classmate/internal/repo"
	"github.com/xxxsen/classmate/internal/service"
	"github.com/xxxsen/classmate/internal/vectorstore"
)

const embedderCheckTimeout = 15 * time.Second

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

// openDatabase returns nil when no database is configured.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if !cfg.Database.Enabled() {
		return nil, nil
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn, cfg.Database.Driver); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func buildEmbedder(cfg *config.Config, conn *sql.DB) (ai.IEmbedder, *repo.EmbeddingCacheRepo, error) {
	emb := cfg.Embedding
	var args interface{}
	if emb.Data != nil {
		args = emb.Data
	}
	provider, err := ai.NewProvider(emb.Provider, args)
	if err != nil {
		return nil, nil, fmt.Errorf("init embedding provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, emb.Model, emb.Dimensions)
	var cacheRepo *repo.EmbeddingCacheRepo
	if conn != nil && !cfg.Cache.DisableDB {
		cacheRepo = repo.NewEmbeddingCacheRepo(conn, cfg.Database.Driver)
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	if cfg.Cache.LRUSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Cache.LRUSize, time.Duration(cfg.Cache.LRUTTLSeconds)*time.Second)
	}
	return embedder, cacheRepo, nil
}

func ragOpener(cfg *config.Config, conn *sql.DB, embedder ai.IEmbedder) service.RAGOpener {
	return func(ctx context.Context) (*service.RAGService, error) {
		if err := checkEmbedder(ctx, embedder); err != nil {
			return nil, err
		}
		store, err := vectorstore.Open(ctx, cfg.VectorStore.Type, vectorstore.Options{
			Collection: cfg.VectorStore.Collection,
			ModelName:  embedder.ModelName(),
			Dimensions: embedder.Dimensions(),
			DB:         conn,
		})
		if err != nil {
			return nil, err
		}
		chunker := ai.NewChunker(ai.WithChunkSize(cfg.RAG.ChunkSize))
		return service.NewRAGService(embedder, store, chunker, cfg.Embedding.Concurrency), nil
	}
}

// checkEmbedder embeds a short text once so that an embedder without
// credentials puts the index into degraded mode at startup. Other failures
// are only logged since they may be transient.
func checkEmbedder(ctx context.Context, embedder ai.IEmbedder) error {
	checkCtx, cancel := context.WithTimeout(ctx, embedderCheckTimeout)
	defer cancel()
	_, err := embedder.Embed(checkCtx, "classmate embedder check", ai.TaskTypeQuery)
	if err == nil {
		return nil
	}
	if errors.Is(err, ai.ErrNoCredentials) || errors.Is(err, ai.ErrUnavailable) {
		return fmt.Errorf("%w: embedder %s: %w", vectorstore.ErrIndexUnavailable, embedder.ModelName(), err)
	}
	logutil.GetLogger(ctx).Warn("embedder check failed, keeping index enabled",
		zap.String("model", embedder.ModelName()), zap.Error(err))
	return nil
}

func buildGateway(cfg *config.Config) *ai.Gateway {
	lg := logutil.GetLogger(context.Background())
	entries := make([]ai.GeneratorEntry, 0, len(cfg.LLM.Providers))
	for _, item := range cfg.LLM.Providers {
		var args interface{}
		if item.Data != nil {
			args = item.Data
		}
		provider, err := ai.NewProvider(item.Provider, args)
		if err != nil {
			lg.Error("skip llm provider", zap.String("name", item.Name), zap.Error(err))
			continue
		}
		entries = append(entries, ai.GeneratorEntry{Name: item.Name, Generator: ai.NewGenerator(provider, item.Model)})
	}
	return ai.NewGateway(entries,
		ai.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		ai.WithRetries(cfg.LLM.Retries()),
		ai.WithBackoff(time.Duration(cfg.LLM.BackoffMS)*time.Millisecond),
		ai.WithTranscribePrompt(cfg.LLM.TranscribePrompt),
	)
}
