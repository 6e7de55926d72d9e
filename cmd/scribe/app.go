package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/ai"
	"github.com/xxxsen/scribe/internal/config"
	"github.com/xxxsen/scribe/internal/db"
	"github.com/xxxsen/scribe/internal/embedcache"
	"github.com/xxxsen/scribe/internal/filestore"
	"github.com/xxxsen/scribe/internal/repo"
	"github.com/xxxsen/scribe/internal/retriever"
	"github.com/xxxsen/scribe/internal/service"
	"github.com/xxxsen/scribe/internal/vectorindex"
)

var configPath string

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   vectorindex.Store
	local   *filestore.LocalStore
	indexes *vectorindex.Cache
	manager *ai.Manager
	queries *service.QueryService
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	return cfg, nil
}

// newApp builds the query stack. taskType selects the embedding task, which
// differs between query time and index building for some providers.
func newApp(ctx context.Context, cfg *config.Config, taskType string) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.Database.Enabled() {
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.db = conn
	}
	if err := a.initIndexStore(); err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := a.buildEmbedder(taskType)
	if err != nil {
		a.Close()
		return nil, err
	}
	generator, err := a.buildGenerator()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager = ai.NewManager(generator, embedder, ai.ManagerConfig{
		EmbedTimeout:    time.Duration(cfg.Query.EmbedTimeoutMS) * time.Millisecond,
		GenerateTimeout: time.Duration(cfg.Query.GenerateTimeoutMS) * time.Millisecond,
	})
	a.indexes = vectorindex.NewCache(a.store, cfg.IndexCache.Size, time.Duration(cfg.IndexCache.TTLSeconds)*time.Second)
	r, err := retriever.NewRetriever(a.manager, a.indexes, retriever.Options{
		SearchTimeout: time.Duration(cfg.Query.SearchTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	var gen ai.IGenerator
	if generator != nil {
		gen = a.manager.Generator()
	}
	a.queries = service.NewQueryService(r, gen, a.indexes, service.QueryOptions{
		DefaultK:             cfg.Query.DefaultK,
		MaxK:                 cfg.Query.MaxK,
		PromptMaxChars:       cfg.Query.PromptMaxChars,
		GenerateOnEmpty:      *cfg.Query.GenerateOnEmpty,
		MaxOutputTokensLimit: cfg.Generation.MaxOutputTokensLimit,
		AnswerCacheSize:      cfg.Query.AnswerCacheSize,
		AnswerCacheTTL:       time.Duration(cfg.Query.AnswerCacheTTLSeconds) * time.Second,
	})
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) initIndexStore() error {
	switch a.cfg.IndexStore.Type {
	case "pgvector":
		if a.db == nil {
			return fmt.Errorf("pgvector index store requires a database")
		}
		a.store = vectorindex.NewPGVectorStore(repo.NewChunkRepo(a.db))
	default:
		files, err := filestore.New(a.cfg.FileStore)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
		if local, ok := files.(*filestore.LocalStore); ok {
			a.local = local
		}
		a.store = vectorindex.NewBlobStore(files)
	}
	return nil
}

func (a *app) buildEmbedder(taskType string) (ai.IEmbedder, error) {
	cfg := a.cfg.Embedding
	if taskType == "" {
		taskType = cfg.TaskType
	}
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		provider, err := ai.NewEmbedProvider(p.Name, p.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedding provider %s: %w", p.Name, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name: p.Name + ":" + p.Model,
			Embedder: ai.NewEmbedder(provider, p.Model, ai.EmbedderOptions{
				TaskType:      taskType,
				MaxInputChars: cfg.MaxInputChars,
			}),
		})
	}
	embedder, err := ai.NewGroupEmbedder(entries)
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	if cfg.DBCache && a.db != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, repo.NewEmbeddingCacheRepo(a.db))
	}
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second), nil
}

func (a *app) buildGenerator() (ai.IGenerator, error) {
	cfg := a.cfg.Generation
	entries := make([]ai.GeneratorEntry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		provider, err := ai.NewGenProvider(p.Name, p.Data)
		if err != nil {
			return nil, fmt.Errorf("init generation provider %s: %w", p.Name, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name: p.Name + ":" + p.Model,
			Generator: ai.NewGenerator(provider, p.Model, ai.GeneratorOptions{
				MaxOutputTokensLimit: cfg.MaxOutputTokensLimit,
				Defaults:             cfg.Defaults,
			}),
		})
	}
	if len(entries) == 0 {
		logutil.GetLogger(context.Background()).Warn("no generation provider configured, answers degrade to retrieved sources")
		return nil, nil
	}
	return ai.NewGroupGenerator(entries), nil
}
