package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/handler"
	"github.com/xxxsen/scribe/internal/job"
	"github.com/xxxsen/scribe/internal/middleware"
	"github.com/xxxsen/scribe/internal/repo"
	"github.com/xxxsen/scribe/internal/schedule"
	"github.com/xxxsen/scribe/internal/vectorindex"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("index_store", cfg.IndexStore.Type),
		zap.String("embedder", a.manager.ModelName()),
		zap.String("generator", a.manager.GeneratorModelName()),
	)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIndexRefreshJob(a.indexes), cfg.Jobs.IndexRefreshCron); err != nil {
		return err
	}
	if a.db != nil && cfg.Embedding.DBCache {
		cleanup := job.NewEmbeddingCacheCleanupJob(repo.NewEmbeddingCacheRepo(a.db), cfg.Jobs.EmbeddingCacheMaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.Jobs.EmbeddingCacheCleanupCron); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.IndexCache.Watch {
		if a.local == nil {
			logger.Warn("index watch needs a local file store, skipped")
		} else {
			watcher := vectorindex.NewWatcher(a.local.Dir(), a.indexes)
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("start index watcher: %w", err)
			}
			defer watcher.Stop()
		}
	}

	deps := handler.RouterDeps{
		Queries:     handler.NewQueryHandler(a.queries),
		Collections: handler.NewCollectionHandler(a.queries),
		RateLimit:   time.Duration(cfg.RateLimitMS) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
