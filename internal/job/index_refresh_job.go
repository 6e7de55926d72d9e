package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

type IndexReloader interface {
	Keys() []string
	Reload(ctx context.Context, collectionID string) error
}

// IndexRefreshJob reloads every cached collection index so that documents
// ingested since the last load become searchable. Collections that have
// disappeared are dropped by the reload itself.
type IndexRefreshJob struct {
	indexes IndexReloader
}

func NewIndexRefreshJob(indexes IndexReloader) *IndexRefreshJob {
	return &IndexRefreshJob{indexes: indexes}
}

func (j *IndexRefreshJob) Name() string {
	return "index_refresh"
}

func (j *IndexRefreshJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	var errs []error
	for _, id := range j.indexes.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := j.indexes.Reload(ctx, id)
		switch {
		case err == nil:
			logger.Debug("collection index refreshed", zap.String("collection_id", id))
		case appErr.IsCollectionNotFound(err):
			logger.Info("collection gone, dropped from cache", zap.String("collection_id", id))
		default:
			logger.Error("refresh collection index failed", zap.String("collection_id", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
