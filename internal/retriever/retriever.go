package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/ai"
	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
	"github.com/xxxsen/scribe/internal/vectorindex"
)

// IndexResolver hands out the loaded index of a collection.
// *vectorindex.Cache is the production implementation.
type IndexResolver interface {
	Get(ctx context.Context, collectionID string) (*vectorindex.Index, error)
}

type Options struct {
	// SearchTimeout bounds index resolution, 0 disables it.
	SearchTimeout time.Duration
}

type Retriever struct {
	embedder ai.IEmbedder
	indexes  IndexResolver
	opts     Options
}

func NewRetriever(embedder ai.IEmbedder, indexes IndexResolver, opts Options) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever requires an embedder")
	}
	if indexes == nil {
		return nil, fmt.Errorf("retriever requires an index resolver")
	}
	return &Retriever{embedder: embedder, indexes: indexes, opts: opts}, nil
}

// Retrieve returns at most k chunks of collectionID ranked by cosine
// similarity to queryText. The collection is resolved before the query is
// embedded, so an unknown collection fails with appErr.ErrCollectionNotFound
// without a provider call. An ingested collection without chunks yields an
// empty result.
func (r *Retriever) Retrieve(ctx context.Context, collectionID, queryText string, k int) ([]model.RetrievedChunk, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, appErr.NewFieldError("queryText", "must not be empty")
	}
	if k <= 0 {
		return nil, appErr.NewFieldError("numberOfResults", "must be positive")
	}
	logger := logutil.GetLogger(ctx).With(zap.String("collection_id", collectionID))

	idx, err := r.resolve(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		logger.Debug("collection is empty, skip embedding")
		return []model.RetrievedChunk{}, nil
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", ai.ClassifyError(err))
	}
	hits, err := idx.Search(vec, k)
	if err != nil {
		// the embedding model and the stored index disagree, which the caller cannot fix
		return nil, fmt.Errorf("search collection %q: %v: %w", collectionID, err, appErr.ErrInternal)
	}
	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.RetrievedChunk{
			ChunkID: h.Chunk.ID,
			Text:    h.Chunk.Text,
			Source:  h.Chunk.Source,
			Page:    h.Chunk.Page,
			Score:   h.Score,
		})
	}
	logger.Debug("retrieve finished", zap.Int("k", k), zap.Int("hits", len(out)), zap.Duration("cost", time.Since(start)))
	return out, nil
}

func (r *Retriever) resolve(ctx context.Context, collectionID string) (*vectorindex.Index, error) {
	if r.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SearchTimeout)
		defer cancel()
	}
	idx, err := r.indexes.Get(ctx, collectionID)
	switch {
	case err == nil:
		return idx, nil
	case appErr.IsCollectionNotFound(err), appErr.IsInvalid(err):
		return nil, err
	case appErr.IsInternal(err):
		return nil, fmt.Errorf("resolve collection %q: %w", collectionID, err)
	default:
		return nil, fmt.Errorf("resolve collection %q: %w", collectionID, ai.ClassifyError(err))
	}
}
