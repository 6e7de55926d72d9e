package vectorindex

import (
	"context"
	"fmt"

	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

// ChunkRepo is the table access the pgvector store needs.
type ChunkRepo interface {
	// CollectionDimension reports the dimension of a registered collection
	// and whether it exists.
	CollectionDimension(ctx context.Context, collectionID string) (int, bool, error)
	EnsureCollection(ctx context.Context, collectionID string, dimension int) error
	ListChunks(ctx context.Context, collectionID string) ([]model.Chunk, error)
	ReplaceDocumentChunks(ctx context.Context, collectionID, documentID string, chunks []model.Chunk) error
}

// PGVectorStore keeps chunk embeddings in a Postgres vector column. Search
// still runs in process against the loaded index, so both stores rank
// identically.
type PGVectorStore struct {
	repo ChunkRepo
}

func NewPGVectorStore(repo ChunkRepo) *PGVectorStore {
	return &PGVectorStore{repo: repo}
}

func (s *PGVectorStore) Load(ctx context.Context, collectionID string) (*Index, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, err
	}
	dim, ok, err := s.repo.CollectionDimension(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("lookup collection: %w", err)
	}
	if !ok {
		return nil, collectionNotFound(collectionID)
	}
	chunks, err := s.repo.ListChunks(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	idx := New(dim)
	if err := idx.Add(chunks...); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *PGVectorStore) Exists(ctx context.Context, collectionID string) (bool, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return false, err
	}
	_, ok, err := s.repo.CollectionDimension(ctx, collectionID)
	return ok, err
}

func (s *PGVectorStore) EnsureCollection(ctx context.Context, collectionID string, dimension int) error {
	if err := ValidateCollectionID(collectionID); err != nil {
		return err
	}
	return s.repo.EnsureCollection(ctx, collectionID, dimension)
}

func (s *PGVectorStore) Put(ctx context.Context, collectionID, documentID string, idx *Index) error {
	if err := ValidateCollectionID(collectionID); err != nil {
		return err
	}
	if documentID == "" {
		return appErr.NewFieldError("documentId", "is required")
	}
	dim, ok, err := s.repo.CollectionDimension(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("lookup collection: %w", err)
	}
	if !ok || dim == 0 {
		if err := s.repo.EnsureCollection(ctx, collectionID, idx.Dimension()); err != nil {
			return fmt.Errorf("ensure collection: %w", err)
		}
		dim = idx.Dimension()
	}
	if idx.Len() > 0 && idx.Dimension() != dim {
		return fmt.Errorf("document dimension %d, collection expects %d: %w", idx.Dimension(), dim, appErr.ErrInvalid)
	}
	return s.repo.ReplaceDocumentChunks(ctx, collectionID, documentID, idx.Chunks())
}
