package vectorindex

import (
	"context"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

// Store persists collection indexes. Load fails with
// appErr.ErrCollectionNotFound for a collection that was never ingested and
// returns an empty index for an ingested collection without chunks.
type Store interface {
	Load(ctx context.Context, collectionID string) (*Index, error)
	Exists(ctx context.Context, collectionID string) (bool, error)
	// EnsureCollection registers a collection with no documents.
	EnsureCollection(ctx context.Context, collectionID string, dimension int) error
	// Put stores the index of one source document and makes it searchable.
	Put(ctx context.Context, collectionID, documentID string, idx *Index) error
}

// ValidateCollectionID rejects ids that cannot name a storage partition.
func ValidateCollectionID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return appErr.NewFieldError("collectionId", "is required")
	case id != strings.TrimSpace(id):
		return appErr.NewFieldError("collectionId", "must not have surrounding spaces")
	case strings.ContainsAny(id, "/\\"), strings.Contains(id, ".."):
		return appErr.NewFieldError("collectionId", "must not contain path separators")
	case len(id) > 128:
		return appErr.NewFieldError("collectionId", "must not exceed 128 characters")
	}
	return nil
}

func collectionNotFound(id string) error {
	return fmt.Errorf("%q: %w", id, appErr.ErrCollectionNotFound)
}
