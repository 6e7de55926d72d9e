package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/filestore"
	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

const manifestName = "manifest.json"

// BlobStore keeps one manifest and one index file per source document under
// "<collection>/" in a file store. Only documents the manifest marks as
// completed are loaded.
type BlobStore struct {
	files filestore.Store
}

func NewBlobStore(files filestore.Store) *BlobStore {
	return &BlobStore{files: files}
}

func ManifestKey(collectionID string) string {
	return path.Join(collectionID, manifestName)
}

func documentKey(collectionID, documentID string) string {
	return path.Join(collectionID, "docs", url.PathEscape(documentID)+".idx")
}

func (s *BlobStore) Load(ctx context.Context, collectionID string) (*Index, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, err
	}
	manifest, err := s.readManifest(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("collection_id", collectionID))
	idx := New(manifest.Dimension)
	for _, doc := range manifest.Documents {
		if doc.Status != model.DocumentStatusCompleted {
			logger.Debug("skip unfinished document", zap.String("document_id", doc.ID), zap.String("status", string(doc.Status)))
			continue
		}
		part, err := s.readDocument(ctx, collectionID, doc)
		if err != nil {
			return nil, fmt.Errorf("load document %q: %w", doc.ID, err)
		}
		if err := idx.Merge(part); err != nil {
			return nil, fmt.Errorf("merge document %q: %w", doc.ID, err)
		}
	}
	logger.Info("collection index loaded", zap.Int("documents", len(manifest.Documents)), zap.Int("chunks", idx.Len()))
	return idx, nil
}

func (s *BlobStore) Exists(ctx context.Context, collectionID string) (bool, error) {
	if err := ValidateCollectionID(collectionID); err != nil {
		return false, err
	}
	return s.files.Exists(ctx, ManifestKey(collectionID))
}

func (s *BlobStore) EnsureCollection(ctx context.Context, collectionID string, dimension int) error {
	if err := ValidateCollectionID(collectionID); err != nil {
		return err
	}
	manifest, err := s.readManifest(ctx, collectionID)
	switch {
	case err == nil:
		if manifest.Dimension == 0 && dimension > 0 {
			manifest.Dimension = dimension
			return s.writeManifest(ctx, manifest)
		}
		return nil
	case appErr.IsCollectionNotFound(err):
		return s.writeManifest(ctx, &model.CollectionManifest{ID: collectionID, Dimension: dimension})
	default:
		return err
	}
}

// Put writes the document index before flipping its manifest entry to
// completed, so a concurrent Load sees either the old or the new state.
func (s *BlobStore) Put(ctx context.Context, collectionID, documentID string, idx *Index) error {
	if err := ValidateCollectionID(collectionID); err != nil {
		return err
	}
	if documentID == "" {
		return appErr.NewFieldError("documentId", "is required")
	}
	manifest, err := s.readManifest(ctx, collectionID)
	if err != nil {
		if !appErr.IsCollectionNotFound(err) {
			return err
		}
		manifest = &model.CollectionManifest{ID: collectionID}
	}
	if manifest.Dimension == 0 {
		manifest.Dimension = idx.Dimension()
	}
	if idx.Len() > 0 && idx.Dimension() != manifest.Dimension {
		return fmt.Errorf("document dimension %d, collection expects %d: %w", idx.Dimension(), manifest.Dimension, appErr.ErrInvalid)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, idx); err != nil {
		return fmt.Errorf("encode document index: %w", err)
	}
	key := documentKey(collectionID, documentID)
	if err := s.files.Save(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return fmt.Errorf("save document index: %w", err)
	}
	entry := model.CollectionDocument{
		ID:     documentID,
		File:   path.Base(key),
		Status: model.DocumentStatusCompleted,
		Chunks: idx.Len(),
		Mtime:  time.Now().Unix(),
	}
	replaced := false
	for i := range manifest.Documents {
		if manifest.Documents[i].ID == documentID {
			manifest.Documents[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		manifest.Documents = append(manifest.Documents, entry)
	}
	return s.writeManifest(ctx, manifest)
}

func (s *BlobStore) readManifest(ctx context.Context, collectionID string) (*model.CollectionManifest, error) {
	rc, err := s.files.Open(ctx, ManifestKey(collectionID))
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, collectionNotFound(collectionID)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer rc.Close()
	var manifest model.CollectionManifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.ID == "" {
		manifest.ID = collectionID
	}
	return &manifest, nil
}

func (s *BlobStore) writeManifest(ctx context.Context, manifest *model.CollectionManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.files.Save(ctx, ManifestKey(manifest.ID), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

func (s *BlobStore) readDocument(ctx context.Context, collectionID string, doc model.CollectionDocument) (*Index, error) {
	key := documentKey(collectionID, doc.ID)
	if doc.File != "" {
		key = path.Join(collectionID, "docs", path.Base(doc.File))
	}
	rc, err := s.files.Open(ctx, key)
	if err != nil {
		if appErr.IsNotFound(err) {
			// the manifest lists it as completed, so the collection itself is broken
			return nil, fmt.Errorf("document index %q missing: %v: %w", key, err, appErr.ErrInternal)
		}
		return nil, err
	}
	defer rc.Close()
	return Decode(io.Reader(rc))
}
