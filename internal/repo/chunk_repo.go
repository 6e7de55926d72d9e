package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/scribe/internal/model"
	"github.com/xxxsen/scribe/internal/pkg/dbutil"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

const insertBatchSize = 200

var chunkColumns = []string{"chunk_id", "source", "page", "chunk_offset", "text", "embedding"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) CollectionDimension(ctx context.Context, collectionID string) (int, bool, error) {
	where := map[string]interface{}{"id": collectionID}
	sqlStr, args, err := builder.BuildSelect("collections", where, []string{"dimension"})
	if err != nil {
		return 0, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var dim int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&dim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return dim, true, nil
}

func (r *ChunkRepo) EnsureCollection(ctx context.Context, collectionID string, dimension int) error {
	data := map[string]interface{}{
		"id":        collectionID,
		"dimension": dimension,
		"ctime":     time.Now().Unix(),
	}
	sqlStr, args, err := builder.BuildInsert("collections", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err == nil {
		return nil
	}
	if !dbutil.IsConflict(err) {
		return err
	}
	if dimension == 0 {
		return nil
	}
	const fill = `UPDATE collections SET dimension = $1 WHERE id = $2 AND dimension = 0`
	_, err = r.db.ExecContext(ctx, fill, dimension, collectionID)
	return err
}

func (r *ChunkRepo) ListChunks(ctx context.Context, collectionID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"collection_id": collectionID,
		"_orderby":      "chunk_id asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		var (
			c         model.Chunk
			page      sql.NullInt64
			embedding pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.Source, &page, &c.Offset, &c.Text, &embedding); err != nil {
			return nil, err
		}
		if page.Valid {
			c.Page = model.IntPtr(int(page.Int64))
		}
		c.Vector = embedding.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ReplaceDocumentChunks swaps the chunks of one document in a single
// transaction.
func (r *ChunkRepo) ReplaceDocumentChunks(ctx context.Context, collectionID, documentID string, chunks []model.Chunk) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	sqlDelete, deleteArgs := dbutil.Finalize(
		"DELETE FROM chunks WHERE collection_id=? AND document_id=?",
		[]interface{}{collectionID, documentID},
	)
	if _, err = tx.ExecContext(ctx, sqlDelete, deleteArgs...); err != nil {
		return err
	}
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		rows := make([]map[string]interface{}, 0, end-start)
		for _, c := range chunks[start:end] {
			var page interface{}
			if c.Page != nil {
				page = *c.Page
			}
			rows = append(rows, map[string]interface{}{
				"collection_id": collectionID,
				"chunk_id":      c.ID,
				"document_id":   documentID,
				"source":        c.Source,
				"page":          page,
				"chunk_offset":  c.Offset,
				"text":          c.Text,
				"embedding":     pgvector.NewVector(c.Vector),
			})
		}
		sqlStr, args, buildErr := builder.BuildInsert("chunks", rows)
		if buildErr != nil {
			err = buildErr
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
			if dbutil.IsConflict(err) {
				err = fmt.Errorf("chunk id already used in collection %q: %w", collectionID, appErr.ErrConflict)
			}
			return err
		}
	}
	return tx.Commit()
}
