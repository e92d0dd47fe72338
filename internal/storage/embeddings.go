package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Embedding operations

// DeleteEmbeddings removes both embedding kinds for a file
func (s *SQLiteStorage) DeleteEmbeddings(ctx context.Context, fileID int64) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM content_embeddings WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("failed to delete content embeddings: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM metadata_embeddings WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("failed to delete metadata embeddings: %w", err)
		}
		return nil
	})
}

// InsertContentEmbedding stores one chunk embedding
func (s *SQLiteStorage) InsertContentEmbedding(ctx context.Context, emb *ContentEmbedding) error {
	return insertContentEmbedding(ctx, s.db, emb)
}

// ReplaceContentEmbeddings swaps a file's chunks for embs in one
// transaction. Either every chunk is stored or the old rows are kept.
func (s *SQLiteStorage) ReplaceContentEmbeddings(ctx context.Context, fileID int64, embs []*ContentEmbedding) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM content_embeddings WHERE file_id = ?", fileID); err != nil {
			return fmt.Errorf("failed to delete content embeddings: %w", err)
		}
		for _, emb := range embs {
			emb.FileID = fileID
			if err := insertContentEmbedding(ctx, q, emb); err != nil {
				return fmt.Errorf("chunk %d: %w", emb.ChunkIndex, err)
			}
		}
		return nil
	})
}

func insertContentEmbedding(ctx context.Context, q querier, emb *ContentEmbedding) error {
	blob, err := EncodeVector(emb.Vector)
	if err != nil {
		return err
	}
	result, err := q.ExecContext(ctx,
		"INSERT INTO content_embeddings (file_id, chunk_index, chunk_text, embedding) VALUES (?, ?, ?, ?)",
		emb.FileID, emb.ChunkIndex, emb.ChunkText, blob)
	if err != nil {
		return fmt.Errorf("failed to insert content embedding: %w", err)
	}
	emb.ID, err = result.LastInsertId()
	return err
}

// InsertMetadataEmbedding stores the metadata embedding, replacing any
// existing row for the file
func (s *SQLiteStorage) InsertMetadataEmbedding(ctx context.Context, emb *MetadataEmbedding) error {
	blob, err := EncodeVector(emb.Vector)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata_embeddings (file_id, embedding) VALUES (?, ?)",
		emb.FileID, blob)
	if err != nil {
		return fmt.Errorf("failed to insert metadata embedding: %w", err)
	}
	emb.ID, err = result.LastInsertId()
	return err
}

// ListContentEmbeddings returns a file's chunks in chunk order
func (s *SQLiteStorage) ListContentEmbeddings(ctx context.Context, fileID int64) ([]*ContentEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_id, chunk_index, chunk_text, embedding FROM content_embeddings WHERE file_id = ? ORDER BY chunk_index",
		fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list content embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	embs := make([]*ContentEmbedding, 0)
	for rows.Next() {
		var e ContentEmbedding
		var blob []byte
		if err := rows.Scan(&e.ID, &e.FileID, &e.ChunkIndex, &e.ChunkText, &blob); err != nil {
			return nil, err
		}
		if e.Vector, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("content embedding %d: %w", e.ID, err)
		}
		embs = append(embs, &e)
	}
	return embs, rows.Err()
}

// GetMetadataEmbedding returns a file's metadata embedding
func (s *SQLiteStorage) GetMetadataEmbedding(ctx context.Context, fileID int64) (*MetadataEmbedding, error) {
	var e MetadataEmbedding
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT id, file_id, embedding FROM metadata_embeddings WHERE file_id = ?", fileID).
		Scan(&e.ID, &e.FileID, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata embedding: %w", err)
	}
	if e.Vector, err = DecodeVector(blob); err != nil {
		return nil, fmt.Errorf("metadata embedding %d: %w", e.ID, err)
	}
	return &e, nil
}

// Search operations

// SearchContent finds the chunks nearest to vector
func (s *SQLiteStorage) SearchContent(ctx context.Context, vector []float32, maxDistance float64, limit int) ([]VectorHit, error) {
	return s.searchVector(ctx, contentTable, vector, maxDistance, limit)
}

// SearchMetadata finds the metadata embeddings nearest to vector
func (s *SQLiteStorage) SearchMetadata(ctx context.Context, vector []float32, maxDistance float64, limit int) ([]VectorHit, error) {
	return s.searchVector(ctx, metadataTable, vector, maxDistance, limit)
}
