package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const (
	// VectorDimension is the length of every stored embedding
	VectorDimension = 384
	// VectorBlobSize is the exact byte length of an encoded embedding
	VectorBlobSize = VectorDimension * 4
)

// EncodeVector converts a 384-dim vector to its persisted form: each float32
// written as 4 little-endian bytes.
func EncodeVector(vector []float32) ([]byte, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(vector), VectorDimension)
	}
	return serializeVector(vector), nil
}

// DecodeVector is the inverse of EncodeVector. Blobs of any length other than
// VectorBlobSize are rejected.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) != VectorBlobSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidVector, len(blob), VectorBlobSize)
	}
	return deserializeVector(blob), nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance matches sqlite-vec's vec_distance_cosine: 1 - similarity,
// in [0, 2]
func CosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// vectorTable describes one of the two embedding tables for search
type vectorTable struct {
	name     string
	chunkCol string // "-1" for tables without chunks
}

var (
	contentTable  = vectorTable{name: "content_embeddings", chunkCol: "chunk_index"}
	metadataTable = vectorTable{name: "metadata_embeddings", chunkCol: "-1"}
)

// searchVector returns up to limit rows of table with distance <= maxDistance,
// nearest first. A negative maxDistance disables the cutoff.
func (s *SQLiteStorage) searchVector(ctx context.Context, table vectorTable, query []float32, maxDistance float64, limit int) ([]VectorHit, error) {
	if len(query) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrInvalidVector, len(query), VectorDimension)
	}
	if limit <= 0 {
		return []VectorHit{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return s.searchVectorOptimized(ctx, table, query, maxDistance, limit)
	}
	// Fall back to Go-based computation for purego builds
	return s.searchVectorFallback(ctx, table, query, maxDistance, limit)
}

// searchVectorOptimized computes distances in the database with sqlite-vec
func (s *SQLiteStorage) searchVectorOptimized(ctx context.Context, table vectorTable, query []float32, maxDistance float64, limit int) ([]VectorHit, error) {
	// Rows with a malformed blob are excluded up front; vec_distance_cosine
	// would otherwise fail the whole statement.
	q := fmt.Sprintf(`
		SELECT id, file_id, chunk_index, distance FROM (
			SELECT id, file_id, %s AS chunk_index, vec_distance_cosine(embedding, ?) AS distance
			FROM %s
			WHERE length(embedding) = ?
		)
		WHERE ? < 0 OR distance <= ?
		ORDER BY distance ASC
		LIMIT ?`, table.chunkCol, table.name)

	rows, err := s.db.QueryContext(ctx, q, serializeVector(query), VectorBlobSize, maxDistance, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]VectorHit, 0, limit)
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ID, &h.FileID, &h.ChunkIndex, &h.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// searchVectorFallback scans the table and ranks in Go
func (s *SQLiteStorage) searchVectorFallback(ctx context.Context, table vectorTable, query []float32, maxDistance float64, limit int) ([]VectorHit, error) {
	q := fmt.Sprintf("SELECT id, file_id, %s, embedding FROM %s", table.chunkCol, table.name)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits, skipped, err := computeDistances(rows, query, maxDistance)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed embeddings", "table", table.name, "count", skipped)
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// computeDistances decodes each row and keeps those within maxDistance.
// Rows whose blob fails to decode are counted and skipped.
func computeDistances(rows *sql.Rows, query []float32, maxDistance float64) ([]VectorHit, int, error) {
	hits := make([]VectorHit, 0, 256)
	skipped := 0
	for rows.Next() {
		var h VectorHit
		var blob []byte
		if err := rows.Scan(&h.ID, &h.FileID, &h.ChunkIndex, &blob); err != nil {
			return nil, 0, err
		}
		vector, err := DecodeVector(blob)
		if err != nil {
			skipped++
			continue
		}
		h.Distance = CosineDistance(query, vector)
		if maxDistance >= 0 && h.Distance > maxDistance {
			continue
		}
		hits = append(hits, h)
	}
	return hits, skipped, rows.Err()
}

// sortHits orders by ascending distance, then id for stability
func sortHits(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}
