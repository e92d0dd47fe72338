package storage

import (
	"context"
	"time"

	"github.com/dshills/filesift/pkg/types"
)

// Storage defines the interface for the file registry, its embedding tables and
// run bookkeeping.
type Storage interface {
	// File operations
	CreateFile(ctx context.Context, file *types.FileRecord) error
	UpdateFile(ctx context.Context, file *types.FileRecord) error
	GetFile(ctx context.Context, fileID int64) (*types.FileRecord, error)
	GetFileByHash(ctx context.Context, hash string) (*types.FileRecord, error)
	GetFileByPath(ctx context.Context, path string) (*types.FileRecord, error)
	ListFilesByIDs(ctx context.Context, ids []int64) ([]*types.FileRecord, error)
	CountFiles(ctx context.Context) (int64, error)
	DeleteFile(ctx context.Context, fileID int64) error
	RenameFile(ctx context.Context, fileID int64, newPath string) error

	// Indexing queue operations
	ListUnindexedFiles(ctx context.Context, category types.FileCategory, afterID int64, limit int) ([]*types.FileRecord, error)
	CountUnindexedFiles(ctx context.Context, category types.FileCategory) (int64, error)
	UpdateFileContent(ctx context.Context, fileID int64, content string, meta types.FileMetadata) error
	UpdateContentStatus(ctx context.Context, fileID int64, status types.IndexStatus, msg string) error
	UpdateMetaStatus(ctx context.Context, fileID int64, status types.IndexStatus, msg string) error
	ResetIndexingStatus(ctx context.Context) (int64, error)

	// Directory operations. dir is a directory path without a trailing separator.
	CountFilesByPrefix(ctx context.Context, dir string) (int64, error)
	DeleteFilesByPrefix(ctx context.Context, dir string) (int64, error)
	ReplacePathPrefix(ctx context.Context, oldDir, newDir string) (int64, error)

	// Path cache feeds
	ListPaths(ctx context.Context, afterID int64, limit int) ([]types.PathEntry, error)
	ListPathsUpdatedSince(ctx context.Context, since time.Time) ([]types.PathEntry, error)

	// Embedding operations
	DeleteEmbeddings(ctx context.Context, fileID int64) error
	InsertContentEmbedding(ctx context.Context, emb *ContentEmbedding) error
	ReplaceContentEmbeddings(ctx context.Context, fileID int64, embs []*ContentEmbedding) error
	InsertMetadataEmbedding(ctx context.Context, emb *MetadataEmbedding) error
	ListContentEmbeddings(ctx context.Context, fileID int64) ([]*ContentEmbedding, error)
	GetMetadataEmbedding(ctx context.Context, fileID int64) (*MetadataEmbedding, error)

	// Search operations
	SearchContent(ctx context.Context, vector []float32, maxDistance float64, limit int) ([]VectorHit, error)
	SearchMetadata(ctx context.Context, vector []float32, maxDistance float64, limit int) ([]VectorHit, error)

	// Task operations
	CreateTask(ctx context.Context, task *types.IndexingTask) error
	UpdateTask(ctx context.Context, task *types.IndexingTask) error
	GetTask(ctx context.Context, taskID int64) (*types.IndexingTask, error)
	LatestTask(ctx context.Context) (*types.IndexingTask, error)

	// Database operations
	Close() error
}

// ContentEmbedding is one embedded chunk of a file's extracted text.
type ContentEmbedding struct {
	ID         int64
	FileID     int64
	ChunkIndex int
	ChunkText  string
	Vector     []float32
}

// MetadataEmbedding is the embedding of a file's metadata sentence.
type MetadataEmbedding struct {
	ID     int64
	FileID int64
	Vector []float32
}

// VectorHit is a nearest-neighbor match. ChunkIndex is -1 for metadata hits.
type VectorHit struct {
	ID         int64
	FileID     int64
	ChunkIndex int
	Distance   float64
}
