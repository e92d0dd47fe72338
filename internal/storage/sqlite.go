package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/filesift/internal/logging"
	"github.com/dshills/filesift/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidVector is returned when a vector blob has the wrong length
	ErrInvalidVector = errors.New("invalid vector")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dataSourceName(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		logger: logging.NewModuleLogger("storage", "sqlite"),
	}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// File operations

const fileColumns = `id, name, path, category, content, metadata, hash, ext, size,
	file_created_at, file_modified_at, is_invalid, invalid_reason,
	content_status, content_status_msg, meta_status, meta_status_msg,
	created_at, updated_at`

// fileColumnsNoContent is used by list queries; extracted content can be large
const fileColumnsNoContent = `id, name, path, category, '' AS content, metadata, hash, ext, size,
	file_created_at, file_modified_at, is_invalid, invalid_reason,
	content_status, content_status_msg, meta_status, meta_status_msg,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(r rowScanner) (*types.FileRecord, error) {
	var f types.FileRecord
	var category, cStatus, mStatus int
	var metaJSON string
	var fileCreated, fileModified, created, updated int64
	err := r.Scan(
		&f.ID, &f.Name, &f.Path, &category, &f.Content, &metaJSON, &f.Hash, &f.Ext, &f.Size,
		&fileCreated, &fileModified, &f.IsInvalid, &f.InvalidReason,
		&cStatus, &f.ContentStatusMsg, &mStatus, &f.MetaStatusMsg,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	f.Category = types.FileCategory(category)
	f.ContentStatus = types.IndexStatus(cStatus)
	f.MetaStatus = types.IndexStatus(mStatus)
	f.FileCreatedAt = fromMillis(fileCreated)
	f.FileModifiedAt = fromMillis(fileModified)
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updated)
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &f.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for file %d: %w", f.ID, err)
		}
	}
	return &f, nil
}

func encodeMetadata(meta types.FileMetadata) (string, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// CreateFile inserts a new file record and sets its ID and record times
func (s *SQLiteStorage) CreateFile(ctx context.Context, file *types.FileRecord) error {
	metaJSON, err := encodeMetadata(file.Metadata)
	if err != nil {
		return err
	}
	now := time.Now()
	query := `
		INSERT INTO files (name, path, category, content, metadata, hash, ext, size,
			file_created_at, file_modified_at, is_invalid, invalid_reason,
			content_status, content_status_msg, meta_status, meta_status_msg,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		file.Name, file.Path, int(file.Category), file.Content, metaJSON, file.Hash, file.Ext, file.Size,
		toMillis(file.FileCreatedAt), toMillis(file.FileModifiedAt), file.IsInvalid, file.InvalidReason,
		int(file.ContentStatus), file.ContentStatusMsg, int(file.MetaStatus), file.MetaStatusMsg,
		toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	file.ID = id
	file.CreatedAt = fromMillis(toMillis(now))
	file.UpdatedAt = file.CreatedAt
	return nil
}

// UpdateFile writes every column except content, which only changes through
// UpdateFileContent
func (s *SQLiteStorage) UpdateFile(ctx context.Context, file *types.FileRecord) error {
	metaJSON, err := encodeMetadata(file.Metadata)
	if err != nil {
		return err
	}
	now := time.Now()
	query := `
		UPDATE files SET name = ?, path = ?, category = ?, metadata = ?, hash = ?, ext = ?, size = ?,
			file_created_at = ?, file_modified_at = ?, is_invalid = ?, invalid_reason = ?,
			content_status = ?, content_status_msg = ?, meta_status = ?, meta_status_msg = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		file.Name, file.Path, int(file.Category), metaJSON, file.Hash, file.Ext, file.Size,
		toMillis(file.FileCreatedAt), toMillis(file.FileModifiedAt), file.IsInvalid, file.InvalidReason,
		int(file.ContentStatus), file.ContentStatusMsg, int(file.MetaStatus), file.MetaStatusMsg,
		toMillis(now), file.ID)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if err := expectRow(result); err != nil {
		return err
	}
	file.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// GetFile retrieves a file record, including its content, by ID
func (s *SQLiteStorage) GetFile(ctx context.Context, fileID int64) (*types.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", fileID)
	return scanOne(row)
}

// GetFileByHash retrieves the most recently written record with the given hash
func (s *SQLiteStorage) GetFileByHash(ctx context.Context, hash string) (*types.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumnsNoContent+" FROM files WHERE hash = ? ORDER BY updated_at DESC, id DESC LIMIT 1", hash)
	return scanOne(row)
}

// GetFileByPath retrieves the record stored at path
func (s *SQLiteStorage) GetFileByPath(ctx context.Context, path string) (*types.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumnsNoContent+" FROM files WHERE path = ? ORDER BY id DESC LIMIT 1", path)
	return scanOne(row)
}

func scanOne(row *sql.Row) (*types.FileRecord, error) {
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFilesByIDs returns the records for ids in no particular order. Missing
// ids are skipped.
func (s *SQLiteStorage) ListFilesByIDs(ctx context.Context, ids []int64) ([]*types.FileRecord, error) {
	if len(ids) == 0 {
		return []*types.FileRecord{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumnsNoContent+" FROM files WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]*types.FileRecord, error) {
	defer func() { _ = rows.Close() }()
	files := make([]*types.FileRecord, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountFiles returns the number of file records
func (s *SQLiteStorage) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&n)
	return n, err
}

// deleteFileWithQuerier removes a file and both embedding kinds
func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM content_embeddings WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete content embeddings: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM metadata_embeddings WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete metadata embeddings: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// DeleteFile removes a file record and its embeddings
func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.withTx(ctx, func(q querier) error {
		return s.deleteFileWithQuerier(ctx, q, fileID)
	})
}

// RenameFile moves a record to newPath, updating its name but nothing that
// would trigger re-embedding
func (s *SQLiteStorage) RenameFile(ctx context.Context, fileID int64, newPath string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET path = ?, name = ?, updated_at = ? WHERE id = ?",
		newPath, baseName(newPath), toMillis(time.Now()), fileID)
	if err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return expectRow(result)
}

// Indexing queue operations

// ListUnindexedFiles pages through Waiting records of a category by id
func (s *SQLiteStorage) ListUnindexedFiles(ctx context.Context, category types.FileCategory, afterID int64, limit int) ([]*types.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumnsNoContent+` FROM files
		WHERE id > ? AND content_status = ? AND category = ?
		ORDER BY id ASC LIMIT ?`,
		afterID, int(types.StatusWaiting), int(category), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unindexed files: %w", err)
	}
	return collectFiles(rows)
}

// CountUnindexedFiles counts Waiting records of a category
func (s *SQLiteStorage) CountUnindexedFiles(ctx context.Context, category types.FileCategory) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE content_status = ? AND category = ?",
		int(types.StatusWaiting), int(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unindexed files: %w", err)
	}
	return n, nil
}

// UpdateFileContent stores extracted content and refreshed metadata
func (s *SQLiteStorage) UpdateFileContent(ctx context.Context, fileID int64, content string, meta types.FileMetadata) error {
	metaJSON, err := encodeMetadata(meta)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET content = ?, metadata = ?, updated_at = ? WHERE id = ?",
		content, metaJSON, toMillis(time.Now()), fileID)
	if err != nil {
		return fmt.Errorf("failed to update file content: %w", err)
	}
	return expectRow(result)
}

// UpdateContentStatus sets the content state machine
func (s *SQLiteStorage) UpdateContentStatus(ctx context.Context, fileID int64, status types.IndexStatus, msg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET content_status = ?, content_status_msg = ?, updated_at = ? WHERE id = ?",
		int(status), msg, toMillis(time.Now()), fileID)
	if err != nil {
		return fmt.Errorf("failed to update content status: %w", err)
	}
	return nil
}

// UpdateMetaStatus sets the metadata state machine
func (s *SQLiteStorage) UpdateMetaStatus(ctx context.Context, fileID int64, status types.IndexStatus, msg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET meta_status = ?, meta_status_msg = ?, updated_at = ? WHERE id = ?",
		int(status), msg, toMillis(time.Now()), fileID)
	if err != nil {
		return fmt.Errorf("failed to update meta status: %w", err)
	}
	return nil
}

// ResetIndexingStatus puts records left in Indexing by an interrupted run back
// to Waiting. Returns the number of records reset.
func (s *SQLiteStorage) ResetIndexingStatus(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET content_status = ?, content_status_msg = '' WHERE content_status = ?",
		int(types.StatusWaiting), int(types.StatusIndexing))
	if err != nil {
		return 0, fmt.Errorf("failed to reset indexing status: %w", err)
	}
	return result.RowsAffected()
}

// Directory operations

// dirPrefix returns dir with exactly one trailing separator and its length in
// characters, as SQLite's substr counts them
func dirPrefix(dir string) (string, int) {
	prefix := strings.TrimRight(dir, string(os.PathSeparator)) + string(os.PathSeparator)
	return prefix, utf8.RuneCountInString(prefix)
}

// CountFilesByPrefix counts records located under dir
func (s *SQLiteStorage) CountFilesByPrefix(ctx context.Context, dir string) (int64, error) {
	if dir == "" {
		return 0, nil
	}
	prefix, n := dirPrefix(dir)
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE substr(path, 1, ?) = ?", n, prefix).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files by prefix: %w", err)
	}
	return count, nil
}

// DeleteFilesByPrefix removes every record under dir with its embeddings
func (s *SQLiteStorage) DeleteFilesByPrefix(ctx context.Context, dir string) (int64, error) {
	if dir == "" {
		return 0, nil
	}
	prefix, n := dirPrefix(dir)
	var deleted int64
	err := s.withTx(ctx, func(q querier) error {
		sub := "SELECT id FROM files WHERE substr(path, 1, ?) = ?"
		if _, err := q.ExecContext(ctx, "DELETE FROM content_embeddings WHERE file_id IN ("+sub+")", n, prefix); err != nil {
			return fmt.Errorf("failed to delete content embeddings: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM metadata_embeddings WHERE file_id IN ("+sub+")", n, prefix); err != nil {
			return fmt.Errorf("failed to delete metadata embeddings: %w", err)
		}
		result, err := q.ExecContext(ctx, "DELETE FROM files WHERE substr(path, 1, ?) = ?", n, prefix)
		if err != nil {
			return fmt.Errorf("failed to delete files: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// ReplacePathPrefix rewrites the paths of every record under oldDir so they
// sit under newDir
func (s *SQLiteStorage) ReplacePathPrefix(ctx context.Context, oldDir, newDir string) (int64, error) {
	if oldDir == "" || newDir == "" {
		return 0, nil
	}
	oldPrefix, n := dirPrefix(oldDir)
	newPrefix, _ := dirPrefix(newDir)
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET path = ? || substr(path, ?), updated_at = ? WHERE substr(path, 1, ?) = ?",
		newPrefix, n+1, toMillis(time.Now()), n, oldPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to replace path prefix: %w", err)
	}
	return result.RowsAffected()
}

// Path cache feeds

// ListPaths pages through all records by id
func (s *SQLiteStorage) ListPaths(ctx context.Context, afterID int64, limit int) ([]types.PathEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, name, category FROM files WHERE id > ? ORDER BY id ASC LIMIT ?", afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	return collectPaths(rows)
}

// ListPathsUpdatedSince returns records written at or after since
func (s *SQLiteStorage) ListPathsUpdatedSince(ctx context.Context, since time.Time) ([]types.PathEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, name, category FROM files WHERE updated_at >= ? ORDER BY id ASC", toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list updated paths: %w", err)
	}
	return collectPaths(rows)
}

func collectPaths(rows *sql.Rows) ([]types.PathEntry, error) {
	defer func() { _ = rows.Close() }()
	entries := make([]types.PathEntry, 0)
	for rows.Next() {
		var e types.PathEntry
		var category int
		if err := rows.Scan(&e.ID, &e.Path, &e.Name, &category); err != nil {
			return nil, err
		}
		e.Category = types.FileCategory(category)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Helpers

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, os.PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}
