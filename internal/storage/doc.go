// Package storage provides SQLite-based persistence for the file registry.
//
// # Database Schema
//
// Tables:
//   - files: one row per discovered file, with extracted content, metadata
//     JSON and the content/metadata indexing status
//   - content_embeddings: one row per embedded text chunk
//   - metadata_embeddings: at most one row per file
//   - indexing_tasks: bookkeeping for each indexing run
//
// Times are stored as unix milliseconds. Embeddings are 384 float32 values
// encoded little-endian (1536 bytes); see EncodeVector and DecodeVector.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(filepath.Join(home, "filesift.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := &types.FileRecord{Path: "/home/u/notes.md", Hash: hash, ...}
//	if err := store.CreateFile(ctx, rec); err != nil {
//	    return err
//	}
//
// Deleting a file removes its embeddings in the same transaction. Directory
// operations (CountFilesByPrefix, DeleteFilesByPrefix, ReplacePathPrefix)
// match on "dir" plus a path separator, so /a/b never matches /a/bc.
//
// # Migrations
//
// NewSQLiteStorage applies pending migrations, each in its own transaction.
// SchemaVersion reports the applied version; a database written by a newer
// build is refused rather than downgraded.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 with the sqlite-vec extension
//
//   - Distance and filtering run in SQL via vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite
//
//   - Vectors are decoded and ranked in Go; malformed rows are skipped
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
