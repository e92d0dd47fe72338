package scanner

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"

	"github.com/dshills/filesift/internal/storage"
	"github.com/dshills/filesift/pkg/types"
)

// hashBufferSize is the read buffer used while hashing
const hashBufferSize = 8192

// Outcome is what Resolve did with a file
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// FileInfo is the on-disk state of a candidate file
type FileInfo struct {
	Path       string
	Name       string
	Ext        string
	Category   types.FileCategory
	Size       int64
	Hash       string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Metadata   types.FileMetadata
}

// millis drops precision below what the registry stores
func millis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli())
}

// Attributes describes a file mode the way the metadata sentence expects
func Attributes(name string, mode os.FileMode) []string {
	var attrs []string
	if mode.Perm()&0o200 == 0 {
		attrs = append(attrs, "Read only")
	}
	if isHidden(name) {
		attrs = append(attrs, "Hidden")
	}
	if mode.IsDir() {
		attrs = append(attrs, "Directory")
	}
	if len(attrs) == 0 {
		attrs = append(attrs, "Normal")
	}
	return attrs
}

// Stat collects size, times and metadata of path without hashing it
func Stat(path string) (*FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", types.ErrUnsupported, path)
	}

	modified := millis(fi.ModTime())
	created := modified
	if ts, err := times.Stat(path); err == nil && ts.HasBirthTime() {
		created = millis(ts.BirthTime())
	}

	name := filepath.Base(path)
	ext := types.ExtOf(name)
	category := types.CategoryForExt(ext)
	return &FileInfo{
		Path:       path,
		Name:       name,
		Ext:        ext,
		Category:   category,
		Size:       fi.Size(),
		CreatedAt:  created,
		ModifiedAt: modified,
		Metadata: types.FileMetadata{
			Name:       name,
			Ext:        ext,
			Category:   category,
			Size:       fi.Size(),
			CreatedAt:  created,
			ModifiedAt: modified,
			Attributes: Attributes(name, fi.Mode()),
		},
	}, nil
}

// HashFile returns the hex MD5 of the file contents
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, hashBufferSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Inspect stats and hashes path
func Inspect(path string) (*FileInfo, error) {
	info, err := Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Hash, err = HashFile(path); err != nil {
		return nil, err
	}
	return info, nil
}

func newRecord(info *FileInfo) *types.FileRecord {
	return &types.FileRecord{
		Name:           info.Name,
		Path:           info.Path,
		Category:       info.Category,
		Metadata:       info.Metadata,
		Hash:           info.Hash,
		Ext:            info.Ext,
		Size:           info.Size,
		FileCreatedAt:  info.CreatedAt,
		FileModifiedAt: info.ModifiedAt,
		ContentStatus:  types.StatusWaiting,
		MetaStatus:     types.StatusWaiting,
	}
}

func lookup(rec *types.FileRecord, err error) (*types.FileRecord, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Resolve reconciles one inspected file with the registry.
//
// A record with the same hash wins: it is left alone while invalid or being
// indexed, left alone when already indexed and neither moved nor modified
// since, and otherwise moved onto the file and queued again. A record with the
// same hash at another path that still exists is a copy, not a move, and is
// ignored. Failing a hash match, a record at the same path is refreshed and
// queued again. Anything else is inserted as Waiting.
//
// Copies can share a hash; the hash lookup takes the most recently updated
// record.
func Resolve(ctx context.Context, store storage.Storage, info *FileInfo) (*types.FileRecord, Outcome, error) {
	rec, err := lookup(store.GetFileByHash(ctx, info.Hash))
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	if rec != nil && rec.Path != info.Path {
		if _, statErr := os.Stat(rec.Path); statErr == nil {
			rec = nil
		}
	}
	if rec == nil {
		if rec, err = lookup(store.GetFileByPath(ctx, info.Path)); err != nil {
			return nil, OutcomeUnchanged, err
		}
		if rec != nil && rec.Hash != info.Hash {
			return refreshByPath(ctx, store, rec, info)
		}
	}
	if rec == nil {
		rec = newRecord(info)
		if err := store.CreateFile(ctx, rec); err != nil {
			return nil, OutcomeUnchanged, err
		}
		return rec, OutcomeInserted, nil
	}
	return refreshByHash(ctx, store, rec, info)
}

func refreshByHash(ctx context.Context, store storage.Storage, rec *types.FileRecord, info *FileInfo) (*types.FileRecord, Outcome, error) {
	if rec.IsInvalid || rec.ContentStatus == types.StatusIndexing {
		return rec, OutcomeUnchanged, nil
	}
	samePath := rec.Path == info.Path
	switch {
	case rec.ContentStatus == types.StatusIndexed && samePath && !rec.FileModifiedAt.Before(info.ModifiedAt):
		return rec, OutcomeUnchanged, nil
	case rec.ContentStatus == types.StatusWaiting && samePath && rec.FileModifiedAt.Equal(info.ModifiedAt):
		return rec, OutcomeUnchanged, nil
	}

	rec.Category = info.Category
	rec.Path = info.Path
	rec.Name = info.Name
	rec.Ext = info.Ext
	rec.Metadata = info.Metadata
	rec.FileModifiedAt = info.ModifiedAt
	rec.ContentStatus = types.StatusWaiting
	rec.MetaStatus = types.StatusWaiting
	if err := store.UpdateFile(ctx, rec); err != nil {
		return nil, OutcomeUnchanged, err
	}
	return rec, OutcomeUpdated, nil
}

func refreshByPath(ctx context.Context, store storage.Storage, rec *types.FileRecord, info *FileInfo) (*types.FileRecord, Outcome, error) {
	id, createdAt := rec.ID, rec.CreatedAt
	*rec = *newRecord(info)
	rec.ID = id
	rec.CreatedAt = createdAt
	if err := store.UpdateFile(ctx, rec); err != nil {
		return nil, OutcomeUnchanged, err
	}
	return rec, OutcomeUpdated, nil
}
