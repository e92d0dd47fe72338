package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// IndexStatus tracks a single indexing state machine on a FileRecord.
// Content and metadata each carry their own status.
type IndexStatus int

const (
	StatusWaiting     IndexStatus = 1
	StatusIndexing    IndexStatus = 2
	StatusIndexed     IndexStatus = 3
	StatusIndexFailed IndexStatus = 4
)

func (s IndexStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusIndexing:
		return "indexing"
	case StatusIndexed:
		return "indexed"
	case StatusIndexFailed:
		return "index_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FileCategory classifies a file by extension.
type FileCategory int

const (
	CategoryDocument FileCategory = 1
	CategoryImage    FileCategory = 2
	CategoryAudio    FileCategory = 3
	CategoryVideo    FileCategory = 4
	CategoryOther    FileCategory = 5
)

func (c FileCategory) String() string {
	switch c {
	case CategoryDocument:
		return "document"
	case CategoryImage:
		return "image"
	case CategoryAudio:
		return "audio"
	case CategoryVideo:
		return "video"
	default:
		return "other"
	}
}

var categoryByExt = map[string]FileCategory{}

func init() {
	register := func(c FileCategory, exts ...string) {
		for _, ext := range exts {
			categoryByExt[ext] = c
		}
	}
	register(CategoryDocument,
		"docx",
		"xlsx", "xls", "xlsm", "xlsb", "xla", "xlam", "ods",
		"odp", "odt", "pdf", "pptx",
		"txt", "log", "md", "mdx", "ini")
	register(CategoryImage, "jpg", "jpeg", "png", "gif", "webp")
	register(CategoryAudio, "mp3", "wav", "aac", "flac", "ogg", "m4a", "wma", "amr")
	register(CategoryVideo, "mp4", "avi", "mov", "mkv")
}

// CategoryForExt returns the category for a file extension.
// The extension may be given with or without a leading dot, in any case.
func CategoryForExt(ext string) FileCategory {
	ext = NormalizeExt(ext)
	if c, ok := categoryByExt[ext]; ok {
		return c
	}
	return CategoryOther
}

// NormalizeExt lowercases an extension and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized extension of a path ("" when there is none).
func ExtOf(path string) string {
	return NormalizeExt(filepath.Ext(path))
}

// FileRecord is one indexed filesystem entry.
type FileRecord struct {
	ID       int64
	Name     string
	Path     string
	Category FileCategory
	Content  string
	Metadata FileMetadata
	Hash     string // hex MD5 of the file contents
	Ext      string
	Size     int64

	// Filesystem times
	FileCreatedAt  time.Time
	FileModifiedAt time.Time

	IsInvalid     bool
	InvalidReason string

	ContentStatus    IndexStatus
	ContentStatusMsg string
	MetaStatus       IndexStatus
	MetaStatusMsg    string

	// Record times
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileMetadata is the structured description of a file that gets embedded
// alongside its content.
type FileMetadata struct {
	Name       string       `json:"name"`
	Ext        string       `json:"ext"`
	Category   FileCategory `json:"category"`
	Size       int64        `json:"size"`
	CreatedAt  time.Time    `json:"created_at"`
	ModifiedAt time.Time    `json:"modified_at"`
	Author     string       `json:"author,omitempty"`
	Attributes []string     `json:"attributes,omitempty"`
}

const metadataTimeLayout = "2006-01-02 15:04:05"

// Text renders the metadata as the sentence used for the metadata embedding.
func (m FileMetadata) Text() string {
	return fmt.Sprintf(
		"file name:%s,file extension:%s,file category:%s,size:%d bytes,creation time:%s,last write time:%s,author:%s,file attributes:%s",
		m.Name,
		m.Ext,
		m.Category,
		m.Size,
		formatMetadataTime(m.CreatedAt),
		formatMetadataTime(m.ModifiedAt),
		m.Author,
		strings.Join(m.Attributes, ", "),
	)
}

func formatMetadataTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(metadataTimeLayout)
}

// PathEntry is the slice of a FileRecord kept by the in-memory path cache.
type PathEntry struct {
	ID       int64
	Path     string
	Name     string
	Category FileCategory
}
