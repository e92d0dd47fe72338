//go:build sqlite_vec && !purego

package storage

// Built with CGO_ENABLED=1 -tags sqlite_vec: mattn/go-sqlite3 with the
// sqlite-vec extension auto-loaded, so vec_distance_cosine runs in SQLite.

import (
	"net/url"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverName               = "sqlite3"
	VectorExtensionAvailable = true
	BuildMode                = "cgo"
)

func init() {
	sqlite_vec.Auto()
}

// dataSourceName uses mattn's underscore-prefixed connection parameters.
func dataSourceName(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}
