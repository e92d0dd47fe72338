//go:build purego || !sqlite_vec

package storage

// Without the sqlite_vec tag the pure Go driver is used and vector
// distance is computed in Go (see vector_ops.go).

import (
	"net/url"

	_ "modernc.org/sqlite"
)

const (
	DriverName               = "sqlite"
	VectorExtensionAvailable = false
	BuildMode                = "purego"
)

// dataSourceName sets pragmas through modernc's _pragma parameters so
// every pooled connection gets them.
func dataSourceName(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}
