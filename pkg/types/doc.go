// Package types provides shared type definitions for filesift.
//
// This package defines the domain types used across components: file records
// and their indexing state machines, indexing tasks and progress events, and
// search results.
//
// # File Records
//
// FileRecord is one indexed filesystem entry. It carries two independent
// status state machines, one for content and one for metadata:
//
//	rec := &types.FileRecord{
//	    Path:          "/home/me/notes/meeting.md",
//	    Category:      types.CategoryForExt("md"),
//	    ContentStatus: types.StatusWaiting,
//	    MetaStatus:    types.StatusWaiting,
//	}
//
// FileMetadata.Text renders the sentence that is embedded as the file's
// metadata vector.
//
// # Indexing Runs
//
// IndexingTask is persisted once per run. ProgressEvent values are emitted while
// a run is in flight and carry the task id and a human readable message.
//
// # Search
//
// SearchResult is produced by both the path engine and the semantic engine.
// Scores are always higher-is-better so that hybrid fusion can combine them.
package types
