// Package fswatch keeps the index in step with the filesystem.
//
// Notifications flow through three stages:
//
//  1. Translate maps fsnotify events onto a small raw vocabulary. fsnotify
//     reports a rename as two events (Rename on the old path, Create on the
//     new one), which become RawRenameFrom and RawRenameTo.
//  2. The Normalizer pairs split renames that arrive within the rename window
//     and decides whether each path is a file or a directory. An old path
//     left unpaired is emitted as a Remove.
//  3. The Debouncer coalesces events per path for the debounce window using
//     the precedence Remove > Rename > Create > Modify > Other.
//
// Drained events are handed to a Dispatcher. Removals and renames run in
// order on the debounce goroutine; indexing of new and modified content runs
// on a bounded worker pool.
//
// Watched roots are persisted through config.SettingsStore. A directory root
// is watched recursively, skipping the directories a scan would skip. A file
// root is watched through its parent directory and events for its siblings
// are ignored.
package fswatch
