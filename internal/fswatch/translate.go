package fswatch

import "github.com/fsnotify/fsnotify"

// Translate maps an fsnotify event onto the raw vocabulary. fsnotify reports
// a rename as Rename on the old path followed by Create on the new one, so a
// Create that matches a pending old path becomes RawRenameTo.
func Translate(ev fsnotify.Event, n *Normalizer) RawEvent {
	paths := []string{ev.Name}
	switch {
	case ev.Has(fsnotify.Create):
		if n != nil && n.PendingMatch(ev.Name) {
			return RawEvent{Op: RawRenameTo, Paths: paths}
		}
		return RawEvent{Op: RawCreate, Paths: paths}
	case ev.Has(fsnotify.Remove):
		return RawEvent{Op: RawRemove, Paths: paths}
	case ev.Has(fsnotify.Rename):
		return RawEvent{Op: RawRenameFrom, Paths: paths}
	case ev.Has(fsnotify.Write):
		return RawEvent{Op: RawModify, Paths: paths}
	default:
		return RawEvent{Op: RawOther, Paths: paths}
	}
}
