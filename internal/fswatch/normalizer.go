package fswatch

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRenameWindow is how long a rename's old path waits for its new path
const DefaultRenameWindow = 300 * time.Millisecond

type pendingFrom struct {
	path   string
	isFile bool
	at     time.Time
}

// Normalizer pairs split rename notifications and classifies paths as files
// or directories. Unpaired old paths become removals once the window passes.
type Normalizer struct {
	mu      sync.Mutex
	window  time.Duration
	pending []pendingFrom
	stat    func(string) (os.FileInfo, error)
}

// NewNormalizer creates a normalizer with the given rename window
// (DefaultRenameWindow when zero)
func NewNormalizer(window time.Duration) *Normalizer {
	if window <= 0 {
		window = DefaultRenameWindow
	}
	return &Normalizer{window: window, stat: os.Stat}
}

// guessIsFile uses the hint, then the filesystem, then the path shape: a
// missing path with an extension is taken to be a file
func (n *Normalizer) guessIsFile(path string, hint Hint) bool {
	switch hint {
	case HintFile:
		return true
	case HintDir:
		return false
	}
	if fi, err := n.stat(path); err == nil {
		return !fi.IsDir()
	}
	return filepath.Ext(path) != ""
}

// expire must be called with mu held
func (n *Normalizer) expire(now time.Time) []Event {
	var out []Event
	keep := n.pending[:0]
	for _, p := range n.pending {
		if now.Sub(p.at) > n.window {
			out = append(out, Event{Kind: KindRemove, Path: p.path, IsFile: p.isFile})
			continue
		}
		keep = append(keep, p)
	}
	n.pending = keep
	return out
}

// Normalize turns one raw event into zero or more normalized events
func (n *Normalizer) Normalize(raw RawEvent, now time.Time) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.expire(now)
	switch raw.Op {
	case RawRenameBoth:
		if len(raw.Paths) >= 2 {
			out = append(out, Event{
				Kind:   KindRename,
				Path:   raw.Paths[0],
				To:     raw.Paths[1],
				IsFile: n.guessIsFile(raw.Paths[1], raw.Hint),
			})
		}
	case RawRenameFrom:
		for _, p := range raw.Paths {
			n.pending = append(n.pending, pendingFrom{path: p, isFile: n.guessIsFile(p, raw.Hint), at: now})
		}
	case RawRenameTo:
		for _, p := range raw.Paths {
			isFile := n.guessIsFile(p, raw.Hint)
			if len(n.pending) == 0 {
				out = append(out, Event{Kind: KindCreate, Path: p, IsFile: isFile})
				continue
			}
			from := n.pending[0]
			n.pending = n.pending[1:]
			out = append(out, Event{Kind: KindRename, Path: from.path, To: p, IsFile: isFile})
		}
	case RawCreate, RawModify, RawRemove:
		kind := KindModify
		switch raw.Op {
		case RawCreate:
			kind = KindCreate
		case RawRemove:
			kind = KindRemove
		}
		for _, p := range raw.Paths {
			out = append(out, Event{Kind: kind, Path: p, IsFile: n.guessIsFile(p, raw.Hint)})
		}
	default:
		for _, p := range raw.Paths {
			out = append(out, Event{Kind: KindOther, Path: p})
		}
	}
	return out
}

// Flush emits removals for old paths whose window has passed
func (n *Normalizer) Flush(now time.Time) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expire(now)
}

// PendingMatch reports whether a buffered old path shares path's parent
// directory or base name, meaning a create at path likely completes a rename
func (n *Normalizer) PendingMatch(path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	dir, base := filepath.Dir(path), filepath.Base(path)
	for _, p := range n.pending {
		if filepath.Dir(p.path) == dir || filepath.Base(p.path) == base {
			return true
		}
	}
	return false
}

// Pending returns the number of buffered old paths
func (n *Normalizer) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}
