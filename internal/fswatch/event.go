package fswatch

import "fmt"

// Kind is the type of a normalized filesystem event. Declaration order is
// merge precedence: a later kind overrides an earlier one.
type Kind int

const (
	KindOther Kind = iota
	KindModify
	KindCreate
	KindRename
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindModify:
		return "modify"
	case KindCreate:
		return "create"
	case KindRename:
		return "rename"
	case KindRemove:
		return "remove"
	default:
		return "other"
	}
}

// Event is a normalized filesystem change. For renames Path is the old path
// and To the new one.
type Event struct {
	Kind   Kind
	Path   string
	To     string
	IsFile bool
}

func (e Event) String() string {
	if e.Kind == KindRename {
		return fmt.Sprintf("rename %s -> %s", e.Path, e.To)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}

// Merge combines two events for the same key. The higher-precedence kind
// wins; on a tie b replaces a.
func Merge(a, b Event) Event {
	if b.Kind >= a.Kind {
		return b
	}
	return a
}

// RawOp is the operation reported by the platform watcher before
// normalization
type RawOp int

const (
	RawOther RawOp = iota
	RawCreate
	RawModify
	RawRemove
	RawRenameFrom
	RawRenameTo
	RawRenameBoth
)

// Hint is what the platform watcher knows about the kind of path
type Hint int

const (
	HintUnknown Hint = iota
	HintFile
	HintDir
)

// RawEvent is an unnormalized platform event. RawRenameBoth carries the old
// and new path, every other op one or more affected paths.
type RawEvent struct {
	Op    RawOp
	Paths []string
	Hint  Hint
}
