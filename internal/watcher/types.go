package watcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a raw filesystem notification.
type Kind int

const (
	KindOther Kind = iota
	KindCreated
	KindModified
	KindRemoved
	KindRenamed
)

func (kind Kind) String() string {
	switch kind {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	case KindRenamed:
		return "renamed"
	default:
		return "other"
	}
}

// kindOf maps an fsnotify op to a Kind. fsnotify may set several bits on one
// event; structural changes win over content changes.
func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreated
	case op.Has(fsnotify.Remove):
		return KindRemoved
	case op.Has(fsnotify.Rename):
		return KindRenamed
	case op.Has(fsnotify.Write):
		return KindModified
	default:
		return KindOther
	}
}

// RawEvent is a single low-level change notification.
type RawEvent struct {
	Path       string
	Kind       Kind
	ObservedAt time.Time
}

// ChangeBatch is one logical "something changed" trigger. Paths are distinct
// and sorted; Events counts the raw notifications folded into the batch.
type ChangeBatch struct {
	TriggeredAt time.Time
	Paths       []string
	Events      int
}

// Root is one entry of the watch set. Directory roots are watched
// recursively, file roots directly.
type Root struct {
	Path  string
	IsDir bool
}

// Source is a stream of raw change notifications.
type Source interface {
	Events() <-chan RawEvent
	Errors() <-chan error
	Close() error
}

var ErrRootLost = errors.New("watched path is gone")

// WatchError reports a failure of the underlying subscription. Fatal errors
// mean the source can no longer observe anything.
type WatchError struct {
	Path  string
	Err   error
	Fatal bool
}

func (err *WatchError) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("watch: %v", err.Err)
	}
	return fmt.Sprintf("watch %s: %v", err.Path, err.Err)
}

func (err *WatchError) Unwrap() error {
	return err.Err
}
