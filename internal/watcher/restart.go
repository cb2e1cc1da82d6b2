package watcher

import (
	"fmt"
	"strconv"
	"time"
)

type restoreState struct {
	attempts int
	timer    *time.Timer
	gaveUp   bool
}

func (state *restoreState) stop() {
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
}

func restoreDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// maybeLoseRoot handles the removal or rename of a root itself. The root is
// dropped and re-registration is retried with backoff.
func (source *FSSource) maybeLoseRoot(path string) {
	source.mutex.Lock()
	if source.closed || !source.active[path] {
		source.mutex.Unlock()
		return
	}
	source.active[path] = false
	source.mutex.Unlock()

	// fsnotify drops the watch of a deleted path on its own; a renamed file
	// keeps it on the old inode, so remove it explicitly.
	_ = source.watcher.Remove(path)

	source.logger.Warn("watched path lost", map[string]string{"path": path})
	source.report(&WatchError{Path: path, Err: ErrRootLost})
	source.scheduleRestore(path)
}

func (source *FSSource) scheduleRestore(path string) {
	source.mutex.Lock()
	if source.closed {
		source.mutex.Unlock()
		return
	}
	state := source.restores[path]
	if state == nil {
		state = &restoreState{}
		source.restores[path] = state
	}
	if state.timer != nil {
		source.mutex.Unlock()
		return
	}
	if state.attempts >= source.restoreAttempts {
		state.gaveUp = true
		fatal := source.allLostLocked()
		attempts := state.attempts
		source.mutex.Unlock()

		source.logger.Error("giving up on watched path", map[string]string{
			"path":     path,
			"attempts": strconv.Itoa(attempts),
		})
		err := fmt.Errorf("%w after %d attempts to re-register", ErrRootLost, attempts)
		source.report(&WatchError{Path: path, Err: err, Fatal: fatal})
		return
	}
	delay := restoreDelay(source.restoreDelay, state.attempts)
	state.attempts++
	state.timer = time.AfterFunc(delay, func() {
		source.restore(path)
	})
	source.mutex.Unlock()
}

func (source *FSSource) restore(path string) {
	source.mutex.Lock()
	if source.closed {
		source.mutex.Unlock()
		return
	}
	root := source.roots[path]
	if state := source.restores[path]; state != nil {
		state.timer = nil
	}
	source.mutex.Unlock()

	if isDirectory(path) != root.IsDir {
		source.scheduleRestore(path)
		return
	}
	if _, err := source.addRoot(root); err != nil {
		source.logger.Debug("watch restore failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		source.scheduleRestore(path)
		return
	}

	source.mutex.Lock()
	if source.closed {
		source.mutex.Unlock()
		return
	}
	source.active[path] = true
	delete(source.restores, path)
	source.mutex.Unlock()

	source.logger.Info("watched path restored", map[string]string{"path": path})
	source.emit(RawEvent{Path: path, Kind: KindCreated, ObservedAt: time.Now()})
}

// allLostLocked reports whether no root is active and none is still being
// retried.
func (source *FSSource) allLostLocked() bool {
	for path := range source.roots {
		if source.active[path] {
			return false
		}
		if state := source.restores[path]; state == nil || !state.gaveUp {
			return false
		}
	}
	return true
}
