package watcher

import (
	"io/fs"
	"path/filepath"
)

// addRoot registers root with fsnotify and returns the number of watches
// added. A failure on the root itself is returned; unreadable or failing
// descendants are logged and skipped.
func (source *FSSource) addRoot(root Root) (int, error) {
	if !root.IsDir {
		if err := source.watcher.Add(root.Path); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err := source.watcher.Add(root.Path); err != nil {
		return 0, err
	}
	return 1 + source.addTree(root.Path, false), nil
}

// addTree registers every non-skipped directory below dir, and dir itself
// when includeSelf is set.
func (source *FSSource) addTree(dir string, includeSelf bool) int {
	added := 0
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			source.logger.Warn("skipping unreadable path", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path == dir && !includeSelf {
			return nil
		}
		if source.filter.SkipDir(path) {
			return filepath.SkipDir
		}
		if err := source.watcher.Add(path); err != nil {
			source.logger.Warn("watch add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		added++
		return nil
	})
	return added
}

// maybeAddDir extends recursive watches to a directory created under an
// active directory root.
func (source *FSSource) maybeAddDir(path string) {
	if !isDirectory(path) {
		return
	}
	source.mutex.Lock()
	if source.closed {
		source.mutex.Unlock()
		return
	}
	covered := false
	for rootPath, root := range source.roots {
		if root.IsDir && source.active[rootPath] && rootPath != path && isWithinPath(rootPath, path) {
			covered = true
			break
		}
	}
	source.mutex.Unlock()
	if !covered {
		return
	}
	if added := source.addTree(path, true); added > 0 {
		source.logger.Debug("watch extended", map[string]string{"path": path})
	}
}
