package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnores are applied unless FilterOptions.NoDefaultIgnore is set:
// editor backups and swap files, macOS metadata and git internals.
var DefaultIgnores = []string{
	"*~",
	"*.swp",
	"*.swo",
	".DS_Store",
	".git",
}

type FilterOptions struct {
	Roots []Root
	// Ignore holds doublestar globs. A glob without "/" matches any single
	// path component; otherwise it matches the path relative to its root.
	Ignore          []string
	Extensions      []string
	NoDefaultIgnore bool
	Gitignore       *Gitignore
}

// Filter decides which event paths may trigger a restart.
type Filter struct {
	roots      []Root
	files      map[string]struct{}
	ignores    []string
	extensions map[string]struct{}
	gitignore  *Gitignore
}

func NewFilter(options FilterOptions) (*Filter, error) {
	filter := &Filter{
		roots:     options.Roots,
		files:     make(map[string]struct{}),
		gitignore: options.Gitignore,
	}
	for _, root := range options.Roots {
		if !root.IsDir {
			filter.files[filepath.Clean(root.Path)] = struct{}{}
		}
	}
	if !options.NoDefaultIgnore {
		filter.ignores = append(filter.ignores, DefaultIgnores...)
	}
	for _, pattern := range options.Ignore {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
		filter.ignores = append(filter.ignores, pattern)
	}
	if len(options.Extensions) > 0 {
		filter.extensions = make(map[string]struct{}, len(options.Extensions))
		for _, ext := range options.Extensions {
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
			if ext != "" {
				filter.extensions[ext] = struct{}{}
			}
		}
	}
	return filter, nil
}

// Allow reports whether a change at path should count. File roots are always
// allowed; everything else must survive the ignore globs, the extension
// allowlist and the gitignore, in that order.
func (filter *Filter) Allow(path string) bool {
	if filter == nil {
		return true
	}
	path = filepath.Clean(path)
	if _, ok := filter.files[path]; ok {
		return true
	}
	if filter.matchesIgnore(path) {
		return false
	}
	if len(filter.extensions) > 0 && !filter.matchesExtension(path) {
		return false
	}
	if filter.gitignore != nil && filter.gitignore.Ignored(path, isDirectory(path)) {
		return false
	}
	return true
}

// SkipDir reports whether a directory should not be descended into while
// registering recursive watches. The extension allowlist does not apply to
// directories.
func (filter *Filter) SkipDir(path string) bool {
	if filter == nil {
		return false
	}
	path = filepath.Clean(path)
	if filter.matchesIgnore(path) {
		return true
	}
	return filter.gitignore != nil && filter.gitignore.Ignored(path, true)
}

func (filter *Filter) matchesIgnore(path string) bool {
	if len(filter.ignores) == 0 {
		return false
	}
	rel := filter.relative(path)
	if rel == "" {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, pattern := range filter.ignores {
		if strings.Contains(pattern, "/") {
			if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
				return true
			}
			continue
		}
		for _, segment := range segments {
			if matched, err := doublestar.Match(pattern, segment); err == nil && matched {
				return true
			}
		}
	}
	return false
}

func (filter *Filter) matchesExtension(path string) bool {
	name := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" || ext == strings.TrimPrefix(name, ".") {
		// extensionless names and dot-files such as ".env" match on the
		// part after the leading dot.
		ext = strings.TrimPrefix(name, ".")
		if ext == name {
			return false
		}
	}
	_, ok := filter.extensions[ext]
	return ok
}

// relative returns path relative to the closest enclosing root, in slash
// form. A file root is reduced to its base name.
func (filter *Filter) relative(path string) string {
	best := ""
	for _, root := range filter.roots {
		base := filepath.Clean(root.Path)
		if !root.IsDir {
			base = filepath.Dir(base)
		}
		if !isWithinPath(base, path) {
			continue
		}
		if len(base) > len(best) {
			best = base
		}
	}
	if best == "" {
		return filepath.ToSlash(strings.TrimPrefix(path, string(os.PathSeparator)))
	}
	rel, err := filepath.Rel(best, path)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func isWithinPath(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
