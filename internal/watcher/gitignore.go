package watcher

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Gitignore matches paths against the rules of a single .gitignore file.
// It covers the common subset of the format: comments, negation, directory
// only rules, anchored rules and "**".
type Gitignore struct {
	root  string
	rules []gitRule
}

type gitRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// LoadGitignore reads the .gitignore at path; its directory becomes the
// base for relative matching.
func LoadGitignore(path string) (*Gitignore, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return ParseGitignore(root, file)
}

func ParseGitignore(root string, reader io.Reader) (*Gitignore, error) {
	ignore := &Gitignore{root: filepath.Clean(root)}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		rule, ok := parseGitRule(scanner.Text())
		if !ok {
			continue
		}
		// Patterns git would also fail to compile are skipped.
		if !doublestar.ValidatePattern(rule.pattern) {
			continue
		}
		ignore.rules = append(ignore.rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ignore, nil
}

func parseGitRule(line string) (gitRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return gitRule{}, false
	}
	rule := gitRule{}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		rule.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		rule.anchored = true
		line = strings.TrimLeft(line, "/")
	} else if strings.Contains(line, "/") {
		rule.anchored = true
	}
	if line == "" {
		return gitRule{}, false
	}
	rule.pattern = line
	return rule, true
}

func (rule gitRule) matches(rel string) bool {
	if rule.anchored {
		matched, err := doublestar.Match(rule.pattern, rel)
		return err == nil && matched
	}
	matched, err := doublestar.Match(rule.pattern, pathBase(rel))
	return err == nil && matched
}

// Ignored reports whether path, or any of its parents below the gitignore
// root, is excluded. Paths outside the root are never ignored.
func (ignore *Gitignore) Ignored(path string, isDir bool) bool {
	if ignore == nil || len(ignore.rules) == 0 {
		return false
	}
	rel, err := filepath.Rel(ignore.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for index := range segments {
		candidate := strings.Join(segments[:index+1], "/")
		candidateIsDir := index < len(segments)-1 || isDir
		if ignore.match(candidate, candidateIsDir) {
			return true
		}
	}
	return false
}

func (ignore *Gitignore) match(rel string, isDir bool) bool {
	ignored := false
	for _, rule := range ignore.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if rule.matches(rel) {
			ignored = !rule.negate
		}
	}
	return ignored
}

// Root returns the directory the rules are relative to.
func (ignore *Gitignore) Root() string {
	if ignore == nil {
		return ""
	}
	return ignore.root
}

// FindProjectGitignore walks up from start looking for a .gitignore. The
// search stops at the first directory containing .git or at the filesystem
// root. It returns nil without error when nothing is found.
func FindProjectGitignore(start string) (*Gitignore, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		candidate := filepath.Join(dir, ".gitignore")
		ignore, err := LoadGitignore(candidate)
		if err == nil {
			return ignore, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return nil, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func pathBase(rel string) string {
	if index := strings.LastIndex(rel, "/"); index >= 0 {
		return rel[index+1:]
	}
	return rel
}
