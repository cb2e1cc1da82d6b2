package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"respawn/internal/process"
	"respawn/internal/watcher"
)

var (
	ErrMissingSeparator = errors.New("missing \"--\" between watch paths and command")
	ErrEmptyWatchSet    = errors.New("at least one path to watch is required before \"--\"")
	ErrEmptyCommand     = errors.New("a command to run is required after \"--\"")
)

// Invocation is the validated positional part of the command line.
type Invocation struct {
	Roots   []watcher.Root
	Command process.Command
}

// ParseInvocation splits args at the separator position reported by the flag
// parser (-1 when no "--" was given) and validates both halves.
func ParseInvocation(args []string, dashAt int) (Invocation, error) {
	if dashAt < 0 || dashAt > len(args) {
		return Invocation{}, ErrMissingSeparator
	}
	paths := args[:dashAt]
	command := args[dashAt:]
	if len(paths) == 0 {
		return Invocation{}, ErrEmptyWatchSet
	}
	if len(command) == 0 || command[0] == "" {
		return Invocation{}, ErrEmptyCommand
	}

	roots, err := ResolveWatchSet(paths)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Roots:   roots,
		Command: process.NewCommand(command[0], command[1:]...),
	}, nil
}

// ResolveWatchSet turns user supplied paths into absolute, deduplicated roots.
// Every path must exist.
func ResolveWatchSet(paths []string) ([]watcher.Root, error) {
	seen := make(map[string]struct{}, len(paths))
	roots := make([]watcher.Root, 0, len(paths))
	for _, raw := range paths {
		if strings.TrimSpace(raw) == "" {
			return nil, ErrEmptyWatchSet
		}
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolve watch path %q: %w", raw, err)
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("watch path %q: %w", raw, err)
		}
		seen[abs] = struct{}{}
		roots = append(roots, watcher.Root{Path: abs, IsDir: info.IsDir()})
	}
	if len(roots) == 0 {
		return nil, ErrEmptyWatchSet
	}
	return roots, nil
}
