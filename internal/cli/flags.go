// Package cli holds the command-line surface of respawn: the flag set and the
// validation of the positional "<path>... -- <command>" arguments.
package cli

import (
	"fmt"
	"strings"
	"time"

	"respawn/internal/logging"

	"github.com/spf13/pflag"
)

const (
	WatchErrorContinue = "continue"
	WatchErrorAbort    = "abort"
)

// Flags collects every option accepted before the "--" separator.
type Flags struct {
	Verbose         bool
	LogLevel        string
	Debounce        time.Duration
	MaxWait         time.Duration
	Grace           time.Duration
	Signal          string
	Clear           bool
	Ignore          []string
	Extensions      []string
	NoDefaultIgnore bool
	NoProjectIgnore bool
	OnWatchError    string
}

func AddFlags(fs *pflag.FlagSet) *Flags {
	flags := &Flags{}
	if fs == nil {
		return flags
	}
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "log every filesystem event and lifecycle step (same as --log-level=debug)")
	fs.StringVar(&flags.LogLevel, "log-level", "info", "minimum level of respawn's own log records: debug, info, warn or error")
	fs.DurationVarP(&flags.Debounce, "debounce", "d", 100*time.Millisecond, "quiet period after the last change before restarting")
	fs.DurationVar(&flags.MaxWait, "max-wait", 0, "upper bound on how long a continuous stream of changes can delay a restart (0 disables)")
	fs.DurationVar(&flags.Grace, "grace", 5*time.Second, "time the command gets to exit after the stop signal before it is killed")
	fs.StringVarP(&flags.Signal, "signal", "s", "SIGTERM", "signal used to stop the command: SIGTERM, SIGINT, SIGHUP or SIGQUIT")
	fs.BoolVarP(&flags.Clear, "clear", "L", false, "clear the terminal before each run")
	fs.StringArrayVarP(&flags.Ignore, "ignore", "i", nil, "ignore paths matching this glob (repeatable)")
	fs.StringSliceVarP(&flags.Extensions, "exts", "e", nil, "only react to files with these extensions (comma separated)")
	fs.BoolVar(&flags.NoDefaultIgnore, "no-default-ignore", false, "do not apply the built-in ignore globs")
	fs.BoolVar(&flags.NoProjectIgnore, "no-project-ignore", false, "do not load the project .gitignore")
	fs.StringVar(&flags.OnWatchError, "on-watch-error", WatchErrorContinue, "what to do when a watched path fails: continue or abort")
	return flags
}

// Validate checks values the flag parser cannot.
func (flags *Flags) Validate() error {
	if flags.Debounce <= 0 {
		return fmt.Errorf("--debounce must be positive, got %s", flags.Debounce)
	}
	if flags.MaxWait < 0 {
		return fmt.Errorf("--max-wait must not be negative, got %s", flags.MaxWait)
	}
	if flags.MaxWait > 0 && flags.MaxWait < flags.Debounce {
		return fmt.Errorf("--max-wait (%s) must not be shorter than --debounce (%s)", flags.MaxWait, flags.Debounce)
	}
	if flags.Grace <= 0 {
		return fmt.Errorf("--grace must be positive, got %s", flags.Grace)
	}
	if _, ok := logging.ParseLevel(flags.LogLevel); !ok {
		return fmt.Errorf("--log-level must be debug, info, warn or error, got %q", flags.LogLevel)
	}
	switch flags.WatchErrorPolicy() {
	case WatchErrorContinue, WatchErrorAbort:
	default:
		return fmt.Errorf("--on-watch-error must be %q or %q, got %q", WatchErrorContinue, WatchErrorAbort, flags.OnWatchError)
	}
	return nil
}

// Level is the logger threshold; --verbose wins over --log-level.
func (flags *Flags) Level() logging.Level {
	if flags.Verbose {
		return logging.LevelDebug
	}
	level, ok := logging.ParseLevel(flags.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

// WatchErrorPolicy returns --on-watch-error in canonical form.
func (flags *Flags) WatchErrorPolicy() string {
	return strings.ToLower(strings.TrimSpace(flags.OnWatchError))
}

// NormalizedExtensions strips leading dots and empty entries.
func (flags *Flags) NormalizedExtensions() []string {
	out := make([]string, 0, len(flags.Extensions))
	for _, ext := range flags.Extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		out = append(out, ext)
	}
	return out
}
