package watcher

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"respawn/internal/logging"
	"respawn/internal/metrics"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	defaultEventBuffer = 64
	defaultErrorBuffer = 8
	maxRestoreAttempts = 3
	restoreBaseDelay   = 200 * time.Millisecond
	errorReportRate    = rate.Limit(1)
	errorReportBurst   = 5
)

type SourceOptions struct {
	Logger *logging.Logger
	Filter *Filter
	// RestoreAttempts bounds how often a vanished root is re-registered
	// before it is given up. Zero means maxRestoreAttempts.
	RestoreAttempts int
	RestoreDelay    time.Duration
	// Metrics counts errors held back by rate limiting. Optional.
	Metrics *metrics.Registry
}

// FSSource is the fsnotify-backed Source. Directory roots are watched
// recursively; directories created later are picked up as they appear.
type FSSource struct {
	watcher *fsnotify.Watcher
	filter  *Filter
	logger  *logging.Logger

	mutex    sync.Mutex
	roots    map[string]Root
	active   map[string]bool
	restores map[string]*restoreState
	closed   bool

	events    chan RawEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	restoreAttempts int
	restoreDelay    time.Duration
	errorLimiter    *rate.Limiter
	suppressed      atomic.Uint64
	metrics         *metrics.Registry
}

// NewFSSource subscribes to every root. Any registration failure at this
// point is returned as a fatal *WatchError and nothing is left running.
func NewFSSource(roots []Root, options SourceOptions) (*FSSource, error) {
	if len(roots) == 0 {
		return nil, &WatchError{Err: errors.New("no paths to watch"), Fatal: true}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchError{Err: err, Fatal: true}
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	attempts := options.RestoreAttempts
	if attempts <= 0 {
		attempts = maxRestoreAttempts
	}
	delay := options.RestoreDelay
	if delay <= 0 {
		delay = restoreBaseDelay
	}

	source := &FSSource{
		watcher:         fsw,
		filter:          options.Filter,
		logger:          logger.With(map[string]string{"component": "watcher"}),
		roots:           make(map[string]Root, len(roots)),
		active:          make(map[string]bool, len(roots)),
		restores:        make(map[string]*restoreState),
		events:          make(chan RawEvent, defaultEventBuffer),
		errors:          make(chan error, defaultErrorBuffer),
		done:            make(chan struct{}),
		restoreAttempts: attempts,
		restoreDelay:    delay,
		errorLimiter:    rate.NewLimiter(errorReportRate, errorReportBurst),
		metrics:         options.Metrics,
	}

	for _, root := range roots {
		root.Path = filepath.Clean(root.Path)
		source.roots[root.Path] = root
		count, err := source.addRoot(root)
		if err != nil {
			_ = fsw.Close()
			return nil, &WatchError{Path: root.Path, Err: err, Fatal: true}
		}
		source.active[root.Path] = true
		source.logger.Debug("watching", map[string]string{
			"path":        root.Path,
			"directories": strconv.Itoa(count),
		})
	}

	source.wg.Add(1)
	go source.run()
	return source, nil
}

func (source *FSSource) Events() <-chan RawEvent {
	return source.events
}

func (source *FSSource) Errors() <-chan error {
	return source.errors
}

// Close stops event delivery and releases the fsnotify watcher. It is safe to
// call more than once.
func (source *FSSource) Close() error {
	if source == nil {
		return nil
	}
	var closeErr error
	source.closeOnce.Do(func() {
		source.mutex.Lock()
		source.closed = true
		for _, state := range source.restores {
			state.stop()
		}
		source.mutex.Unlock()

		close(source.done)
		closeErr = source.watcher.Close()
		source.wg.Wait()
		source.logSuppressed()
	})
	return closeErr
}

func (source *FSSource) run() {
	defer source.wg.Done()
	for {
		select {
		case event, ok := <-source.watcher.Events:
			if !ok {
				return
			}
			source.handleEvent(event)
		case err, ok := <-source.watcher.Errors:
			if !ok {
				return
			}
			source.handleError(err)
		case <-source.done:
			return
		}
	}
}

func (source *FSSource) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if event.Op == fsnotify.Chmod {
		// Metadata-only; content is unchanged.
		return
	}
	kind := kindOf(event.Op)

	if kind == KindCreated {
		source.maybeAddDir(path)
	}
	if kind == KindRemoved || kind == KindRenamed {
		source.maybeLoseRoot(path)
	}
	if !source.filter.Allow(path) {
		source.logger.Debug("event ignored", map[string]string{
			"path": path,
			"kind": kind.String(),
		})
		return
	}
	source.logger.Debug("event", map[string]string{
		"path": path,
		"kind": kind.String(),
	})
	source.emit(RawEvent{Path: path, Kind: kind, ObservedAt: time.Now()})
}

func (source *FSSource) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		// Events were lost; assume something changed under every root.
		source.mutex.Lock()
		paths := make([]string, 0, len(source.roots))
		for path := range source.roots {
			paths = append(paths, path)
		}
		source.mutex.Unlock()
		for _, path := range paths {
			source.emit(RawEvent{Path: path, Kind: KindOther, ObservedAt: time.Now()})
		}
	}
	source.report(&WatchError{Err: err})
}

func (source *FSSource) emit(event RawEvent) {
	select {
	case source.events <- event:
	case <-source.done:
	}
}

// report delivers err to the consumer. Fatal errors are always delivered;
// others are rate limited so a flapping subscription cannot flood the log.
func (source *FSSource) report(err *WatchError) {
	if !err.Fatal && !source.errorLimiter.Allow() {
		source.suppressed.Add(1)
		source.metrics.IncWatchErrorsSuppressed()
		return
	}
	source.logSuppressed()
	select {
	case source.errors <- err:
	case <-source.done:
	}
}

// logSuppressed records how many errors were held back since the last one
// that got through.
func (source *FSSource) logSuppressed() {
	count := source.suppressed.Swap(0)
	if count == 0 {
		return
	}
	source.logger.Warn("watch errors suppressed", map[string]string{
		"suppressed": strconv.FormatUint(count, 10),
	})
}
