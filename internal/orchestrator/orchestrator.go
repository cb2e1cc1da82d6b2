package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"respawn/internal/logging"
	"respawn/internal/metrics"
	"respawn/internal/process"
	"respawn/internal/watcher"
)

type WatchErrorPolicy string

const (
	// ContinueOnWatchError logs watch errors and keeps going until the
	// source reports that nothing can be watched any more.
	ContinueOnWatchError WatchErrorPolicy = "continue"
	// AbortOnWatchError ends the run on the first watch error.
	AbortOnWatchError WatchErrorPolicy = "abort"
)

// ErrWatchAborted wraps the watch error that ended a run.
var ErrWatchAborted = errors.New("watching aborted")

// Supervisor is the part of process.Supervisor the orchestrator drives.
type Supervisor interface {
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type Options struct {
	Source           watcher.Source
	Debounce         watcher.DebounceOptions
	Supervisor       Supervisor
	Logger           *logging.Logger
	WatchErrorPolicy WatchErrorPolicy
	// BeforeRun is called on the restart goroutine before every restart,
	// including the first.
	BeforeRun func()
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Registry
}

type Orchestrator struct {
	source     watcher.Source
	debounce   watcher.DebounceOptions
	supervisor Supervisor
	logger     *logging.Logger
	policy     WatchErrorPolicy
	beforeRun  func()
	metrics    *metrics.Registry
}

func New(options Options) (*Orchestrator, error) {
	if options.Source == nil {
		return nil, errors.New("orchestrator: source is required")
	}
	if options.Supervisor == nil {
		return nil, errors.New("orchestrator: supervisor is required")
	}
	policy := options.WatchErrorPolicy
	switch policy {
	case "":
		policy = ContinueOnWatchError
	case ContinueOnWatchError, AbortOnWatchError:
	default:
		return nil, fmt.Errorf("orchestrator: unknown watch error policy %q", policy)
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Orchestrator{
		source:     options.Source,
		debounce:   options.Debounce,
		supervisor: options.Supervisor,
		logger:     options.Logger,
		policy:     policy,
		beforeRun:  options.BeforeRun,
		metrics:    registry,
	}, nil
}

// Run starts the command, restarts it after every change batch and returns
// once ctx is cancelled and the child has been shut down. The source is
// closed before Run returns.
//
// A nil result means a clean shutdown. Otherwise the error is an aborted
// watch (ErrWatchAborted), an orphaned child (process.ErrOrphaned), or both
// joined together.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan watcher.ChangeBatch)
	dirty := make(chan struct{}, 1)
	fatal := make(chan error, 1)

	var wg sync.WaitGroup
	debouncer := watcher.NewDebouncer(o.debounce)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = debouncer.Run(runCtx, o.source.Events(), batches)
	}()
	go func() {
		defer wg.Done()
		o.restartLoop(runCtx, dirty, fatal)
	}()

	markDirty(dirty)

	runErr := o.loop(ctx, batches, dirty, fatal)

	// Stop the supervisor before the restart goroutine so a queued restart
	// sees ErrStopped instead of spawning a child nobody will stop.
	shutdownErr := o.supervisor.Shutdown(context.WithoutCancel(ctx))
	cancel()
	wg.Wait()
	closeErr := o.source.Close()
	if closeErr != nil {
		o.logger.Warn("close watch source failed", map[string]string{"error": logging.ErrorField(closeErr)})
	}

	o.logger.Info("run summary", o.metrics.Snapshot().Fields())
	if shutdownErr != nil {
		return errors.Join(runErr, shutdownErr)
	}
	if runErr == nil {
		o.logger.Info("shut down cleanly", nil)
	}
	return runErr
}

func (o *Orchestrator) loop(ctx context.Context, batches <-chan watcher.ChangeBatch, dirty chan struct{}, fatal <-chan error) error {
	watchErrors := o.source.Errors()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("termination requested", nil)
			return nil
		case batch := <-batches:
			o.logBatch(batch)
			markDirty(dirty)
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			if abortErr := o.handleWatchError(err); abortErr != nil {
				return abortErr
			}
		case err := <-fatal:
			return err
		}
	}
}

func (o *Orchestrator) handleWatchError(err error) error {
	o.metrics.IncWatchErrors()
	var watchErr *watcher.WatchError
	isFatal := errors.As(err, &watchErr) && watchErr.Fatal
	fields := map[string]string{"error": logging.ErrorField(err)}
	if watchErr != nil && watchErr.Path != "" {
		fields["path"] = watchErr.Path
	}
	if isFatal || o.policy == AbortOnWatchError {
		o.logger.Error("watching stopped", fields)
		return fmt.Errorf("%w: %w", ErrWatchAborted, err)
	}
	o.logger.Warn("watch error", fields)
	return nil
}

func (o *Orchestrator) logBatch(batch watcher.ChangeBatch) {
	o.metrics.RecordBatch(batch.Events)
	fields := map[string]string{
		"paths":  strconv.Itoa(len(batch.Paths)),
		"events": strconv.Itoa(batch.Events),
	}
	if len(batch.Paths) > 0 {
		fields["first"] = batch.Paths[0]
	}
	o.logger.Info("change detected", fields)
	if o.logger.Enabled(logging.LevelDebug) {
		for _, path := range batch.Paths {
			o.logger.Debug("changed", map[string]string{"path": path})
		}
	}
}

// restartLoop is the only caller of Restart. dirty holds at most one token,
// so batches that arrive during a restart collapse into one more cycle.
func (o *Orchestrator) restartLoop(ctx context.Context, dirty <-chan struct{}, fatal chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
		}
		if o.beforeRun != nil {
			o.beforeRun()
		}
		started := time.Now()
		err := o.supervisor.Restart(ctx)
		if !errors.Is(err, process.ErrStopped) && !errors.Is(err, context.Canceled) {
			o.metrics.RecordRestart(time.Since(started), err)
		}
		switch {
		case err == nil:
		case errors.Is(err, process.ErrStopped), errors.Is(err, context.Canceled):
			return
		case process.IsFatal(err):
			o.logger.Error("child could not be stopped", map[string]string{"error": logging.ErrorField(err)})
			select {
			case fatal <- err:
			default:
			}
			return
		default:
			o.logger.Error("child failed to start", map[string]string{"error": logging.ErrorField(err)})
		}
	}
}

func markDirty(dirty chan<- struct{}) {
	select {
	case dirty <- struct{}{}:
	default:
	}
}
