package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"respawn/internal/logging"
)

const (
	DefaultGracePeriod = 5 * time.Second
	DefaultKillTimeout = 2 * time.Second
)

type SupervisorOptions struct {
	Logger *logging.Logger
	// GracePeriod is how long the child may take to exit after the
	// termination signal before it is killed.
	GracePeriod time.Duration
	// KillTimeout bounds the wait after the kill. A child still alive
	// then is reported as ErrOrphaned.
	KillTimeout time.Duration
	Signal      os.Signal
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer

	launch launcher
}

// Supervisor owns at most one running instance of a command. Restart and
// Shutdown may be called from any goroutine; the terminate, wait and spawn
// steps of one cycle never interleave with another cycle.
type Supervisor struct {
	command     Command
	logger      *logging.Logger
	gracePeriod time.Duration
	killTimeout time.Duration
	signal      os.Signal
	streams     stdio
	launch      launcher

	// cycle is held for the whole terminate-wait-spawn sequence.
	cycle chan struct{}

	mu      sync.Mutex
	state   State
	current *runningChild
	pending bool
	stopped bool
	spawns  int

	shutdownOnce sync.Once
	shutdownErr  error
}

type runningChild struct {
	handle      child
	startedAt   time.Time
	terminating bool
}

func NewSupervisor(command Command, options SupervisorOptions) *Supervisor {
	grace := options.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	killTimeout := options.KillTimeout
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	sig := options.Signal
	if sig == nil {
		sig, _ = ParseSignal("SIGTERM")
	}
	launch := options.launch
	if launch == nil {
		launch = launchExec
	}
	streams := stdio{stdin: options.Stdin, stdout: options.Stdout, stderr: options.Stderr}
	if streams.stdin == nil {
		streams.stdin = os.Stdin
	}
	if streams.stdout == nil {
		streams.stdout = os.Stdout
	}
	if streams.stderr == nil {
		streams.stderr = os.Stderr
	}
	return &Supervisor{
		command:     command,
		logger:      options.Logger.With(map[string]string{"command": command.String()}),
		gracePeriod: grace,
		killTimeout: killTimeout,
		signal:      sig,
		streams:     streams,
		launch:      launch,
		cycle:       make(chan struct{}, 1),
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the live child's pid, or 0 when none is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.handle.PID()
}

// Spawns counts successful starts of the command.
func (s *Supervisor) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// Restart stops the live child, if any, and starts a fresh one. Requests
// that arrive while a cycle is in flight collapse into a single follow-up
// cycle; every caller returns once a child started after its request is
// running (or failed to start).
//
// A *SpawnError is not fatal. ErrOrphaned is. ctx only bounds the wait for
// an in-flight cycle; a cycle that has begun always completes.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.pending = true
	s.mu.Unlock()

	select {
	case s.cycle <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.cycle }()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if !s.pending {
		// A cycle that began after this request already served it.
		s.mu.Unlock()
		return nil
	}
	s.pending = false
	current := s.current
	s.mu.Unlock()

	if current != nil {
		if err := s.terminate(context.WithoutCancel(ctx), current); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()
	return s.spawn()
}

// Shutdown stops accepting restarts, terminates the live child and moves to
// StateStopped. Later calls return the first call's result. Cancelling ctx
// skips the rest of the grace period and kills the child.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.pending = false
		s.mu.Unlock()

		s.cycle <- struct{}{}
		defer func() { <-s.cycle }()

		s.mu.Lock()
		current := s.current
		s.mu.Unlock()

		var err error
		if current != nil {
			err = s.terminate(ctx, current)
		}

		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("child shutdown failed", map[string]string{"error": logging.ErrorField(err)})
		} else {
			s.logger.Debug("supervisor stopped", nil)
		}
		s.shutdownErr = err
	})
	return s.shutdownErr
}

func (s *Supervisor) spawn() error {
	handle, err := s.launch(s.command, s.streams)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return &SpawnError{Command: s.command, Err: err}
	}

	running := &runningChild{handle: handle, startedAt: time.Now()}
	s.mu.Lock()
	s.current = running
	s.state = StateRunning
	s.spawns++
	spawns := s.spawns
	s.mu.Unlock()

	s.logger.Info("child started", map[string]string{
		"pid":    strconv.Itoa(handle.PID()),
		"spawns": strconv.Itoa(spawns),
	})
	go s.reap(running)
	return nil
}

// reap notices a child that exits on its own so State and PID stay truthful
// between restarts.
func (s *Supervisor) reap(running *runningChild) {
	<-running.handle.Done()
	running.handle.Release()

	s.mu.Lock()
	expected := running.terminating
	if s.current == running {
		s.current = nil
		if s.state == StateRunning {
			s.state = StateIdle
		}
	}
	s.mu.Unlock()

	if expected {
		return
	}
	fields := exitFields(running.handle.ExitErr())
	fields["pid"] = strconv.Itoa(running.handle.PID())
	fields["uptime"] = time.Since(running.startedAt).Round(time.Millisecond).String()
	s.logger.Info("child exited", fields)
}

// terminate sends the graceful signal, waits up to the grace period, then
// kills the process group. It returns ErrOrphaned if the child outlives the
// kill timeout.
func (s *Supervisor) terminate(ctx context.Context, running *runningChild) error {
	handle := running.handle
	pid := strconv.Itoa(handle.PID())

	s.mu.Lock()
	running.terminating = true
	s.state = StateTerminating
	s.mu.Unlock()
	defer s.forget(running)

	select {
	case <-handle.Done():
		return nil
	default:
	}

	s.logger.Info("stopping child", map[string]string{"pid": pid, "signal": s.signal.String()})
	if err := handle.Signal(s.signal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("signal child failed", map[string]string{"pid": pid, "error": logging.ErrorField(err)})
	}

	grace := time.NewTimer(s.gracePeriod)
	defer grace.Stop()
	select {
	case <-handle.Done():
		s.logger.Debug("child stopped", exitFields(handle.ExitErr()))
		return nil
	case <-grace.C:
		s.logger.Warn("grace period expired, killing child", map[string]string{
			"pid":   pid,
			"grace": s.gracePeriod.String(),
		})
	case <-ctx.Done():
		s.logger.Warn("shutdown cancelled, killing child", map[string]string{"pid": pid})
	}

	killErr := handle.Kill()
	if errors.Is(killErr, os.ErrProcessDone) {
		killErr = nil
	}
	deadline := time.NewTimer(s.killTimeout)
	defer deadline.Stop()
	select {
	case <-handle.Done():
		return nil
	case <-deadline.C:
	}
	if killErr != nil {
		return fmt.Errorf("%w: pid %s: %v", ErrOrphaned, pid, killErr)
	}
	return fmt.Errorf("%w: pid %s", ErrOrphaned, pid)
}

// forget drops the child once it has been reaped. An orphaned child stays
// current so Shutdown tries again.
func (s *Supervisor) forget(running *runningChild) {
	select {
	case <-running.handle.Done():
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == running {
		s.current = nil
	}
	if s.state == StateTerminating {
		s.state = StateIdle
	}
}
