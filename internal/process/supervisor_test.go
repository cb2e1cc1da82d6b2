package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"respawn/internal/logging"

	"github.com/stretchr/testify/require"
)

func newFakeSupervisor(t *testing.T, launcher *fakeLauncher, options SupervisorOptions) *Supervisor {
	t.Helper()
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	options.launch = launcher.launch
	supervisor := NewSupervisor(NewCommand("server", "--port", "8080"), options)
	t.Cleanup(func() {
		_ = supervisor.Shutdown(context.Background())
	})
	return supervisor
}

func waitForState(t *testing.T, supervisor *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if supervisor.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s, got %s", want, supervisor.State())
}

func TestRestartStartsFirstChild(t *testing.T) {
	launcher := &fakeLauncher{}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{})

	if supervisor.State() != StateIdle {
		t.Fatalf("expected idle before first restart, got %s", supervisor.State())
	}
	if err := supervisor.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if supervisor.State() != StateRunning {
		t.Fatalf("expected running, got %s", supervisor.State())
	}
	if supervisor.PID() != 1000 {
		t.Fatalf("expected pid 1000, got %d", supervisor.PID())
	}
	if supervisor.Spawns() != 1 {
		t.Fatalf("expected 1 spawn, got %d", supervisor.Spawns())
	}
}

func TestRestartTerminatesBeforeSpawning(t *testing.T) {
	launcher := &fakeLauncher{}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{})

	for i := 0; i < 3; i++ {
		require.NoError(t, supervisor.Restart(context.Background()))
	}

	require.Equal(t, 3, launcher.spawned())
	require.Equal(t, 1, launcher.peakAlive())
	first := launcher.child(0)
	require.Len(t, first.signals, 1)
	require.False(t, first.wasKilled())
	require.Equal(t, 1002, supervisor.PID())
}

func TestRestartEscalatesToKill(t *testing.T) {
	launcher := &fakeLauncher{configure: func(c *fakeChild) { c.stubborn = true }}
	logger := logging.Discard()
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{
		Logger:      logger,
		GracePeriod: 20 * time.Millisecond,
	})

	require.NoError(t, supervisor.Restart(context.Background()))
	started := time.Now()
	require.NoError(t, supervisor.Restart(context.Background()))

	require.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	require.True(t, launcher.child(0).wasKilled())
	require.Equal(t, 1, launcher.peakAlive())
	require.NotEmpty(t, logger.Buffer().Filter("grace period expired, killing child"))
}

func TestRestartReportsOrphanedChild(t *testing.T) {
	launcher := &fakeLauncher{configure: func(c *fakeChild) {
		c.stubborn = true
		c.unkillable = true
	}}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{
		GracePeriod: 10 * time.Millisecond,
		KillTimeout: 10 * time.Millisecond,
	})

	require.NoError(t, supervisor.Restart(context.Background()))
	err := supervisor.Restart(context.Background())
	if !errors.Is(err, ErrOrphaned) {
		t.Fatalf("expected orphaned error, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatalf("expected orphaned error to be fatal")
	}
	if launcher.spawned() != 1 {
		t.Fatalf("expected no spawn after orphan, got %d", launcher.spawned())
	}
	if supervisor.PID() != 1000 {
		t.Fatalf("expected orphan to stay tracked, got pid %d", supervisor.PID())
	}

	// Let cleanup finish quickly.
	launcher.child(0).exit()
}

func TestSpawnFailureIsNotFatal(t *testing.T) {
	launcher := &fakeLauncher{failNext: errNoSuchFile}
	logger := logging.Discard()
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{Logger: logger})

	err := supervisor.Restart(context.Background())
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected spawn error, got %v", err)
	}
	if !errors.Is(err, errNoSuchFile) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if spawnErr.Command.Path() != "server" {
		t.Fatalf("expected command in error, got %q", spawnErr.Command.Path())
	}
	if IsFatal(err) {
		t.Fatalf("expected spawn error to be recoverable")
	}
	if supervisor.State() != StateIdle {
		t.Fatalf("expected idle after failed spawn, got %s", supervisor.State())
	}
	// The caller reports the failure.
	if got := len(logger.Buffer().List()); got != 0 {
		t.Fatalf("expected no records from the supervisor, got %d", got)
	}

	if err := supervisor.Restart(context.Background()); err != nil {
		t.Fatalf("expected next restart to succeed, got %v", err)
	}
	if supervisor.State() != StateRunning {
		t.Fatalf("expected running, got %s", supervisor.State())
	}
}

func TestConcurrentRestartsCoalesceIntoOneFollowUp(t *testing.T) {
	launcher := &fakeLauncher{
		entered: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	restart := func() {
		defer wg.Done()
		errs <- supervisor.Restart(context.Background())
	}

	wg.Add(1)
	go restart()
	<-launcher.entered

	// Cycle one is parked inside launch; these all queue behind it.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go restart()
	}
	time.Sleep(100 * time.Millisecond)

	launcher.gate <- struct{}{}
	<-launcher.entered
	launcher.gate <- struct{}{}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 2, launcher.spawned())
	require.Equal(t, 1, launcher.peakAlive())
	require.Equal(t, 2, supervisor.Spawns())
}

func TestRestartWaitHonoursContext(t *testing.T) {
	launcher := &fakeLauncher{
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{})

	done := make(chan error, 1)
	go func() { done <- supervisor.Restart(context.Background()) }()
	<-launcher.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := supervisor.Restart(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	launcher.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("first restart: %v", err)
	}
	go func() { done <- supervisor.Restart(context.Background()) }()
	<-launcher.entered
	launcher.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("follow-up restart: %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{})

	require.NoError(t, supervisor.Restart(context.Background()))
	require.NoError(t, supervisor.Shutdown(context.Background()))
	require.NoError(t, supervisor.Shutdown(context.Background()))

	require.Equal(t, StateStopped, supervisor.State())
	require.Equal(t, 0, supervisor.PID())
	require.Len(t, launcher.child(0).signals, 1)
	require.ErrorIs(t, supervisor.Restart(context.Background()), ErrStopped)
	require.Equal(t, 1, launcher.spawned())
}

func TestShutdownWithoutChild(t *testing.T) {
	supervisor := newFakeSupervisor(t, &fakeLauncher{}, SupervisorOptions{})

	if err := supervisor.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if supervisor.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", supervisor.State())
	}
}

func TestShutdownCancelledContextSkipsGrace(t *testing.T) {
	launcher := &fakeLauncher{configure: func(c *fakeChild) { c.stubborn = true }}
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{GracePeriod: time.Hour})
	require.NoError(t, supervisor.Restart(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	started := time.Now()
	require.NoError(t, supervisor.Shutdown(ctx))

	require.Less(t, time.Since(started), time.Second)
	require.True(t, launcher.child(0).wasKilled())
}

func TestNaturalExitReturnsToIdle(t *testing.T) {
	launcher := &fakeLauncher{}
	logger := logging.Discard()
	supervisor := newFakeSupervisor(t, launcher, SupervisorOptions{Logger: logger})
	require.NoError(t, supervisor.Restart(context.Background()))

	launcher.child(0).exit()
	waitForState(t, supervisor, StateIdle)
	require.Equal(t, 0, supervisor.PID())
	require.NotEmpty(t, logger.Buffer().Filter("child exited"))

	require.NoError(t, supervisor.Restart(context.Background()))
	require.Empty(t, launcher.child(0).signals)
	require.Equal(t, StateRunning, supervisor.State())
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:        "idle",
		StateRunning:     "running",
		StateTerminating: "terminating",
		StateStopped:     "stopped",
		State(42):        "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
