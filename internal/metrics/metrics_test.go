package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistryCountsActivity(t *testing.T) {
	registry := NewRegistry()
	registry.RecordBatch(3)
	registry.RecordBatch(1)
	registry.RecordRestart(100*time.Millisecond, nil)
	registry.RecordRestart(300*time.Millisecond, errors.New("spawn failed"))
	registry.IncWatchErrors()
	registry.IncWatchErrorsSuppressed()
	registry.IncWatchErrorsSuppressed()

	snapshot := registry.Snapshot()
	if snapshot.Batches != 2 || snapshot.Events != 4 {
		t.Fatalf("unexpected batch counts: %+v", snapshot)
	}
	if snapshot.Restarts != 2 || snapshot.RestartFailures != 1 {
		t.Fatalf("unexpected restart counts: %+v", snapshot)
	}
	if snapshot.MeanRestart() != 200*time.Millisecond {
		t.Fatalf("expected 200ms mean, got %s", snapshot.MeanRestart())
	}
	fields := snapshot.Fields()
	if fields["restart_mean"] != "200ms" || fields["watch_errors"] != "1" || fields["watch_suppressed"] != "2" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestNilRegistryIsInert(t *testing.T) {
	var registry *Registry
	registry.RecordBatch(5)
	registry.RecordRestart(time.Second, nil)
	registry.IncWatchErrors()
	registry.IncWatchErrorsSuppressed()
	if snapshot := registry.Snapshot(); snapshot != (Snapshot{}) {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
	if (Snapshot{}).MeanRestart() != 0 {
		t.Fatalf("expected zero mean without restarts")
	}
}

func TestRegistryConcurrentUpdates(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				registry.RecordBatch(1)
			}
		}()
	}
	wg.Wait()
	if got := registry.Snapshot().Batches; got != 800 {
		t.Fatalf("expected 800 batches, got %d", got)
	}
}
