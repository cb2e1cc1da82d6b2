// Package metrics counts what the change pipeline did during one run.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Registry is safe for concurrent use. A nil *Registry ignores every call.
type Registry struct {
	batches         atomic.Int64
	events          atomic.Int64
	restarts        atomic.Int64
	restartFailures atomic.Int64
	restartNanos    atomic.Int64
	watchErrors     atomic.Int64
	suppressed      atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// RecordBatch counts one change batch made of events raw notifications.
func (r *Registry) RecordBatch(events int) {
	if r == nil {
		return
	}
	r.batches.Add(1)
	r.events.Add(int64(events))
}

func (r *Registry) RecordRestart(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.restarts.Add(1)
	r.restartNanos.Add(duration.Nanoseconds())
	if err != nil {
		r.restartFailures.Add(1)
	}
}

func (r *Registry) IncWatchErrors() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

// IncWatchErrorsSuppressed counts a watch error that was rate limited before
// reaching the consumer.
func (r *Registry) IncWatchErrorsSuppressed() {
	if r == nil {
		return
	}
	r.suppressed.Add(1)
}

type Snapshot struct {
	Batches         int64
	Events          int64
	Restarts        int64
	RestartFailures int64
	RestartTime     time.Duration
	WatchErrors     int64
	Suppressed      int64
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Batches:         r.batches.Load(),
		Events:          r.events.Load(),
		Restarts:        r.restarts.Load(),
		RestartFailures: r.restartFailures.Load(),
		RestartTime:     time.Duration(r.restartNanos.Load()),
		WatchErrors:     r.watchErrors.Load(),
		Suppressed:      r.suppressed.Load(),
	}
}

// MeanRestart is the average time a restart cycle took, failed ones included.
func (s Snapshot) MeanRestart() time.Duration {
	if s.Restarts == 0 {
		return 0
	}
	return s.RestartTime / time.Duration(s.Restarts)
}

// Fields renders the snapshot as log context.
func (s Snapshot) Fields() map[string]string {
	return map[string]string{
		"batches":          strconv.FormatInt(s.Batches, 10),
		"events":           strconv.FormatInt(s.Events, 10),
		"restarts":         strconv.FormatInt(s.Restarts, 10),
		"restart_failures": strconv.FormatInt(s.RestartFailures, 10),
		"restart_mean":     s.MeanRestart().Round(time.Millisecond).String(),
		"watch_errors":     strconv.FormatInt(s.WatchErrors, 10),
		"watch_suppressed": strconv.FormatInt(s.Suppressed, 10),
	}
}
