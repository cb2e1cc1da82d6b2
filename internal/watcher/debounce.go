package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultQuiet = 100 * time.Millisecond

type DebounceOptions struct {
	// Quiet is the idle time after the last event before a batch is ready.
	// Zero or negative values fall back to DefaultQuiet.
	Quiet time.Duration
	// MaxWait caps how long an open batch can be held back by a continuous
	// stream of events, measured from its first event. Zero disables it.
	MaxWait time.Duration
	Now     func() time.Time
}

// Debouncer coalesces bursts of raw events into change batches. It is safe
// for concurrent use.
type Debouncer struct {
	mu       sync.Mutex
	quiet    time.Duration
	maxWait  time.Duration
	now      func() time.Time
	paths    map[string]struct{}
	events   int
	open     bool
	openedAt time.Time
	lastAt   time.Time
}

func NewDebouncer(options DebounceOptions) *Debouncer {
	quiet := options.Quiet
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	maxWait := options.MaxWait
	if maxWait < 0 {
		maxWait = 0
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Debouncer{
		quiet:   quiet,
		maxWait: maxWait,
		now:     now,
		paths:   make(map[string]struct{}),
	}
}

// Observe adds event to the open batch, opening one if needed, and pushes the
// flush deadline out to event.ObservedAt+Quiet.
func (debouncer *Debouncer) Observe(event RawEvent) {
	observedAt := event.ObservedAt
	if observedAt.IsZero() {
		observedAt = debouncer.now()
	}

	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()
	if !debouncer.open {
		debouncer.open = true
		debouncer.openedAt = observedAt
		debouncer.lastAt = observedAt
	}
	if observedAt.After(debouncer.lastAt) {
		debouncer.lastAt = observedAt
	}
	debouncer.paths[event.Path] = struct{}{}
	debouncer.events++
}

// Deadline returns when the open batch becomes ready.
func (debouncer *Debouncer) Deadline() (time.Time, bool) {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()
	return debouncer.deadlineLocked()
}

func (debouncer *Debouncer) deadlineLocked() (time.Time, bool) {
	if !debouncer.open {
		return time.Time{}, false
	}
	deadline := debouncer.lastAt.Add(debouncer.quiet)
	if debouncer.maxWait > 0 {
		if limit := debouncer.openedAt.Add(debouncer.maxWait); limit.Before(deadline) {
			deadline = limit
		}
	}
	return deadline, true
}

// PollReady returns the open batch and resets the debouncer when no event
// has arrived for the quiet window as of now.
func (debouncer *Debouncer) PollReady(now time.Time) (ChangeBatch, bool) {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()

	deadline, ok := debouncer.deadlineLocked()
	if !ok || now.Before(deadline) {
		return ChangeBatch{}, false
	}
	return debouncer.takeLocked(now), true
}

// Flush returns the open batch regardless of the quiet window.
func (debouncer *Debouncer) Flush() (ChangeBatch, bool) {
	debouncer.mu.Lock()
	defer debouncer.mu.Unlock()
	if !debouncer.open {
		return ChangeBatch{}, false
	}
	return debouncer.takeLocked(debouncer.now()), true
}

func (debouncer *Debouncer) takeLocked(now time.Time) ChangeBatch {
	paths := make([]string, 0, len(debouncer.paths))
	for path := range debouncer.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	batch := ChangeBatch{
		TriggeredAt: now,
		Paths:       paths,
		Events:      debouncer.events,
	}
	clear(debouncer.paths)
	debouncer.events = 0
	debouncer.open = false
	debouncer.openedAt = time.Time{}
	debouncer.lastAt = time.Time{}
	return batch
}

// Run observes events and delivers ready batches on out until ctx is done or
// events is closed. Observation never waits on out: a batch that cannot be
// delivered yet is held and later batches are merged into it, so the
// consumer always sees every changed path.
func (debouncer *Debouncer) Run(ctx context.Context, events <-chan RawEvent, out chan<- ChangeBatch) error {
	timer := time.NewTimer(debouncer.quiet)
	timer.Stop()
	defer timer.Stop()

	var (
		timerC  <-chan time.Time
		pending *ChangeBatch
	)

	rearm := func() {
		deadline, ok := debouncer.Deadline()
		if !ok {
			timerC = nil
			return
		}
		wait := deadline.Sub(debouncer.now())
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		timerC = timer.C
	}

	hold := func(batch ChangeBatch) {
		if pending == nil {
			pending = &batch
			return
		}
		merged := mergeBatches(*pending, batch)
		pending = &merged
	}

	for {
		var sendC chan<- ChangeBatch
		var next ChangeBatch
		if pending != nil {
			sendC = out
			next = *pending
		}

		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				if batch, ok := debouncer.Flush(); ok {
					hold(batch)
				}
				if pending != nil {
					select {
					case out <- *pending:
					case <-ctx.Done():
					}
				}
				return nil
			}
			debouncer.Observe(event)
			rearm()
		case <-timerC:
			timerC = nil
			if batch, ok := debouncer.PollReady(debouncer.now()); ok {
				hold(batch)
			} else {
				rearm()
			}
		case sendC <- next:
			pending = nil
		}
	}
}

func mergeBatches(first, second ChangeBatch) ChangeBatch {
	seen := make(map[string]struct{}, len(first.Paths)+len(second.Paths))
	paths := make([]string, 0, len(first.Paths)+len(second.Paths))
	for _, path := range append(append([]string{}, first.Paths...), second.Paths...) {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return ChangeBatch{
		TriggeredAt: second.TriggeredAt,
		Paths:       paths,
		Events:      first.Events + second.Events,
	}
}
