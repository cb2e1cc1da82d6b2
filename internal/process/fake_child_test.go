package process

import (
	"errors"
	"os"
	"sync"
)

// fakeChild exits when signalled unless stubborn, and always on Kill unless
// unkillable.
type fakeChild struct {
	pid        int
	stubborn   bool
	unkillable bool

	mu       sync.Mutex
	signals  []os.Signal
	killed   bool
	done     chan struct{}
	doneOnce sync.Once
	onExit   func()
}

func (c *fakeChild) PID() int { return c.pid }

func (c *fakeChild) Signal(sig os.Signal) error {
	c.mu.Lock()
	c.signals = append(c.signals, sig)
	c.mu.Unlock()
	if !c.stubborn {
		c.exit()
	}
	return nil
}

func (c *fakeChild) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	if !c.unkillable {
		c.exit()
	}
	return nil
}

func (c *fakeChild) Release() {}

func (c *fakeChild) Done() <-chan struct{} { return c.done }

func (c *fakeChild) ExitErr() error { return nil }

func (c *fakeChild) exit() {
	c.doneOnce.Do(func() {
		if c.onExit != nil {
			c.onExit()
		}
		close(c.done)
	})
}

func (c *fakeChild) wasKilled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// fakeLauncher records spawns and tracks how many children are alive at once.
type fakeLauncher struct {
	mu        sync.Mutex
	children  []*fakeChild
	alive     int
	maxAlive  int
	failNext  error
	configure func(*fakeChild)
	// entered receives before each launch and gate, when set, holds it.
	entered chan struct{}
	gate    chan struct{}
}

func (l *fakeLauncher) launch(command Command, streams stdio) (child, error) {
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return nil, err
	}
	c := &fakeChild{pid: 1000 + len(l.children), done: make(chan struct{})}
	if l.configure != nil {
		l.configure(c)
	}
	l.children = append(l.children, c)
	l.alive++
	if l.alive > l.maxAlive {
		l.maxAlive = l.alive
	}
	c.onExit = func() {
		l.mu.Lock()
		l.alive--
		l.mu.Unlock()
	}
	return c, nil
}

func (l *fakeLauncher) spawned() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.children)
}

func (l *fakeLauncher) child(index int) *fakeChild {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.children[index]
}

func (l *fakeLauncher) peakAlive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxAlive
}

var errNoSuchFile = errors.New("no such file or directory")
