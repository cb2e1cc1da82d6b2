//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signals that ask a process to exit. SIGKILL is reserved for escalation.
var terminationSignals = map[string]bool{
	"SIGTERM": true,
	"SIGINT":  true,
	"SIGHUP":  true,
	"SIGQUIT": true,
}

// ParseSignal maps a signal name such as "TERM" or "SIGINT" to the graceful
// termination signal sent to the child's process group.
func ParseSignal(name string) (os.Signal, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if normalized == "" {
		return unix.SIGTERM, nil
	}
	if !strings.HasPrefix(normalized, "SIG") {
		normalized = "SIG" + normalized
	}
	if !terminationSignals[normalized] {
		return nil, fmt.Errorf("unsupported signal %q (use SIGTERM, SIGINT, SIGHUP or SIGQUIT)", name)
	}
	return unix.SignalNum(normalized), nil
}

// The child leads its own process group so a signal reaches everything it
// spawned, not only the direct child.
func sysProcAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	setDeathSignal(attr)
	return attr
}

func groupID(pid int) int {
	if pid <= 0 {
		return 0
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return 0
	}
	return pgid
}

func signalProcessGroup(pid, pgid int, sig os.Signal) error {
	if pid <= 0 {
		return os.ErrProcessDone
	}
	unixSignal, ok := sig.(syscall.Signal)
	if !ok {
		unixSignal = unix.SIGTERM
	}
	target := pid
	if pgid > 0 && pgid != unix.Getpgrp() {
		target = -pgid
	}
	err := unix.Kill(target, unixSignal)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func killProcessGroup(pid, pgid int) error {
	return signalProcessGroup(pid, pgid, unix.SIGKILL)
}

// isSignaledExit reports whether the child ended because of a signal, which is
// the expected outcome of a termination we initiated.
func isSignaledExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}
