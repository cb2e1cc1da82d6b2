//go:build windows

package process

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// ParseSignal validates the name; Windows has no graceful signal for other
// processes, so termination always kills.
func ParseSignal(name string) (os.Signal, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(normalized, "SIG") {
		normalized = "SIG" + normalized
	}
	switch normalized {
	case "SIG", "SIGTERM", "SIGINT", "SIGHUP", "SIGQUIT":
		return os.Kill, nil
	default:
		return nil, fmt.Errorf("unsupported signal %q (use SIGTERM, SIGINT, SIGHUP or SIGQUIT)", name)
	}
}

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func groupID(pid int) int {
	return 0
}

func signalProcessGroup(pid, pgid int, sig os.Signal) error {
	return killProcessGroup(pid, pgid)
}

func killProcessGroup(pid, pgid int) error {
	_ = pgid
	if pid <= 0 {
		return os.ErrProcessDone
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return os.ErrProcessDone
	}
	return process.Kill()
}

func isSignaledExit(err error) bool {
	return false
}
