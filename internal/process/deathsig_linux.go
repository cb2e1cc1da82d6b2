//go:build linux

package process

import "syscall"

// The kernel kills the child if respawn dies without running its shutdown.
func setDeathSignal(attr *syscall.SysProcAttr) {
	if attr == nil {
		return
	}
	attr.Pdeathsig = syscall.SIGKILL
}
