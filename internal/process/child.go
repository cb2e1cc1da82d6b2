package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// child is one running instance of the command. Done closes once the
// process has been reaped; ExitErr is valid after that.
type child interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	// Release kills whatever is left of the child's process group after the
	// leader has exited.
	Release()
	Done() <-chan struct{}
	ExitErr() error
}

type stdio struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type launcher func(command Command, streams stdio) (child, error)

type execChild struct {
	cmd     *exec.Cmd
	pid     int
	pgid    int
	done    chan struct{}
	exitErr error
}

func launchExec(command Command, streams stdio) (child, error) {
	cmd := exec.Command(command.Path(), command.Args()...)
	cmd.Stdin = streams.stdin
	cmd.Stdout = streams.stdout
	cmd.Stderr = streams.stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	handle := &execChild{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		pgid: groupID(cmd.Process.Pid),
		done: make(chan struct{}),
	}
	go func() {
		handle.exitErr = cmd.Wait()
		close(handle.done)
	}()
	return handle, nil
}

func (handle *execChild) PID() int {
	return handle.pid
}

func (handle *execChild) Signal(sig os.Signal) error {
	return signalProcessGroup(handle.pid, handle.pgid, sig)
}

func (handle *execChild) Kill() error {
	return killProcessGroup(handle.pid, handle.pgid)
}

func (handle *execChild) Release() {
	if handle.pgid <= 0 {
		return
	}
	_ = killProcessGroup(handle.pid, handle.pgid)
}

func (handle *execChild) Done() <-chan struct{} {
	return handle.done
}

func (handle *execChild) ExitErr() error {
	return handle.exitErr
}

// exitFields describes how a child ended for the log.
func exitFields(err error) map[string]string {
	if err == nil {
		return map[string]string{"code": "0"}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if isSignaledExit(err) {
			return map[string]string{"signal": exitErr.String()}
		}
		return map[string]string{"code": strconv.Itoa(exitErr.ExitCode())}
	}
	return map[string]string{"error": err.Error()}
}
