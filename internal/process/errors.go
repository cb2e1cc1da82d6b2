package process

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by Restart once Shutdown has been called.
	ErrStopped = errors.New("supervisor stopped")
	// ErrOrphaned means a child survived the forced kill. The caller must
	// treat it as fatal: a process may be left running.
	ErrOrphaned = errors.New("child process did not exit after kill")
)

// SpawnError reports a failed start of the command. It is not retried; the
// next Restart tries again.
type SpawnError struct {
	Command Command
	Err     error
}

func (err *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", err.Command.Path(), err.Err)
}

func (err *SpawnError) Unwrap() error {
	return err.Err
}

// IsFatal reports whether err from Restart or Shutdown must end the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrOrphaned)
}
