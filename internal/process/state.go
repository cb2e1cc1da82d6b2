package process

// State is the lifecycle position of the supervisor.
type State int

const (
	// StateIdle: no live child, either never started or exited.
	StateIdle State = iota
	StateRunning
	StateTerminating
	// StateStopped is terminal; set by Shutdown.
	StateStopped
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
