package lifecycle

// State is the controller's position in a run.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateTerminating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
