package lifecycle

// State is the server lifecycle state.
type State int32

// Lifecycle states. Stopped is both the initial and the terminal state.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var stateNames = []string{"stopped", "starting", "running", "stopping"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
