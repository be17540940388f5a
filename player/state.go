package player

// State is the controller's position in the playback lifecycle. At most
// one session exists at a time and the controller is its only writer, so
// the state fully describes what the system is doing.
type State int

const (
	// Idle means no session exists and the next tap starts one.
	Idle State = iota
	// Resolving means a tap was accepted and the source is being turned
	// into a playable stream URL.
	Resolving
	// Starting means the backend was told to play and the controller is
	// waiting for confirmation.
	Starting
	// Playing is steady state with an active stream.
	Playing
	// Reconnecting means the stream was interrupted and the controller
	// is retrying within its budget.
	Reconnecting
	// Stopping means the backend is releasing the current stream.
	Stopping
	// Error is the terminal state of a failed session. It is reported
	// and then immediately followed by Idle.
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Starting:
		return "starting"
	case Playing:
		return "playing"
	case Reconnecting:
		return "reconnecting"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	}
	return "unknown"
}
