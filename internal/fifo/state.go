package fifo

// State is a Server lifecycle state.
type State int

const (
	StateStarting State = iota
	StateAwaitingClient
	StateServing
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAwaitingClient:
		return "awaiting_client"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason records why Run returned.
type Reason int

const (
	ReasonUnknown Reason = iota
	// ReasonSentinel means a client sent the shutdown sentinel.
	ReasonSentinel
	// ReasonStartupFailed means the pipe could not be created or opened.
	ReasonStartupFailed
	// ReasonCanceled means the run context was canceled.
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonSentinel:
		return "sentinel"
	case ReasonStartupFailed:
		return "startup_failed"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result summarizes a finished run.
type Result struct {
	Reason Reason
	// Commands counts dispatched units, including the sentinel.
	Commands int
	// Sessions counts successful opens, one per connected writer group.
	Sessions int
}
