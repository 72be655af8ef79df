package loader

// State is a step of the acquisition state machine.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateDetectingDialect
	StateParsing
	StateReconciling
	StateAwaitingResolution
	StatePublished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDetectingDialect:
		return "detecting_dialect"
	case StateParsing:
		return "parsing"
	case StateReconciling:
		return "reconciling"
	case StateAwaitingResolution:
		return "awaiting_resolution"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends an acquisition attempt.
func (s State) Terminal() bool {
	return s == StatePublished || s == StateFailed
}
