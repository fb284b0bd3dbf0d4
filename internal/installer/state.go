package installer

// State is a step of an installation run.
type State int

const (
	StateIdle State = iota
	StateDetecting
	StateAwaitingCredential
	StateValidating
	StatePiping
	StateInstallingPayload
	StateFinalizingShortcuts
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateAwaitingCredential:
		return "awaiting-credential"
	case StateValidating:
		return "validating"
	case StatePiping:
		return "piping"
	case StateInstallingPayload:
		return "installing-payload"
	case StateFinalizingShortcuts:
		return "finalizing-shortcuts"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists the allowed successors of each state.
var transitions = map[State][]State{
	StateIdle:                {StateDetecting},
	StateDetecting:           {StateAwaitingCredential},
	StateAwaitingCredential:  {StateValidating, StatePiping, StateFailed},
	StateValidating:          {StatePiping, StateFailed},
	StatePiping:              {StateInstallingPayload, StateCompleted, StateFailed},
	StateInstallingPayload:   {StateFinalizingShortcuts, StateCompleted, StateFailed},
	StateFinalizingShortcuts: {StateCompleted},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
