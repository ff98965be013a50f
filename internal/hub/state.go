package hub

import "fmt"

// State is a connection's lifecycle state
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateRejected
)

var stateNames = map[State]string{
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateClosing:    "closing",
	StateClosed:     "closed",
	StateRejected:   "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// transitions lists the legal successors of each state. Closed and
// Rejected are terminal.
var transitions = map[State][]State{
	StateConnecting: {StateOpen, StateRejected},
	StateOpen:       {StateClosing},
	StateClosing:    {StateClosed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
