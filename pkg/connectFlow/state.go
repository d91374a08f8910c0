package connectFlow

import (
	"fmt"
)

// State is a connect flow state
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateAwaitingApproval
	StateApproved
	StateSubmitted
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateRequesting:       "requesting",
	StateAwaitingApproval: "awaiting_approval",
	StateApproved:         "approved",
	StateSubmitted:        "submitted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connect flow state %q", string(text))
}

// ErrInvalidTransition is returned when an operation isn't allowed in the current state
var ErrInvalidTransition = fmt.Errorf("invalid connect flow transition")

// ErrNotApproved is returned by Submit before the signer has been approved
var ErrNotApproved = fmt.Errorf("%w: signer is not approved", ErrInvalidTransition)

// ErrAttemptSuperseded is returned when an attempt is replaced or the flow is closed
// while one of its operations is in flight
var ErrAttemptSuperseded = fmt.Errorf("connect attempt was superseded")

// ErrPollAttemptsExhausted is recorded when a bounded poll policy gives up
var ErrPollAttemptsExhausted = fmt.Errorf("approval polling attempts exhausted")

// transitions lists, for each state, the states it may move to. A new connect is
// allowed from every state except Requesting, which guards against concurrent
// attempts.
var transitions = map[State]map[State]bool{
	StateIdle: {
		StateRequesting: true,
	},
	StateRequesting: {
		StateIdle:             true,
		StateAwaitingApproval: true,
	},
	StateAwaitingApproval: {
		StateRequesting: true,
		StateApproved:   true,
		StateIdle:       true,
	},
	StateApproved: {
		StateRequesting: true,
		StateSubmitted:  true,
	},
	StateSubmitted: {
		StateRequesting: true,
		StateSubmitted:  true,
	},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
