// Package session implements the lifecycle shared by every Cryptographer
// session: a tagged state with checked transitions.
//
//	Uninitialized -> Initialized -> Keyed -> Issuing -> Redeemed
//
// Any failure moves the session to Failed, which is terminal. Redeemed is
// terminal too: the only token a session can produce has been handed out.
package session

import (
	"github.com/privatestate/attribution-go/internal/verifyerrors"
)

// State is the lifecycle position of a session.
type State int

const (
	Uninitialized State = iota
	Initialized
	Keyed
	Issuing
	Redeemed
	Failed
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Initialized:   "initialized",
	Keyed:         "keyed",
	Issuing:       "issuing",
	Redeemed:      "redeemed",
	Failed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Machine tracks the state of one session. The zero value is Uninitialized.
// A Machine is owned by a single goroutine.
type Machine struct {
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Enter checks that op may run from the current state. When it may not,
// the machine moves to Failed and the returned *verifyerrors.SequenceError
// wraps ErrSessionFailed, ErrTokenConsumed or ErrOutOfOrder depending on
// where the session was.
func (m *Machine) Enter(op string, from ...State) error {
	for _, s := range from {
		if m.state == s {
			return nil
		}
	}

	cause := verifyerrors.ErrOutOfOrder
	switch m.state {
	case Failed:
		cause = verifyerrors.ErrSessionFailed
	case Redeemed:
		cause = verifyerrors.ErrTokenConsumed
	}
	err := &verifyerrors.SequenceError{Op: op, State: m.state.String(), Err: cause}
	m.state = Failed
	return err
}

// Advance moves to the given state after a successful operation.
func (m *Machine) Advance(to State) {
	if m.state == Failed {
		return
	}
	m.state = to
}

// Fail poisons the session.
func (m *Machine) Fail() {
	m.state = Failed
}

// FailWith poisons the session and returns err unchanged.
func (m *Machine) FailWith(err error) error {
	m.state = Failed
	return err
}
