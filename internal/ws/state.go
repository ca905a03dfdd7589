package ws

import "errors"

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrConnectionClosed     = errors.New("connection closed")
)

type phase int

const (
	phaseUnauthenticated phase = iota
	phaseAuthenticated
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseUnauthenticated:
		return "unauthenticated"
	case phaseAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// connState is the per-connection lifecycle value. Transitions return a new
// value and never mutate the receiver.
type connState struct {
	phase  phase
	userID string
}

func (s connState) authenticate(userID string) (connState, error) {
	switch s.phase {
	case phaseUnauthenticated:
		return connState{phase: phaseAuthenticated, userID: userID}, nil
	case phaseAuthenticated:
		return s, ErrAlreadyAuthenticated
	default:
		return s, ErrConnectionClosed
	}
}

// close moves to Closed and reports the identity that was bound, if any.
func (s connState) close() (connState, string) {
	if s.phase == phaseAuthenticated {
		return connState{phase: phaseClosed}, s.userID
	}
	return connState{phase: phaseClosed}, ""
}

func (s connState) user() (string, error) {
	if s.phase != phaseAuthenticated {
		return "", ErrNotAuthenticated
	}
	return s.userID, nil
}
