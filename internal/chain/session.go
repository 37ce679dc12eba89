package chain

import "github.com/emberchain/ember/internal/primitives"

// SessionHandler is implemented by modules that react to session
// rotation, the bridge's authority handover in particular.
type SessionHandler interface {
	OnBeforeSessionEnding() error
}

// Sessions derives session and era boundaries from the block number.
// Sessions are fixed length and an era is a fixed number of sessions.
type Sessions struct {
	sys            *System
	sessionLength  primitives.BlockNumber
	sessionsPerEra uint32
	handlers       []SessionHandler
}

func NewSessions(sys *System, sessionLength primitives.BlockNumber, sessionsPerEra uint32) *Sessions {
	return &Sessions{sys: sys, sessionLength: sessionLength, sessionsPerEra: sessionsPerEra}
}

func (s *Sessions) RegisterHandler(h SessionHandler) {
	s.handlers = append(s.handlers, h)
}

// SessionIndex is the index of the session the current block falls in.
func (s *Sessions) SessionIndex() uint64 {
	return uint64(s.sys.BlockNumber() / s.sessionLength)
}

// IsActiveSessionFinal reports whether the active session is the last
// one of its era.
func (s *Sessions) IsActiveSessionFinal() bool {
	return (s.SessionIndex()+1)%uint64(s.sessionsPerEra) == 0
}

// EndSession notifies handlers that the active session is ending.
// Handler errors degrade, they never abort the rotation of later handlers.
func (s *Sessions) EndSession() {
	for _, h := range s.handlers {
		_ = h.OnBeforeSessionEnding()
	}
}
