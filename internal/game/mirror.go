package game

import (
	"github.com/google/uuid"

	"quadpong/internal/wire"
)

// Mirror is the client's best-effort copy of the latest server state. It is
// owned by the loop and never shared across goroutines.
type Mirror struct {
	Players map[uuid.UUID]wire.PlayerSnapshot
	Ball    *wire.BallSnapshot
	State   string

	current uuid.UUID
}

func NewMirror(currentPlayer uuid.UUID) *Mirror {
	return &Mirror{
		Players: make(map[uuid.UUID]wire.PlayerSnapshot),
		current: currentPlayer,
	}
}

func (m *Mirror) CurrentPlayerID() uuid.UUID {
	return m.current
}

// Merge overlays a decoded snapshot. A nil snapshot (nothing arrived, or the
// packet was invalid) leaves the mirror untouched. Players are replaced whole
// by id; the ball is replaced only by a present, well-formed ball and is never
// cleared once seen.
func (m *Mirror) Merge(s *wire.Snapshot) {
	if s == nil {
		return
	}
	for id, p := range s.Players {
		m.Players[id] = p
	}
	if s.Ball != nil && s.Ball.Valid() {
		b := *s.Ball
		m.Ball = &b
	}
	if s.State != "" {
		m.State = s.State
	}
}

// Current returns the local player's record, if the server has sent it.
func (m *Mirror) Current() (wire.PlayerSnapshot, bool) {
	p, ok := m.Players[m.current]
	return p, ok
}
