package devserver

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"quadpong/internal/wire"
)

const (
	MaxPlayers  = 4
	FieldExtent = 10.0

	TickRate     = 60
	TickDuration = time.Second / TickRate

	paddleDelta = 0.3
	paddleWidth = 1.0
	aiSlowdown  = 0.2
)

// Game states as they appear in snapshots.
const (
	StateWaiting  = "WaitingForPlayers"
	StateActive   = "Active"
	StatePaused   = "Paused"
	StateFinished = "Finished"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNoBots        = errors.New("no bots to remove")
)

// seatOrder is the order sides are handed out in.
var seatOrder = [MaxPlayers]wire.Side{wire.Top, wire.Bottom, wire.Right, wire.Left}

type Player struct {
	ID          uuid.UUID
	Name        string
	Score       uint32
	Addr        netip.AddrPort
	Side        wire.Side
	PaddlePos   float64
	PaddleDelta float64
	PaddleWidth float64
	Ready       bool
	AI          bool
	JoinedAt    time.Time
	LastSeen    time.Time
}

// move shifts the paddle one step, keeping it on the field.
func (p *Player) move(d wire.Direction) {
	delta := p.PaddleDelta
	if d == wire.Negative {
		delta = -delta
	}
	if p.AI {
		delta *= aiSlowdown
	}
	half := p.PaddleWidth / 2
	p.PaddlePos = min(max(p.PaddlePos+delta, half), FieldExtent-half)
}

func (p *Player) snapshot() wire.PlayerSnapshot {
	w := p.PaddleWidth
	return wire.PlayerSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		Address:     p.Addr,
		Position:    p.Side,
		PaddlePos:   p.PaddlePos,
		PaddleDelta: p.PaddleDelta,
		PaddleWidth: &w,
	}
}

// Room is one game. It is not the authoritative simulation: the ball follows a
// scripted bounce off the field edges and nobody scores.
type Room struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu      sync.Mutex
	state   string
	players map[uuid.UUID]*Player
	ball    *wire.BallSnapshot
}

func NewRoom() *Room {
	return &Room{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		state:     StateWaiting,
		players:   make(map[uuid.UUID]*Player),
	}
}

func NewBall() *wire.BallSnapshot {
	return &wire.BallSnapshot{
		Position: wire.Vec2{X: 5, Y: 5},
		Velocity: wire.Vec2{X: 0.075, Y: 0.1},
		Radius:   0.125,
	}
}

func (r *Room) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// AddPlayer seats a new player on the first free side. An empty name becomes
// player_N, or bot_N for AI players.
func (r *Room) AddPlayer(name string, ai bool) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	side, ok := r.freeSide()
	if !ok {
		return Player{}, ErrRoomFull
	}
	if name == "" {
		prefix := "player"
		if ai {
			prefix = "bot"
		}
		name = fmt.Sprintf("%s_%d", prefix, len(r.players)+1)
	}
	now := time.Now()
	p := &Player{
		ID:          uuid.New(),
		Name:        name,
		Side:        side,
		PaddlePos:   FieldExtent / 2,
		PaddleDelta: paddleDelta,
		PaddleWidth: paddleWidth,
		Ready:       ai,
		AI:          ai,
		JoinedAt:    now,
		LastSeen:    now,
	}
	r.players[p.ID] = p
	if r.state == StateFinished {
		r.state = StateWaiting
	}
	return *p, nil
}

func (r *Room) freeSide() (wire.Side, bool) {
	taken := make(map[wire.Side]bool, len(r.players))
	for _, p := range r.players {
		taken[p.Side] = true
	}
	for _, s := range seatOrder {
		if !taken[s] {
			return s, true
		}
	}
	return wire.Unassigned, false
}

// RemoveBot drops the most recently seated AI player.
func (r *Room) RemoveBot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last *Player
	for _, p := range r.players {
		if p.AI && (last == nil || p.JoinedAt.After(last.JoinedAt)) {
			last = p
		}
	}
	if last == nil {
		return ErrNoBots
	}
	r.removeLocked(last.ID)
	return nil
}

func (r *Room) removeLocked(id uuid.UUID) {
	delete(r.players, id)
	for _, p := range r.players {
		if !p.AI {
			return
		}
	}
	r.state = StateFinished
	r.ball = nil
}

// Apply runs one client command. from is the sender's UDP address; it is zero
// for commands that arrived over WebSocket.
func (r *Room) Apply(c wire.Command, from netip.AddrPort) error {
	id, err := uuid.Parse(c.PlayerID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, c.PlayerID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	p.LastSeen = time.Now()

	switch c.Type {
	case wire.JoinGame:
		p.Addr = from
	case wire.LeaveGame:
		r.removeLocked(id)
	case wire.PlayerReady:
		p.Ready = !p.Ready
		if r.allReadyLocked() {
			r.startLocked()
		}
	case wire.StartGame:
		r.startLocked()
	case wire.PauseGame:
		if r.state == StateActive {
			r.state = StatePaused
		}
	case wire.ResumeGame:
		if r.state == StatePaused {
			r.state = StateActive
		}
	case wire.MovePaddle:
		if r.state == StateActive {
			p.move(c.Direction)
		}
	case wire.Ping:
	}
	return nil
}

func (r *Room) allReadyLocked() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) startLocked() {
	if r.state != StateWaiting || len(r.players) == 0 {
		return
	}
	r.state = StateActive
	r.ball = NewBall()
}

// Tick advances the ball one step and lets bots chase it.
func (r *Room) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive || r.ball == nil {
		return
	}
	b := r.ball
	b.Position.X, b.Velocity.X = bounce(b.Position.X+b.Velocity.X, b.Velocity.X, b.Radius)
	b.Position.Y, b.Velocity.Y = bounce(b.Position.Y+b.Velocity.Y, b.Velocity.Y, b.Radius)

	for _, p := range r.players {
		if !p.AI {
			continue
		}
		target := b.Position.X
		if p.Side == wire.Left || p.Side == wire.Right {
			target = b.Position.Y
		}
		switch {
		case target > p.PaddlePos+p.PaddleWidth/4:
			p.move(wire.Positive)
		case target < p.PaddlePos-p.PaddleWidth/4:
			p.move(wire.Negative)
		}
	}
}

// bounce reflects a coordinate that left [r, extent-r].
func bounce(pos, vel, r float64) (float64, float64) {
	lo, hi := r, FieldExtent-r
	switch {
	case pos < lo:
		return 2*lo - pos, -vel
	case pos > hi:
		return 2*hi - pos, -vel
	}
	return pos, vel
}

// Snapshot copies the room into the wire form.
func (r *Room) Snapshot() *wire.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &wire.Snapshot{
		GameID:     r.ID,
		Players:    make(map[uuid.UUID]wire.PlayerSnapshot, len(r.players)),
		State:      r.state,
		MaxPlayers: MaxPlayers,
		CreatedAt:  r.CreatedAt,
	}
	for id, p := range r.players {
		s.Players[id] = p.snapshot()
	}
	if r.ball != nil {
		b := *r.ball
		s.Ball = &b
	}
	return s
}

// Addrs lists the UDP addresses of human players that have joined.
func (r *Room) Addrs() []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []netip.AddrPort
	for _, p := range r.players {
		if !p.AI && p.Addr.IsValid() {
			out = append(out, p.Addr)
		}
	}
	return out
}

// Empty reports whether the room has no players left.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}
