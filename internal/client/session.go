package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"quadpong/internal/wire"
)

type State int

const (
	Disconnected State = iota
	Joining
	Active
	Leaving
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrSessionClosed = errors.New("session is not active")

// DefaultWait bounds a single receive.
const DefaultWait = 10 * time.Millisecond

type Options struct {
	// Wait bounds every Poll. Zero means DefaultWait.
	Wait time.Duration
	// Sealed wraps outgoing commands in the tagged envelope.
	Sealed bool
	Logger *slog.Logger
}

// Stats counts datagrams seen by a session.
type Stats struct {
	Sent       int
	SendErrors int
	Received   int
	Bytes      int
	Invalid    int
}

// Session is the join/leave state machine around a Transport. It is used from
// a single goroutine.
type Session struct {
	id     wire.Identity
	t      Transport
	wait   time.Duration
	sealed bool
	log    *slog.Logger
	state  State
	stats  Stats

	sendLog *rate.Limiter
	recvLog *rate.Limiter
}

// Open sends JoinGame and moves straight to Active without waiting for an
// acknowledgement. A failed join send is logged, not retried.
func Open(id wire.Identity, t Transport, opts Options) *Session {
	s := &Session{
		id:      id,
		t:       t,
		wait:    opts.Wait,
		sealed:  opts.Sealed,
		log:     opts.Logger,
		state:   Disconnected,
		sendLog: rate.NewLimiter(rate.Every(time.Second), 3),
		recvLog: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	if s.wait <= 0 {
		s.wait = DefaultWait
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	s.state = Joining
	if err := s.transmit(wire.NewCommand(id, wire.JoinGame)); err != nil {
		s.log.Error("join failed", "game", id.GameID, "player", id.PlayerID, "err", err)
	} else {
		s.log.Info("joining game", "game", id.GameID, "player", id.PlayerID)
	}
	s.state = Active
	return s
}

func (s *Session) Identity() wire.Identity { return s.id }
func (s *Session) State() State            { return s.state }
func (s *Session) Stats() Stats            { return s.stats }

// Send transmits one command. Errors are logged and returned; callers in the
// frame loop ignore them.
func (s *Session) Send(t wire.CommandType) error {
	return s.send(wire.NewCommand(s.id, t))
}

func (s *Session) Move(d wire.Direction) error {
	return s.send(wire.NewMove(s.id, d))
}

func (s *Session) send(c wire.Command) error {
	if s.state != Active {
		return ErrSessionClosed
	}
	err := s.transmit(c)
	if err != nil && s.sendLog.Allow() {
		s.log.Warn("send failed", "type", c.Type, "err", err)
	}
	return err
}

func (s *Session) transmit(c wire.Command) error {
	data, err := wire.EncodeCommand(c)
	if err != nil {
		return err
	}
	if s.sealed {
		data = wire.Seal(wire.KindCommand, data)
	}
	if err := s.t.Send(data); err != nil {
		s.stats.SendErrors++
		return fmt.Errorf("send %s: %w", c.Type, err)
	}
	s.stats.Sent++
	return nil
}

// Poll makes exactly one bounded receive attempt. Timeouts, receive errors
// and undecodable packets all yield nil.
func (s *Session) Poll() *wire.Snapshot {
	if s.state != Active {
		return nil
	}
	pkt, err := s.t.Poll(s.wait)
	if err != nil {
		if s.recvLog.Allow() {
			s.log.Warn("receive failed", "err", err)
		}
		return nil
	}
	if pkt == nil {
		return nil
	}
	s.stats.Received++
	s.stats.Bytes += len(pkt)

	snap, err := wire.DecodeSnapshot(pkt)
	if err == nil && snap.GameID != s.id.GameID {
		err = fmt.Errorf("%w: snapshot for game %s", wire.ErrInvalidSnapshot, snap.GameID)
	}
	if err != nil {
		s.stats.Invalid++
		if s.recvLog.Allow() {
			s.log.Debug("dropping packet", "bytes", len(pkt), "err", err)
		}
		return nil
	}
	return snap
}

// Close sends LeaveGame and releases the transport. It is safe to call more
// than once; only the first call does anything.
func (s *Session) Close() error {
	if s.state == Closed || s.state == Leaving {
		return nil
	}
	s.state = Leaving
	if err := s.transmit(wire.NewCommand(s.id, wire.LeaveGame)); err != nil {
		s.log.Warn("leave failed", "err", err)
	}
	err := s.t.Close()
	s.state = Closed
	if err != nil {
		s.log.Error("closing transport", "err", err)
		return fmt.Errorf("close transport: %w", err)
	}
	s.log.Info("left game", "game", s.id.GameID)
	return nil
}
