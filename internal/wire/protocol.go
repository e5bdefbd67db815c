package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Client → Server messages

type CommandType string

const (
	JoinGame    CommandType = "JoinGame"
	LeaveGame   CommandType = "LeaveGame"
	PauseGame   CommandType = "PauseGame"
	ResumeGame  CommandType = "ResumeGame"
	StartGame   CommandType = "StartGame"
	MovePaddle  CommandType = "MovePaddle"
	PlayerReady CommandType = "PlayerReady"
	Ping        CommandType = "Ping"
)

func (t CommandType) valid() bool {
	switch t {
	case JoinGame, LeaveGame, PauseGame, ResumeGame, StartGame, MovePaddle, PlayerReady, Ping:
		return true
	}
	return false
}

type Direction string

const (
	Positive Direction = "Positive"
	Negative Direction = "Negative"
)

// Identity tags every command sent for a session.
type Identity struct {
	GameID   uuid.UUID
	PlayerID uuid.UUID
}

// Command is one client action. Direction is only meaningful for MovePaddle.
type Command struct {
	GameID    string
	PlayerID  string
	Type      CommandType
	Direction Direction
}

func NewCommand(id Identity, t CommandType) Command {
	return Command{GameID: id.GameID.String(), PlayerID: id.PlayerID.String(), Type: t}
}

func NewMove(id Identity, d Direction) Command {
	c := NewCommand(id, MovePaddle)
	c.Direction = d
	return c
}

type commandMessage struct {
	GameID   string        `msgpack:"game_id"`
	PlayerID string        `msgpack:"player_id"`
	Action   actionMessage `msgpack:"action"`
}

type actionMessage struct {
	Type string `msgpack:"type"`
	Data string `msgpack:"data,omitempty"`
}

var ErrInvalidCommand = errors.New("invalid command")

// EncodeCommand serializes c as a map with keys game_id, player_id and action,
// always in that order.
func EncodeCommand(c Command) ([]byte, error) {
	if !c.Type.valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
	msg := commandMessage{
		GameID:   c.GameID,
		PlayerID: c.PlayerID,
		Action:   actionMessage{Type: string(c.Type)},
	}
	if c.Type == MovePaddle {
		if c.Direction != Positive && c.Direction != Negative {
			return nil, fmt.Errorf("%w: bad direction %q", ErrInvalidCommand, c.Direction)
		}
		msg.Action.Data = string(c.Direction)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&msg); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCommand accepts a raw command or one sealed in a tagged envelope.
func DecodeCommand(data []byte) (Command, error) {
	if IsEnveloped(data) {
		kind, body, err := Open(data)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if kind != KindCommand {
			return Command{}, fmt.Errorf("%w: envelope kind %d", ErrInvalidCommand, kind)
		}
		data = body
	}

	if err := checkBounds(data); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	var msg commandMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	c := Command{
		GameID:   msg.GameID,
		PlayerID: msg.PlayerID,
		Type:     CommandType(msg.Action.Type),
	}
	if !c.Type.valid() {
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, msg.Action.Type)
	}
	if c.Type == MovePaddle {
		c.Direction = Direction(msg.Action.Data)
		if c.Direction != Positive && c.Direction != Negative {
			return Command{}, fmt.Errorf("%w: bad direction %q", ErrInvalidCommand, msg.Action.Data)
		}
	}
	return c, nil
}
