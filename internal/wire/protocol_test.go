package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

func TestCommandRoundTrip(t *testing.T) {
	id := Identity{GameID: uuid.New(), PlayerID: uuid.New()}
	cmds := []Command{
		NewCommand(id, JoinGame),
		NewCommand(id, LeaveGame),
		NewCommand(id, PauseGame),
		NewCommand(id, ResumeGame),
		NewCommand(id, StartGame),
		NewCommand(id, PlayerReady),
		NewCommand(id, Ping),
		NewMove(id, Positive),
		NewMove(id, Negative),
	}
	for _, want := range cmds {
		data, err := EncodeCommand(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Type, err)
		}
		got, err := DecodeCommand(data)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Type, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestJoinGameWireShape(t *testing.T) {
	data, err := EncodeCommand(Command{GameID: "g1", PlayerID: "p1", Type: JoinGame})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["game_id"] != "g1" || m["player_id"] != "p1" {
		t.Fatalf("unexpected ids: %v", m)
	}
	action, ok := m["action"].(map[string]any)
	if !ok {
		t.Fatalf("action is %T", m["action"])
	}
	if action["type"] != "JoinGame" {
		t.Fatalf("action type %v", action["type"])
	}
	if _, ok := action["data"]; ok {
		t.Fatalf("JoinGame should carry no data: %v", action)
	}
}

func TestMovePaddleCarriesDirection(t *testing.T) {
	data, err := EncodeCommand(Command{GameID: "g1", PlayerID: "p1", Type: MovePaddle, Direction: Negative})
	if err != nil {
		t.Fatal(err)
	}
	var m struct {
		Action struct {
			Type string `msgpack:"type"`
			Data string `msgpack:"data"`
		} `msgpack:"action"`
	}
	if err := msgpack.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Action.Type != "MovePaddle" || m.Action.Data != "Negative" {
		t.Fatalf("unexpected action %+v", m.Action)
	}
}

func TestEncodeCommandIsStable(t *testing.T) {
	c := Command{GameID: "g1", PlayerID: "p1", Type: MovePaddle, Direction: Positive}
	a, err := EncodeCommand(c)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		b, err := EncodeCommand(c)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("encoding %d differs", i)
		}
	}
}

func TestEncodeCommandRejectsBadInput(t *testing.T) {
	bad := []Command{
		{GameID: "g", PlayerID: "p", Type: "Teleport"},
		{GameID: "g", PlayerID: "p", Type: MovePaddle},
		{GameID: "g", PlayerID: "p", Type: MovePaddle, Direction: "Sideways"},
	}
	for _, c := range bad {
		if _, err := EncodeCommand(c); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("EncodeCommand(%+v) err = %v, want ErrInvalidCommand", c, err)
		}
	}
}

func TestDecodeSealedCommand(t *testing.T) {
	body, err := EncodeCommand(Command{GameID: "g1", PlayerID: "p1", Type: StartGame})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCommand(Seal(KindCommand, body))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != StartGame || got.GameID != "g1" {
		t.Fatalf("unexpected command %+v", got)
	}
	if _, err := DecodeCommand(Seal(KindSnapshot, body)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("snapshot-kind envelope accepted as command: %v", err)
	}
}
