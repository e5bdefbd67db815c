package devserver

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"quadpong/internal/wire"
)

func cmd(r *Room, p Player, t wire.CommandType) wire.Command {
	return wire.Command{GameID: r.ID.String(), PlayerID: p.ID.String(), Type: t}
}

func move(r *Room, p Player, d wire.Direction) wire.Command {
	c := cmd(r, p, wire.MovePaddle)
	c.Direction = d
	return c
}

func TestSeatsInJoinOrder(t *testing.T) {
	r := NewRoom()
	want := []wire.Side{wire.Top, wire.Bottom, wire.Right, wire.Left}
	for i, side := range want {
		p, err := r.AddPlayer("", i%2 == 1)
		if err != nil {
			t.Fatal(err)
		}
		if p.Side != side {
			t.Fatalf("player %d seated %s, want %s", i, p.Side, side)
		}
	}
	if _, err := r.AddPlayer("late", false); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("fifth player: %v", err)
	}
}

func TestDefaultNames(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("", false)
	b, _ := r.AddPlayer("", true)
	if p.Name != "player_1" || b.Name != "bot_2" {
		t.Fatalf("names = %q, %q", p.Name, b.Name)
	}
	if !b.Ready || p.Ready {
		t.Fatal("bots start ready, humans do not")
	}
}

func TestMoveOnlyWhileActive(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("me", false)

	r.Apply(move(r, p, wire.Positive), netip.AddrPort{})
	if got := r.Snapshot().Players[p.ID].PaddlePos; got != 5 {
		t.Fatalf("paddle moved while waiting: %v", got)
	}

	r.Apply(cmd(r, p, wire.StartGame), netip.AddrPort{})
	if r.State() != StateActive {
		t.Fatalf("state = %s", r.State())
	}
	for i := 0; i < 100; i++ {
		r.Apply(move(r, p, wire.Positive), netip.AddrPort{})
	}
	if got := r.Snapshot().Players[p.ID].PaddlePos; got != FieldExtent-paddleWidth/2 {
		t.Fatalf("paddle = %v, want clamped to %v", got, FieldExtent-paddleWidth/2)
	}
	for i := 0; i < 100; i++ {
		r.Apply(move(r, p, wire.Negative), netip.AddrPort{})
	}
	if got := r.Snapshot().Players[p.ID].PaddlePos; got != paddleWidth/2 {
		t.Fatalf("paddle = %v, want clamped to %v", got, paddleWidth/2)
	}
}

func TestReadyStartsGame(t *testing.T) {
	r := NewRoom()
	a, _ := r.AddPlayer("a", false)
	b, _ := r.AddPlayer("b", false)

	r.Apply(cmd(r, a, wire.PlayerReady), netip.AddrPort{})
	if r.State() != StateWaiting {
		t.Fatal("started before everyone was ready")
	}
	r.Apply(cmd(r, b, wire.PlayerReady), netip.AddrPort{})
	if r.State() != StateActive {
		t.Fatalf("state = %s", r.State())
	}
	if r.Snapshot().Ball == nil {
		t.Fatal("no ball after start")
	}
}

func TestPauseResume(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("me", false)
	r.Apply(cmd(r, p, wire.ResumeGame), netip.AddrPort{})
	if r.State() != StateWaiting {
		t.Fatal("resume changed a waiting game")
	}
	r.Apply(cmd(r, p, wire.StartGame), netip.AddrPort{})
	r.Apply(cmd(r, p, wire.PauseGame), netip.AddrPort{})
	if r.State() != StatePaused {
		t.Fatalf("state = %s", r.State())
	}
	before := r.Snapshot().Ball.Position
	r.Tick()
	if r.Snapshot().Ball.Position != before {
		t.Fatal("ball moved while paused")
	}
	r.Apply(cmd(r, p, wire.ResumeGame), netip.AddrPort{})
	if r.State() != StateActive {
		t.Fatalf("state = %s", r.State())
	}
}

func TestBallStaysOnField(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("me", false)
	r.Apply(cmd(r, p, wire.StartGame), netip.AddrPort{})

	for i := 0; i < 5000; i++ {
		r.Tick()
		b := r.Snapshot().Ball
		if b.Position.X < b.Radius || b.Position.X > FieldExtent-b.Radius ||
			b.Position.Y < b.Radius || b.Position.Y > FieldExtent-b.Radius {
			t.Fatalf("tick %d: ball left the field at %+v", i, b.Position)
		}
	}
}

func TestJoinRecordsAddress(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("me", false)
	r.AddPlayer("", true)
	addr := netip.MustParseAddrPort("127.0.0.1:40000")

	if len(r.Addrs()) != 0 {
		t.Fatal("address known before join")
	}
	r.Apply(cmd(r, p, wire.JoinGame), addr)
	if got := r.Addrs(); len(got) != 1 || got[0] != addr {
		t.Fatalf("addrs = %v", got)
	}
	if r.Snapshot().Players[p.ID].Address != addr {
		t.Fatal("address missing from snapshot")
	}
}

func TestLeaveFinishesWhenNoHumansRemain(t *testing.T) {
	r := NewRoom()
	p, _ := r.AddPlayer("me", false)
	r.AddPlayer("", true)
	r.Apply(cmd(r, p, wire.StartGame), netip.AddrPort{})

	r.Apply(cmd(r, p, wire.LeaveGame), netip.AddrPort{})
	if r.State() != StateFinished {
		t.Fatalf("state = %s", r.State())
	}
	if err := r.Apply(cmd(r, p, wire.Ping), netip.AddrPort{}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("command from departed player: %v", err)
	}
}

func TestRemoveBot(t *testing.T) {
	r := NewRoom()
	r.AddPlayer("me", false)
	if err := r.RemoveBot(); !errors.Is(err, ErrNoBots) {
		t.Fatalf("RemoveBot = %v", err)
	}
	r.AddPlayer("", true)
	if err := r.RemoveBot(); err != nil {
		t.Fatal(err)
	}
	if n := len(r.Snapshot().Players); n != 1 {
		t.Fatalf("players = %d", n)
	}
}

func TestSweep(t *testing.T) {
	rg := NewRegistry()
	old := rg.Create()
	old.CreatedAt = time.Now().Add(-2 * RoomTTL)
	busy := rg.Create()
	busy.CreatedAt = old.CreatedAt
	busy.AddPlayer("me", false)
	fresh := rg.Create()

	if n := rg.Sweep(time.Now()); n != 1 {
		t.Fatalf("swept %d rooms", n)
	}
	if _, ok := rg.Get(old.ID); ok {
		t.Fatal("old empty room kept")
	}
	for _, r := range []*Room{busy, fresh} {
		if _, ok := rg.Get(r.ID); !ok {
			t.Fatalf("room %s swept", r.ID)
		}
	}
}
