package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"quadpong/internal/client"
	"quadpong/internal/lobby"
	"quadpong/internal/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// startServer runs a dev server on loopback and returns its HTTP base URL and
// UDP address.
func startServer(t *testing.T, opts Options) (*Server, string, string) {
	t.Helper()
	opts.Logger = quiet
	s := New(opts)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback TCP: %v", err)
	}
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		ln.Close()
		t.Skipf("no loopback UDP: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, pc) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return s, "http://" + ln.Addr().String(), pc.LocalAddr().String()
}

func setup(t *testing.T, base string) wire.Identity {
	t.Helper()
	ctx := context.Background()
	api := lobby.NewClient(base, quiet)
	g, err := api.CreateGame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p, err := api.JoinGame(ctx, g.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	return wire.Identity{GameID: g.ID, PlayerID: p.ID}
}

// waitFor polls s until match accepts a snapshot or the deadline passes.
func waitFor(t *testing.T, s *client.Session, match func(*wire.Snapshot) bool) *wire.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Poll(); snap != nil && match(snap) {
			return snap
		}
	}
	t.Fatal("no matching snapshot before deadline")
	return nil
}

func TestUDPSession(t *testing.T) {
	_, base, udpAddr := startServer(t, Options{})
	id := setup(t, base)

	tr, err := client.DialUDP(udpAddr)
	if err != nil {
		t.Fatal(err)
	}
	s := client.Open(id, tr, client.Options{Wait: 20 * time.Millisecond, Logger: quiet})
	defer s.Close()

	snap := waitFor(t, s, func(*wire.Snapshot) bool { return true })
	me, ok := snap.Players[id.PlayerID]
	if !ok || me.Position != wire.Top || me.Name != "tester" {
		t.Fatalf("players = %+v", snap.Players)
	}
	if snap.State != StateWaiting || snap.Ball != nil {
		t.Fatalf("state %q ball %v", snap.State, snap.Ball)
	}

	s.Send(wire.StartGame)
	waitFor(t, s, func(sn *wire.Snapshot) bool { return sn.State == StateActive && sn.Ball != nil })

	for i := 0; i < 3; i++ {
		s.Move(wire.Positive)
	}
	waitFor(t, s, func(sn *wire.Snapshot) bool {
		return sn.Players[id.PlayerID].PaddlePos > 5.8
	})
}

func TestSealedSnapshots(t *testing.T) {
	_, base, udpAddr := startServer(t, Options{Sealed: true})
	id := setup(t, base)

	tr, err := client.DialUDP(udpAddr)
	if err != nil {
		t.Fatal(err)
	}
	s := client.Open(id, tr, client.Options{Wait: 20 * time.Millisecond, Sealed: true, Logger: quiet})
	defer s.Close()

	waitFor(t, s, func(sn *wire.Snapshot) bool { return sn.GameID == id.GameID })
}

func TestWebSocketSession(t *testing.T) {
	_, base, _ := startServer(t, Options{})
	id := setup(t, base)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tr, err := client.DialWS(ctx, "ws"+strings.TrimPrefix(base, "http")+"/ws", quiet)
	if err != nil {
		t.Fatal(err)
	}
	s := client.Open(id, tr, client.Options{Wait: 20 * time.Millisecond, Logger: quiet})
	defer s.Close()

	snap := waitFor(t, s, func(*wire.Snapshot) bool { return true })
	if _, ok := snap.Players[id.PlayerID]; !ok {
		t.Fatalf("players = %+v", snap.Players)
	}
}

func TestLeaveEndsGame(t *testing.T) {
	srv, base, udpAddr := startServer(t, Options{})
	id := setup(t, base)

	tr, err := client.DialUDP(udpAddr)
	if err != nil {
		t.Fatal(err)
	}
	s := client.Open(id, tr, client.Options{Logger: quiet})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	room, _ := srv.Rooms().Get(id.GameID)
	deadline := time.Now().Add(3 * time.Second)
	for room.State() != StateFinished {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s after leave", room.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIErrors(t *testing.T) {
	s := New(Options{Logger: quiet})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/game/not-a-uuid/join", http.StatusBadRequest},
		{"/game/" + uuid.NewString() + "/join", http.StatusNotFound},
		{"/game/" + uuid.NewString() + "/add_bot", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+tt.path, "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("POST %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestAPIBots(t *testing.T) {
	s := New(Options{Logger: quiet})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx := context.Background()
	api := lobby.NewClient(ts.URL, quiet)
	g, err := api.CreateGame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxPlayers; i++ {
		if _, err := api.AddBot(ctx, g.ID); err != nil {
			t.Fatal(err)
		}
	}
	_, err = api.JoinGame(ctx, g.ID, "")
	var se *lobby.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict {
		t.Fatalf("join full room: %v", err)
	}
	if err := api.RemoveBot(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	p, err := api.JoinGame(ctx, g.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Position == nil || *p.Position == "" {
		t.Fatalf("player = %+v", p)
	}

	resp, err := http.Get(ts.URL + "/game/" + g.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got lobby.Game
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil || got.ID != g.ID {
		t.Fatalf("GET game = %+v, %v", got, err)
	}
}
