// Command probe joins a game as an extra player over UDP and prints every
// snapshot it receives as JSON. It never moves its paddle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hako/durafmt"

	"quadpong/internal/client"
	"quadpong/internal/config"
	"quadpong/internal/lobby"
	"quadpong/internal/wire"
)

type record struct {
	At       time.Time      `json:"at"`
	Received int            `json:"received"`
	Bytes    string         `json:"bytes"`
	Invalid  int            `json:"invalid"`
	Snapshot *wire.Snapshot `json:"snapshot"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("probe", "err", err)
		os.Exit(1)
	}
}

func run() error {
	def := config.Default()
	api := flag.String("api", def.APIURL, "session setup API base URL")
	addr := flag.String("addr", def.SocketAddr, "game server UDP address")
	gameID := flag.String("game", "", "game id to watch (required)")
	name := flag.String("name", "probe", "player name to join as")
	sealed := flag.Bool("sealed", false, "wrap commands in the tagged envelope")
	every := flag.Int("every", 1, "print every Nth snapshot")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	id, err := uuid.Parse(*gameID)
	if err != nil {
		return fmt.Errorf("-game: %w", err)
	}
	if *every < 1 {
		*every = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := lobby.NewClient(*api, logger).JoinGame(ctx, id, *name)
	if err != nil {
		return err
	}
	tr, err := client.DialUDP(*addr)
	if err != nil {
		return err
	}
	s := client.Open(wire.Identity{GameID: id, PlayerID: p.ID}, tr, client.Options{
		Wait:   50 * time.Millisecond,
		Sealed: *sealed,
		Logger: logger,
	})
	defer s.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	started := time.Now()
	lastPing := started
	seen := 0
	var created time.Time

	for ctx.Err() == nil {
		if time.Since(lastPing) >= client.PingInterval {
			s.Send(wire.Ping)
			lastPing = time.Now()
		}
		snap := s.Poll()
		if snap == nil {
			continue
		}
		seen++
		if !snap.CreatedAt.IsZero() {
			created = snap.CreatedAt
		}
		if seen%*every != 0 {
			continue
		}
		st := s.Stats()
		if err := enc.Encode(record{
			At:       time.Now(),
			Received: st.Received,
			Bytes:    humanize.Bytes(uint64(st.Bytes)),
			Invalid:  st.Invalid,
			Snapshot: snap,
		}); err != nil {
			return err
		}
	}

	st := s.Stats()
	attrs := []any{
		"duration", durafmt.Parse(time.Since(started).Round(time.Second)).String(),
		"received", humanize.Comma(int64(st.Received)),
		"bytes", humanize.Bytes(uint64(st.Bytes)),
		"invalid", st.Invalid,
	}
	if !created.IsZero() {
		attrs = append(attrs, "game_created", humanize.Time(created))
	}
	logger.Info("probe done", attrs...)
	return nil
}
