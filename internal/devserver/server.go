// Package devserver is a loopback stand-in for the game server: the HTTP setup
// endpoints, a UDP endpoint and a WebSocket endpoint that accept client
// commands and broadcast snapshots at TickRate.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"quadpong/internal/client"
	"quadpong/internal/wire"
)

type Options struct {
	// Sealed wraps outgoing snapshots in the tagged envelope.
	Sealed bool
	Logger *slog.Logger
}

type Server struct {
	rooms  *Registry
	log    *slog.Logger
	sealed bool

	mu   sync.RWMutex
	udp  *net.UDPConn
	subs map[uuid.UUID]map[*Connection]struct{}

	badLog  *rate.Limiter
	dropLog *rate.Limiter
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		rooms:   NewRegistry(),
		log:     logger,
		sealed:  opts.Sealed,
		subs:    make(map[uuid.UUID]map[*Connection]struct{}),
		badLog:  rate.NewLimiter(rate.Every(time.Second), 5),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *Server) Rooms() *Registry { return s.rooms }

// Handler serves the setup API and the WebSocket endpoint.
func (s *Server) Handler() http.Handler { return s.routes() }

// Serve runs the HTTP listener, the UDP endpoint and the tick loop until ctx is
// done or one of them fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener, pc *net.UDPConn) error {
	s.mu.Lock()
	s.udp = pc
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	hs := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pc.Close()
		return hs.Shutdown(shutdown)
	})
	g.Go(func() error { return s.serveUDP(ctx, pc) })
	g.Go(func() error { return s.runTicks(ctx) })

	s.log.Info("dev server listening", "http", ln.Addr(), "udp", pc.LocalAddr())
	return g.Wait()
}

func (s *Server) serveUDP(ctx context.Context, pc *net.UDPConn) error {
	buf := make([]byte, client.MaxDatagram)
	for {
		n, from, err := pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if s.badLog.Allow() {
				s.log.Warn("udp read", "err", err)
			}
			continue
		}
		s.handleDatagram(buf[:n], from)
	}
}

// handleDatagram decodes and applies one command. Failures are logged, rate
// limited, and returned for callers that care.
func (s *Server) handleDatagram(data []byte, from netip.AddrPort) (wire.Command, error) {
	cmd, err := wire.DecodeCommand(data)
	if err == nil {
		err = s.apply(cmd, from)
	}
	if err != nil {
		if s.badLog.Allow() {
			s.log.Debug("dropping command", "from", from, "bytes", len(data), "err", err)
		}
		return wire.Command{}, err
	}
	return cmd, nil
}

func (s *Server) apply(cmd wire.Command, from netip.AddrPort) error {
	id, err := uuid.Parse(cmd.GameID)
	if err != nil {
		return fmt.Errorf("bad game id %q", cmd.GameID)
	}
	room, ok := s.rooms.Get(id)
	if !ok {
		return fmt.Errorf("game %s not found", id)
	}
	before := room.State()
	if err := room.Apply(cmd, from); err != nil {
		return err
	}
	if after := room.State(); after != before {
		s.log.Info("game state", "game", id, "from", before, "to", after, "by", cmd.Type)
	}
	return nil
}

func (s *Server) runTicks(ctx context.Context) error {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweep.C:
			if n := s.rooms.Sweep(now); n > 0 {
				s.log.Info("swept rooms", "count", n)
			}
		case <-ticker.C:
			for _, room := range s.rooms.Rooms() {
				room.Tick()
				s.broadcast(room)
			}
		}
	}
}

func (s *Server) encode(snap *wire.Snapshot) ([]byte, error) {
	data, err := wire.EncodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if s.sealed {
		data = wire.Seal(wire.KindSnapshot, data)
	}
	return data, nil
}

// broadcast sends the room's snapshot to every joined UDP address and every
// subscribed WebSocket client.
func (s *Server) broadcast(room *Room) {
	data, err := s.encode(room.Snapshot())
	if err != nil {
		s.log.Error("encode snapshot", "game", room.ID, "err", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.udp != nil {
		for _, addr := range room.Addrs() {
			if _, err := s.udp.WriteToUDPAddrPort(data, addr); err != nil && s.dropLog.Allow() {
				s.log.Warn("udp write", "to", addr, "err", err)
			}
		}
	}
	for c := range s.subs[room.ID] {
		c.Offer(data)
	}
}

func (s *Server) subscribe(game uuid.UUID, c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.game != uuid.Nil {
		delete(s.subs[c.game], c)
	}
	if s.subs[game] == nil {
		s.subs[game] = make(map[*Connection]struct{})
	}
	s.subs[game][c] = struct{}{}
	c.game = game
}

func (s *Server) unsubscribe(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.game == uuid.Nil {
		return
	}
	delete(s.subs[c.game], c)
	if len(s.subs[c.game]) == 0 {
		delete(s.subs, c.game)
	}
	c.game = uuid.Nil
}
