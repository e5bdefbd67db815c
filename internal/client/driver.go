package client

import (
	"log/slog"
	"time"

	"github.com/hako/durafmt"

	"quadpong/internal/game"
	"quadpong/internal/wire"
)

const (
	// StaleAfter is how long the loop waits for a snapshot before warning.
	StaleAfter   = 3 * time.Second
	PingInterval = time.Second

	StatePaused = "Paused"
)

// FrameInput is the local input gathered once at the top of a frame.
type FrameInput struct {
	Quit bool

	// Move is set when the sampler produced Direction this frame.
	Move      bool
	Direction wire.Direction

	Start       bool
	TogglePause bool
	Ready       bool
}

// Driver owns the per-frame synchronization: send input, poll once, merge.
// It holds the mirror for the lifetime of the loop.
type Driver struct {
	session *Session
	mirror  *game.Mirror
	geom    game.Geometry
	log     *slog.Logger
	now     func() time.Time

	frame     uint64
	pingEvery uint64
	done      bool

	started    time.Time
	lastUpdate time.Time
	stale      bool
}

func NewDriver(s *Session, g game.Geometry, fps int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if fps <= 0 {
		fps = 60
	}
	d := &Driver{
		session:   s,
		mirror:    game.NewMirror(s.Identity().PlayerID),
		geom:      g,
		log:       logger,
		now:       time.Now,
		pingEvery: uint64(PingInterval.Seconds() * float64(fps)),
	}
	d.started = d.now()
	d.lastUpdate = d.started
	return d
}

func (d *Driver) Mirror() *game.Mirror { return d.mirror }
func (d *Driver) Done() bool           { return d.done }

// Step runs one frame. It returns true once the loop should stop; nothing
// but in.Quit ends the loop. A quitting frame still polls and merges before
// the session is closed.
func (d *Driver) Step(in FrameInput) bool {
	if d.done {
		return true
	}
	d.frame++

	if !in.Quit {
		d.send(in)
	}

	snap := d.session.Poll()
	d.track(snap)
	d.mirror.Merge(snap)

	if in.Quit {
		d.done = true
		d.session.Close()
		d.log.Info("session over", "duration", durafmt.Parse(d.now().Sub(d.started).Round(time.Second)).String())
	}
	return d.done
}

func (d *Driver) send(in FrameInput) {
	if in.Move {
		d.session.Move(in.Direction)
	}
	if in.Start {
		d.session.Send(wire.StartGame)
	}
	if in.Ready {
		d.session.Send(wire.PlayerReady)
	}
	// Pause follows the server's phase, so a pause by anyone else is resumed.
	if in.TogglePause {
		if d.mirror.State == StatePaused {
			d.session.Send(wire.ResumeGame)
		} else {
			d.session.Send(wire.PauseGame)
		}
	}
	if d.pingEvery > 0 && d.frame%d.pingEvery == 0 {
		d.session.Send(wire.Ping)
	}
}

func (d *Driver) track(snap *wire.Snapshot) {
	now := d.now()
	if snap == nil {
		if !d.stale && now.Sub(d.lastUpdate) > StaleAfter {
			d.stale = true
			d.log.Warn("no updates from server", "since", d.lastUpdate.Format(time.TimeOnly))
		}
		return
	}
	if d.stale {
		d.log.Info("updates resumed", "gap", now.Sub(d.lastUpdate).Round(time.Millisecond))
		d.stale = false
	}
	if snap.State != "" && snap.State != d.mirror.State {
		d.log.Info("game state", "state", snap.State)
	}
	d.lastUpdate = now
}

// Scene maps the current mirror onto the surface.
func (d *Driver) Scene() Scene {
	return BuildScene(d.mirror, d.geom)
}
