package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"quadpong/internal/client"
	"quadpong/internal/config"
	"quadpong/internal/control"
	"quadpong/internal/game"
	"quadpong/internal/lobby"
	"quadpong/internal/render"
	"quadpong/internal/wire"
)

// Game adapts the driver to ebiten's Update/Draw/Layout loop.
type Game struct {
	ctx      context.Context
	driver   *client.Driver
	renderer *render.Renderer
	sampler  control.Sampler[ebiten.Key]
	size     int
}

func (g *Game) Update() error {
	in := client.FrameInput{
		Quit: g.ctx.Err() != nil ||
			ebiten.IsWindowBeingClosed() ||
			inpututil.IsKeyJustPressed(ebiten.KeyEscape),
		Start:       inpututil.IsKeyJustPressed(ebiten.KeySpace),
		TogglePause: inpututil.IsKeyJustPressed(ebiten.KeyP),
		Ready:       inpututil.IsKeyJustPressed(ebiten.KeyR),
	}
	in.Direction, in.Move = g.sampler.Sample(ebiten.IsKeyPressed)

	if g.driver.Step(in) {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.Draw(screen, g.driver.Scene())
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.size, g.size
}

func parseKey(name string) (ebiten.Key, error) {
	var k ebiten.Key
	err := k.UnmarshalText([]byte(name))
	return k, err
}

type options struct {
	configPath string
	gameID     string
	bots       int
}

func main() {
	if err := run(); err != nil {
		slog.Error("quadpong", "err", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	cfg := config.Default()
	flag.StringVar(&opts.configPath, "config", "", "settings file (default "+config.DefaultPath()+")")
	flag.StringVar(&opts.gameID, "game", "", "join an existing game instead of creating one")
	flag.IntVar(&opts.bots, "bots", 0, "number of AI players to add to a new game")
	flag.StringVar(&cfg.APIURL, "api", cfg.APIURL, "session setup API base URL")
	flag.StringVar(&cfg.SocketAddr, "addr", cfg.SocketAddr, "game server UDP address")
	flag.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "game server WebSocket URL")
	flag.StringVar(&cfg.Transport, "transport", cfg.Transport, "udp or ws")
	flag.StringVar(&cfg.PlayerName, "name", cfg.PlayerName, "player name")
	flag.IntVar(&cfg.FPS, "fps", cfg.FPS, "frames per second")
	flag.BoolVar(&cfg.TaggedEnvelope, "sealed", cfg.TaggedEnvelope, "wrap commands in the tagged envelope")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	// File first, then whatever was given on the command line.
	flags := cfg
	cfg = config.Load(opts.configPath, nil)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			cfg.APIURL = flags.APIURL
		case "addr":
			cfg.SocketAddr = flags.SocketAddr
		case "ws":
			cfg.WSURL = flags.WSURL
		case "transport":
			cfg.Transport = flags.Transport
		case "name":
			cfg.PlayerName = flags.PlayerName
		case "fps":
			cfg.FPS = flags.FPS
		case "sealed":
			cfg.TaggedEnvelope = flags.TaggedEnvelope
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	positive, err := control.ParseKeys(cfg.Keys.Positive, parseKey)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	negative, err := control.ParseKeys(cfg.Keys.Negative, parseKey)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	renderer, err := render.NewRenderer(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := setup(ctx, cfg, opts, logger)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	tr, err := dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	session := client.Open(id, tr, client.Options{
		Wait:   cfg.RecvTimeout(),
		Sealed: cfg.TaggedEnvelope,
		Logger: logger,
	})
	defer session.Close()

	g := &Game{
		ctx:      ctx,
		driver:   client.NewDriver(session, game.NewGeometry(float64(cfg.WindowSize)), cfg.FPS, logger),
		renderer: renderer,
		sampler:  control.NewSampler(positive, negative),
		size:     cfg.WindowSize,
	}

	ebiten.SetWindowSize(cfg.WindowSize, cfg.WindowSize)
	ebiten.SetWindowTitle("quadpong")
	ebiten.SetTPS(cfg.FPS)
	ebiten.SetWindowClosingHandled(true)

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	logger.Debug("final stats", "stats", session.Stats())
	return nil
}

// setup creates or joins a game and registers the player.
func setup(ctx context.Context, cfg config.Configuration, opts options, logger *slog.Logger) (wire.Identity, error) {
	api := lobby.NewClient(cfg.APIURL, logger)

	var gameID uuid.UUID
	if opts.gameID != "" {
		id, err := uuid.Parse(opts.gameID)
		if err != nil {
			return wire.Identity{}, fmt.Errorf("game id: %w", err)
		}
		gameID = id
	} else {
		g, err := api.CreateGame(ctx)
		if err != nil {
			return wire.Identity{}, err
		}
		gameID = g.ID
		logger.Info("created game", "game", gameID)

		for i := 0; i < opts.bots; i++ {
			bot, err := api.AddBot(ctx, gameID)
			if err != nil {
				return wire.Identity{}, err
			}
			logger.Info("added bot", "name", bot.Name)
		}
	}

	p, err := api.JoinGame(ctx, gameID, cfg.PlayerName)
	if err != nil {
		return wire.Identity{}, err
	}
	return wire.Identity{GameID: gameID, PlayerID: p.ID}, nil
}

func dial(ctx context.Context, cfg config.Configuration, logger *slog.Logger) (client.Transport, error) {
	if cfg.Transport == "ws" {
		t, err := client.DialWS(ctx, cfg.WSURL, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	t, err := client.DialUDP(cfg.SocketAddr)
	if err != nil {
		return nil, err
	}
	return t, nil
}
