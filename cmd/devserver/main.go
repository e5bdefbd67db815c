package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"quadpong/internal/devserver"
)

func main() {
	httpAddr := flag.String("http", "127.0.0.1:3000", "setup API and WebSocket listen address")
	udpAddr := flag.String("udp", "127.0.0.1:34254", "game UDP listen address")
	sealed := flag.Bool("sealed", false, "wrap snapshots in the tagged envelope")
	debug := flag.Bool("debug", false, "log every dropped command")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ln, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		logger.Error("listen", "addr", *httpAddr, "err", err)
		os.Exit(1)
	}
	ua, err := net.ResolveUDPAddr("udp", *udpAddr)
	if err != nil {
		logger.Error("resolve", "addr", *udpAddr, "err", err)
		os.Exit(1)
	}
	pc, err := net.ListenUDP("udp", ua)
	if err != nil {
		logger.Error("listen", "addr", *udpAddr, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(devserver.Options{Sealed: *sealed, Logger: logger})
	logger.Info("websocket endpoint", "url", "ws://"+ln.Addr().String()+"/ws")
	if err := srv.Serve(ctx, ln, pc); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
