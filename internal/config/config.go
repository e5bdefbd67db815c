package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	MinFPS = 30
	MaxFPS = 240
)

type Keys struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

type Configuration struct {
	LogLevel       string `json:"log_level"`
	APIURL         string `json:"api_url"`
	SocketAddr     string `json:"socket_addr"`
	WSURL          string `json:"ws_url"`
	Transport      string `json:"transport"`
	PlayerName     string `json:"player_name"`
	FPS            int    `json:"fps"`
	RecvTimeoutMS  int    `json:"recv_timeout_ms"`
	TaggedEnvelope bool   `json:"tagged_envelope"`
	Keys           Keys   `json:"keys"`
	PlayerColor    string `json:"player_color"`
	OthersColor    string `json:"other_players_color"`
	WindowSize     int    `json:"window_size"`
}

func Default() Configuration {
	return Configuration{
		LogLevel:      "info",
		APIURL:        "http://127.0.0.1:3000",
		SocketAddr:    "127.0.0.1:34254",
		Transport:     "udp",
		PlayerName:    "player",
		FPS:           60,
		RecvTimeoutMS: 10,
		Keys: Keys{
			Positive: []string{"ArrowUp", "ArrowRight"},
			Negative: []string{"ArrowDown", "ArrowLeft"},
		},
		PlayerColor: "#ffd23f",
		OthersColor: "#f4f4f4",
		WindowSize:  800,
	}
}

// DefaultPath is settings.json under the user config directory, or the
// working directory when there is none.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(dir, "quadpong", "settings.json")
}

// Load reads the file at path on top of Default. A missing or broken file is
// logged and the defaults are used; Load never fails.
func Load(path string, logger *slog.Logger) Configuration {
	if logger == nil {
		logger = slog.Default()
	}
	c := Default()
	if path == "" {
		path = DefaultPath()
	}

	cf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no config file, using defaults", "path", path)
		} else {
			logger.Info("failed to open config, using defaults", "path", path, "err", err)
		}
		return c
	}
	if err := json.Unmarshal(cf, &c); err != nil {
		logger.Info("failed to read configuration, using defaults", "path", path, "err", err)
		return Default()
	}
	c.Normalize()
	return c
}

// Normalize clamps numeric fields and fills empty ones from Default.
func (c *Configuration) Normalize() {
	d := Default()
	if c.FPS == 0 {
		c.FPS = d.FPS
	}
	c.FPS = min(max(c.FPS, MinFPS), MaxFPS)
	if c.RecvTimeoutMS <= 0 {
		c.RecvTimeoutMS = d.RecvTimeoutMS
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	c.Transport = strings.ToLower(c.Transport)
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if len(c.Keys.Positive) == 0 {
		c.Keys.Positive = d.Keys.Positive
	}
	if len(c.Keys.Negative) == 0 {
		c.Keys.Negative = d.Keys.Negative
	}
}

func (c Configuration) Validate() error {
	switch c.Transport {
	case "udp":
		if c.SocketAddr == "" {
			return errors.New("socket_addr is required for udp")
		}
	case "ws":
		if c.WSURL == "" {
			return errors.New("ws_url is required for ws")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if _, err := ParseColor(c.PlayerColor); err != nil {
		return fmt.Errorf("player_color: %w", err)
	}
	if _, err := ParseColor(c.OthersColor); err != nil {
		return fmt.Errorf("other_players_color: %w", err)
	}
	return nil
}

// RecvTimeout is the per-frame receive bound: the configured timeout, but never
// more than half a frame.
func (c Configuration) RecvTimeout() time.Duration {
	t := time.Duration(c.RecvTimeoutMS) * time.Millisecond
	if c.FPS > 0 {
		t = min(t, time.Second/time.Duration(c.FPS)/2)
	}
	return t
}

func (c Configuration) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type RGBA struct {
	R, G, B, A uint8
}

// ParseColor accepts #rgb, #rrggbb and #rrggbbaa.
func ParseColor(s string) (RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGBA{}, fmt.Errorf("bad color %q", s)
	}
	return RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
