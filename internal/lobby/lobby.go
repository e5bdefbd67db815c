package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestTimeout bounds every setup request. Requests are never retried.
const RequestTimeout = 5 * time.Second

// Game is the subset of the server's game record the client reads.
type Game struct {
	ID        uuid.UUID `json:"id"`
	State     string    `json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Player struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Score          uint32    `json:"score"`
	Position       *string   `json:"position"`
	PaddlePosition float64   `json:"paddle_position"`
	PaddleWidth    float64   `json:"paddle_width"`
	IsReady        bool      `json:"is_ready"`
	IsAI           bool      `json:"is_ai"`
}

type JoinRequest struct {
	Username *string `json:"username"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: server returned %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client talks to the session setup API.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: RequestTimeout},
		log:  logger,
	}
}

func (c *Client) CreateGame(ctx context.Context) (Game, error) {
	var g Game
	err := c.post(ctx, "/game", nil, &g)
	if err == nil && g.ID == uuid.Nil {
		err = fmt.Errorf("create game: response carried no id")
	}
	return g, err
}

// JoinGame registers a player. An empty name lets the server pick one.
func (c *Client) JoinGame(ctx context.Context, game uuid.UUID, name string) (Player, error) {
	req := JoinRequest{}
	if name != "" {
		req.Username = &name
	}
	var p Player
	err := c.post(ctx, "/game/"+game.String()+"/join", req, &p)
	if err == nil && p.ID == uuid.Nil {
		err = fmt.Errorf("join game: response carried no id")
	}
	return p, err
}

func (c *Client) AddBot(ctx context.Context, game uuid.UUID) (Player, error) {
	var p Player
	err := c.post(ctx, "/game/"+game.String()+"/add_bot", nil, &p)
	return p, err
}

func (c *Client) RemoveBot(ctx context.Context, game uuid.UUID) error {
	return c.post(ctx, "/game/"+game.String()+"/remove_bot", nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	url := c.base + path

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("setup request", "url", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &StatusError{
			Method: http.MethodPost,
			URL:    url,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
