package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 2 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var (
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrTransportClosed = errors.New("transport closed")
)

// WSTransport carries one datagram per binary WebSocket message. A read pump
// keeps only the newest message, so a slow frame never sees a backlog of
// stale snapshots.
type WSTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	latest chan []byte
	done   chan struct{}
	wrote  chan struct{}
	log    *slog.Logger

	mu      sync.Mutex
	closed  bool
	readErr error
}

func DialWS(ctx context.Context, url string, logger *slog.Logger) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &WSTransport{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		latest: make(chan []byte, 1),
		done:   make(chan struct{}),
		wrote:  make(chan struct{}),
		log:    logger,
	}

	go t.readPump()
	go t.writePump()

	return t, nil
}

func (t *WSTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	select {
	case t.send <- p:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (t *WSTransport) Poll(wait time.Duration) ([]byte, error) {
	select {
	case p := <-t.latest:
		return p, nil
	default:
	}
	if wait <= 0 {
		return nil, t.pollErr()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case p := <-t.latest:
		return p, nil
	case <-t.done:
		return nil, t.pollErr()
	case <-timer.C:
		return nil, nil
	}
}

func (t *WSTransport) pollErr() error {
	select {
	case <-t.done:
	default:
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, t.readErr)
	}
	return ErrTransportClosed
}

// Close stops the write pump after it flushes queued datagrams and a close
// frame, then releases the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.send)
	t.mu.Unlock()

	select {
	case <-t.wrote:
	case <-time.After(writeWait):
		t.log.Warn("websocket writer did not finish in time")
	}
	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (t *WSTransport) readPump() {
	defer close(t.done)

	for {
		mt, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Warn("websocket read error", "err", err)
			}
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		t.offer(message)
	}
}

// offer replaces whatever is waiting in the mailbox with message.
func (t *WSTransport) offer(message []byte) {
	for {
		select {
		case t.latest <- message:
			return
		default:
		}
		select {
		case <-t.latest:
		default:
		}
	}
}

func (t *WSTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(t.wrote)
	}()

	for {
		select {
		case message, ok := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				t.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := t.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				t.log.Warn("websocket write error", "err", err)
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
