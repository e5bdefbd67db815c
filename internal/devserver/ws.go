package devserver

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quadpong/internal/wire"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // loopback development only
	},
}

// Connection is one WebSocket client. Each binary message carries one command
// in, or one snapshot out.
type Connection struct {
	srv  *Server
	conn *websocket.Conn
	send chan []byte
	game uuid.UUID
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", "err", err)
		return
	}
	c := &Connection{
		srv:  s,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	go c.writePump()
	go c.readPump()
	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)
}

// Offer queues a datagram, dropping it when the client is not keeping up.
func (c *Connection) Offer(p []byte) {
	select {
	case c.send <- p:
	default:
		if c.srv.dropLog.Allow() {
			c.srv.log.Warn("websocket send buffer full", "game", c.game)
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.srv.unsubscribe(c)
		close(c.send)
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.srv.log.Warn("websocket error", "err", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		cmd, err := c.srv.handleDatagram(message, netip.AddrPort{})
		if err != nil {
			continue
		}
		switch cmd.Type {
		case wire.JoinGame:
			if id, err := uuid.Parse(cmd.GameID); err == nil {
				c.srv.subscribe(id, c)
			}
		case wire.LeaveGame:
			c.srv.unsubscribe(c)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
