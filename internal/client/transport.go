package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Transport moves whole datagrams between the client and the game server.
type Transport interface {
	Send(p []byte) error
	// Poll waits at most wait for one datagram. It returns nil, nil when
	// nothing arrived in time.
	Poll(wait time.Duration) ([]byte, error)
	Close() error
}

const (
	MaxDatagram = 4096
	// minWait keeps a zero or negative wait from expiring the deadline before
	// a queued datagram can be read.
	minWait = time.Millisecond
)

// UDPTransport talks to one server over a connected UDP socket, so datagrams
// from any other source are dropped by the kernel.
type UDPTransport struct {
	conn *net.UDPConn
	buf  []byte
}

func DialUDP(addr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &UDPTransport{conn: conn, buf: make([]byte, MaxDatagram)}, nil
}

func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Send(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

func (t *UDPTransport) Poll(wait time.Duration) ([]byte, error) {
	if wait < minWait {
		wait = minWait
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return nil, err
	}
	n, err := t.conn.Read(t.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	p := make([]byte, n)
	copy(p, t.buf[:n])
	return p, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
