package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"gossip_membership/internal/dataType"
)

// UDPTransport is a Transport over a single bound UDP socket. Receive is
// meant to be called from one goroutine; Send is safe for concurrent use.
type UDPTransport struct {
	conn    *net.UDPConn
	local   dataType.Address
	maxSize int
	buf     []byte

	mu     sync.Mutex
	closed bool
}

// ListenUDP binds addr. The advertised address keeps the configured host so
// peers learn a name they can route to even when binding a wildcard.
func ListenUDP(addr dataType.Address, maxSize int) (*UDPTransport, error) {
	if maxSize <= 0 || maxSize > MaxUDPPayload {
		maxSize = MaxUDPPayload
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	local := addr
	if local.Port == 0 {
		local.Port = conn.LocalAddr().(*net.UDPAddr).Port
	}

	return &UDPTransport{
		conn:    conn,
		local:   local,
		maxSize: maxSize,
		buf:     make([]byte, MaxUDPPayload),
	}, nil
}

func (t *UDPTransport) Send(addr dataType.Address, payload []byte) error {
	if len(payload) > t.maxSize {
		return fmt.Errorf("send %d bytes to %s: %w", len(payload), addr, ErrMessageTooLarge)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	if _, err := t.conn.WriteToUDP(payload, udpAddr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}

func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, dataType.Address, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, dataType.Address{}, ErrClosed
		}
		return nil, dataType.Address{}, err
	}

	n, from, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, dataType.Address{}, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, dataType.Address{}, ErrClosed
		}
		return nil, dataType.Address{}, fmt.Errorf("receive: %w", err)
	}

	payload := make([]byte, n)
	copy(payload, t.buf[:n])
	return payload, dataType.Address{Host: from.IP.String(), Port: from.Port}, nil
}

func (t *UDPTransport) LocalAddr() dataType.Address {
	return t.local
}

// BoundAddr is the socket address as the kernel sees it.
func (t *UDPTransport) BoundAddr() string {
	a := t.conn.LocalAddr().(*net.UDPAddr)
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
