// Package transport moves opaque datagrams between membership nodes.
// Receive always waits for a bounded time so loops can poll their stop
// condition without stalling.
package transport

import (
	"errors"
	"time"

	"gossip_membership/internal/dataType"
)

var (
	ErrTimeout         = errors.New("transport: receive timeout")
	ErrClosed          = errors.New("transport: closed")
	ErrMessageTooLarge = errors.New("transport: message too large")
)

// MaxUDPPayload is the largest payload a single IPv4 UDP datagram can carry.
const MaxUDPPayload = 65507

type Transport interface {
	// Send delivers payload to addr, best effort.
	Send(addr dataType.Address, payload []byte) error
	// Receive waits at most timeout for one datagram. It returns ErrTimeout
	// when nothing arrived.
	Receive(timeout time.Duration) ([]byte, dataType.Address, error)
	LocalAddr() dataType.Address
	Close() error
}
