package transport

import (
	"fmt"
	"sync"
	"time"

	"gossip_membership/internal/dataType"
)

const memoryQueueSize = 1024

type datagram struct {
	payload []byte
	from    dataType.Address
}

// Network is an in-process datagram fabric. Like UDP it never reports
// delivery failures: datagrams to unknown, isolated or full endpoints are
// silently lost.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*MemoryTransport
	isolated  map[string]bool
}

func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[string]*MemoryTransport),
		isolated:  make(map[string]bool),
	}
}

// Listen registers an endpoint at addr.
func (n *Network) Listen(addr dataType.Address) (*MemoryTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := addr.String()
	if _, ok := n.endpoints[key]; ok {
		return nil, fmt.Errorf("bind %s: address already in use", key)
	}
	t := &MemoryTransport{
		network: n,
		local:   addr,
		queue:   make(chan datagram, memoryQueueSize),
		done:    make(chan struct{}),
	}
	n.endpoints[key] = t
	return t, nil
}

// Isolate drops every datagram sent to or from addr until Heal.
func (n *Network) Isolate(addr dataType.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isolated[addr.String()] = true
}

func (n *Network) Heal(addr dataType.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.isolated, addr.String())
}

func (n *Network) deliver(from, to dataType.Address, payload []byte) {
	n.mu.RLock()
	dst, ok := n.endpoints[to.String()]
	blocked := n.isolated[from.String()] || n.isolated[to.String()]
	n.mu.RUnlock()
	if !ok || blocked {
		return
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case <-dst.done:
	case dst.queue <- datagram{payload: cp, from: from}:
	default:
	}
}

func (n *Network) remove(addr dataType.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, addr.String())
}

type MemoryTransport struct {
	network *Network
	local   dataType.Address
	queue   chan datagram

	closeOnce sync.Once
	done      chan struct{}
}

func (t *MemoryTransport) Send(addr dataType.Address, payload []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if len(payload) > MaxUDPPayload {
		return fmt.Errorf("send %d bytes to %s: %w", len(payload), addr, ErrMessageTooLarge)
	}
	t.network.deliver(t.local, addr, payload)
	return nil
}

func (t *MemoryTransport) Receive(timeout time.Duration) ([]byte, dataType.Address, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return nil, dataType.Address{}, ErrClosed
	case d := <-t.queue:
		return d.payload, d.from, nil
	case <-timer.C:
		return nil, dataType.Address{}, ErrTimeout
	}
}

func (t *MemoryTransport) LocalAddr() dataType.Address {
	return t.local
}

func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.network.remove(t.local)
	})
	return nil
}
