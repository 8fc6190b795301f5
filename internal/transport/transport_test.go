package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossip_membership/internal/dataType"
)

var (
	addrA = dataType.Address{Host: "127.0.0.1", Port: 7001}
	addrB = dataType.Address{Host: "127.0.0.1", Port: 7002}
)

func TestMemoryTransport_SendReceive(t *testing.T) {
	network := NewNetwork()
	a, err := network.Listen(addrA)
	require.NoError(t, err)
	b, err := network.Listen(addrB)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	payload := []byte("hello")
	require.NoError(t, a.Send(addrB, payload))
	payload[0] = 'j'

	got, from, err := b.Receive(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got, "the fabric copies payloads")
	assert.Equal(t, addrA, from)

	_, _, err = b.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryTransport_LossIsSilent(t *testing.T) {
	network := NewNetwork()
	a, err := network.Listen(addrA)
	require.NoError(t, err)
	b, err := network.Listen(addrB)
	require.NoError(t, err)

	assert.NoError(t, a.Send(dataType.Address{Host: "127.0.0.1", Port: 1}, []byte("x")), "unknown target")

	network.Isolate(addrB)
	assert.NoError(t, a.Send(addrB, []byte("x")))
	assert.NoError(t, b.Send(addrA, []byte("x")))
	_, _, err = b.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	_, _, err = a.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	network.Heal(addrB)
	require.NoError(t, a.Send(addrB, []byte("y")))
	got, _, err := b.Receive(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), got)
}

func TestMemoryTransport_Close(t *testing.T) {
	network := NewNetwork()
	a, err := network.Listen(addrA)
	require.NoError(t, err)

	_, err = network.Listen(addrA)
	assert.Error(t, err, "address already in use")

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, _, err = a.Receive(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send(addrB, []byte("x")), ErrClosed)

	again, err := network.Listen(addrA)
	require.NoError(t, err, "closing frees the address")
	_ = again.Close()
}

func TestMemoryTransport_TooLarge(t *testing.T) {
	network := NewNetwork()
	a, err := network.Listen(addrA)
	require.NoError(t, err)
	defer a.Close()
	assert.ErrorIs(t, a.Send(addrB, make([]byte, MaxUDPPayload+1)), ErrMessageTooLarge)
}

func TestUDPTransport_Loopback(t *testing.T) {
	a, err := ListenUDP(dataType.Address{Host: "127.0.0.1", Port: 0}, 1024)
	require.NoError(t, err)
	defer a.Close()
	b, err := ListenUDP(dataType.Address{Host: "127.0.0.1", Port: 0}, 1024)
	require.NoError(t, err)
	defer b.Close()

	require.NotZero(t, a.LocalAddr().Port)
	assert.Equal(t, a.LocalAddr().String(), a.BoundAddr())

	payload := bytes.Repeat([]byte("g"), 512)
	require.NoError(t, a.Send(b.LocalAddr(), payload))
	got, from, err := b.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, a.LocalAddr().Port, from.Port)

	_, _, err = b.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	assert.ErrorIs(t, a.Send(b.LocalAddr(), make([]byte, 1025)), ErrMessageTooLarge)
}

func TestUDPTransport_Close(t *testing.T) {
	a, err := ListenUDP(dataType.Address{Host: "127.0.0.1", Port: 0}, 0)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, _, err = a.Receive(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}
