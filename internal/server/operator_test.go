package server

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossip_membership/internal/dataType"
	"gossip_membership/internal/transport"
)

func TestConsole_Commands(t *testing.T) {
	network := transport.NewNetwork()
	n := newTestNode(t, network, testConfig("a", 9001, 9001))
	n.merge(views(dataType.MemberView{ID: "b", Host: "127.0.0.1", Port: 9002}), "test")

	var out bytes.Buffer
	c := NewConsole(n, &out)

	assert.True(t, c.Execute("enable suspicion"))
	assert.True(t, n.SuspicionEnabled())
	assert.True(t, c.Execute("  DISABLE   suspicion "))
	assert.False(t, n.SuspicionEnabled())

	out.Reset()
	assert.True(t, c.Execute("list_mem"))
	dump := out.String()
	assert.Contains(t, dump, "a *")
	assert.Contains(t, dump, "b")
	assert.Contains(t, dump, "127.0.0.1:9002")
	assert.Contains(t, dump, "2 members")

	out.Reset()
	assert.True(t, c.Execute("self"))
	assert.Contains(t, out.String(), "id=a")
	assert.Contains(t, out.String(), "status=ALIVE")

	out.Reset()
	assert.True(t, c.Execute("frobnicate"))
	assert.Contains(t, out.String(), `unknown command "frobnicate"`)

	out.Reset()
	assert.True(t, c.Execute("help"))
	assert.Contains(t, out.String(), "list_mem")

	assert.True(t, c.Execute(""))
	assert.False(t, c.Execute("exit"))
}

func TestConsole_OfflineOnline(t *testing.T) {
	network := transport.NewNetwork()
	n := newTestNode(t, network, testConfig("a", 9001, 9001))
	peer := probe(t, network, 9100)
	n.merge(views(dataType.MemberView{ID: "p1", Host: "127.0.0.1", Port: 9100}), "test")

	var out bytes.Buffer
	c := NewConsole(n, &out)

	require.True(t, c.Execute("leave"))
	assert.False(t, n.Online())
	msg := receiveMessage(t, peer, 50*time.Millisecond)
	require.Equal(t, dataType.CommandLeave, msg.Command)
	assert.Equal(t, "a", msg.Leave.ID)

	out.Reset()
	c.Execute("list_self")
	assert.Contains(t, out.String(), "status=OFFLINE")

	require.True(t, c.Execute("join"))
	assert.True(t, n.Online())
	assert.Equal(t, uint64(1), n.Table().Self().Incarnation)
	_, ok := n.Table().Get("p1")
	assert.True(t, ok, "the introducer keeps its table across a rejoin")
}

func TestConsole_RunStopsOnExitAndEOF(t *testing.T) {
	network := transport.NewNetwork()
	n := newTestNode(t, network, testConfig("a", 9001, 9001))

	var out bytes.Buffer
	c := NewConsole(n, &out)
	err := c.Run(context.Background(), strings.NewReader("enable suspicion\nexit\ndisable suspicion\n"))
	require.NoError(t, err)
	assert.True(t, n.SuspicionEnabled(), "commands after exit are not run")

	err = c.Run(context.Background(), strings.NewReader("disable suspicion\n"))
	require.NoError(t, err)
	assert.False(t, n.SuspicionEnabled())
}
