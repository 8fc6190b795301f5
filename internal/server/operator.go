package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gossip_membership/internal/dataType"
)

const operatorHelp = `commands:
  online | join           rejoin the group
  offline | leave         announce departure and stop participating
  enable suspicion        turn the suspect phase on
  disable suspicion       turn the suspect phase off
  list_mem | dump         print the membership table
  list_self | self        print this node's record
  help                    show this message
  exit                    close the console
`

// Console applies operator commands to a node through the same locked
// paths the protocol loops use.
type Console struct {
	node *Node
	out  io.Writer
}

func NewConsole(node *Node, out io.Writer) *Console {
	return &Console{node: node, out: out}
}

// Run reads one command per line until EOF, "exit" or ctx cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errCh
			}
			if !c.Execute(line) {
				return nil
			}
		}
	}
}

// Execute runs a single command line. It returns false when the console
// should stop.
func (c *Console) Execute(line string) bool {
	cmd := strings.Join(strings.Fields(strings.ToLower(line)), " ")
	switch cmd {
	case "":
	case "online", "join":
		c.node.SetOnline(true)
		fmt.Fprintln(c.out, "node is online")
	case "offline", "leave":
		c.node.SetOnline(false)
		fmt.Fprintln(c.out, "node is offline")
	case "enable suspicion":
		c.node.SetSuspicion(true)
		fmt.Fprintln(c.out, "suspicion enabled")
	case "disable suspicion":
		c.node.SetSuspicion(false)
		fmt.Fprintln(c.out, "suspicion disabled")
	case "list_mem", "dump":
		c.dump()
	case "list_self", "self":
		c.self()
	case "help":
		fmt.Fprint(c.out, operatorHelp)
	case "exit", "quit":
		fmt.Fprintln(c.out, "closing console")
		return false
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help'\n", line)
	}
	return true
}

func (c *Console) dump() {
	table := c.node.Table()
	members := table.Sorted()
	now := c.node.now()

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tHEARTBEAT\tINCARNATION\tSTATUS\tLAST CONTACT")
	for _, m := range members {
		marker := ""
		if m.ID == table.SelfID() {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%d\t%d\t%s\t%s ago\n",
			m.ID, marker, m.Address, m.Heartbeat, m.Incarnation, m.Status,
			now.Sub(m.LastContact).Truncate(time.Millisecond))
	}
	_ = w.Flush()
	fmt.Fprintf(c.out, "%d members, digest %016x, online=%t, suspicion=%t\n",
		len(members), table.Digest(), c.node.Online(), c.node.SuspicionEnabled())
}

func (c *Console) self() {
	m := c.node.Table().Self()
	fmt.Fprintf(c.out, "id=%s address=%s heartbeat=%d incarnation=%d status=%s\n",
		m.ID, m.Address, m.Heartbeat, m.Incarnation, statusOf(m, c.node.Online()))
}

func statusOf(m dataType.Member, online bool) string {
	if !online {
		return "OFFLINE"
	}
	return m.Status.String()
}
