package dataType

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyPayload   = errors.New("empty payload")
)

// Command tags every datagram.
type Command uint8

const (
	CommandJoin Command = iota
	CommandLeave
	CommandGossip
)

func (c Command) String() string {
	switch c {
	case CommandJoin:
		return "JOIN"
	case CommandLeave:
		return "LEAVE"
	case CommandGossip:
		return "GOSSIP"
	default:
		return "UNKNOWN"
	}
}

type JoinData struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (j JoinData) Address() Address {
	return Address{Host: j.Host, Port: j.Port}
}

type LeaveData struct {
	ID string `json:"id"`
}

type GossipData struct {
	Members map[string]MemberView `json:"members"`
}

// Message is a decoded datagram. Exactly one of Join, Leave, Gossip is set,
// matching Command.
type Message struct {
	Command Command
	Join    *JoinData
	Leave   *LeaveData
	Gossip  *GossipData
}

type envelope struct {
	Command Command         `json:"command"`
	Data    json.RawMessage `json:"data"`
}

func NewJoinMessage(id string, addr Address) Message {
	return Message{Command: CommandJoin, Join: &JoinData{ID: id, Host: addr.Host, Port: addr.Port}}
}

func NewLeaveMessage(id string) Message {
	return Message{Command: CommandLeave, Leave: &LeaveData{ID: id}}
}

func NewGossipMessage(members map[string]MemberView) Message {
	return Message{Command: CommandGossip, Gossip: &GossipData{Members: members}}
}

// Encode marshals msg into its tagged JSON envelope.
func Encode(msg Message) ([]byte, error) {
	// Check the typed pointer before it is boxed: a nil *T in an any is not nil.
	var (
		data  any
		empty bool
	)
	switch msg.Command {
	case CommandJoin:
		data, empty = msg.Join, msg.Join == nil
	case CommandLeave:
		data, empty = msg.Leave, msg.Leave == nil
	case CommandGossip:
		data, empty = msg.Gossip, msg.Gossip == nil
	default:
		return nil, fmt.Errorf("encode %d: %w", msg.Command, ErrUnknownCommand)
	}
	if empty {
		return nil, fmt.Errorf("encode %s: %w", msg.Command, ErrEmptyPayload)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Command, err)
	}
	return json.Marshal(envelope{Command: msg.Command, Data: raw})
}

// Decode parses a datagram. Payloads that do not match their tag are
// rejected so callers can discard them without touching state.
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Message{}, fmt.Errorf("decode %s: %w", env.Command, ErrEmptyPayload)
	}

	msg := Message{Command: env.Command}
	switch env.Command {
	case CommandJoin:
		var j JoinData
		if err := json.Unmarshal(env.Data, &j); err != nil {
			return Message{}, fmt.Errorf("decode join: %w", err)
		}
		if j.ID == "" || j.Host == "" || j.Port <= 0 || j.Port > 65535 {
			return Message{}, fmt.Errorf("decode join: incomplete request %+v", j)
		}
		msg.Join = &j
	case CommandLeave:
		var l LeaveData
		if err := json.Unmarshal(env.Data, &l); err != nil {
			return Message{}, fmt.Errorf("decode leave: %w", err)
		}
		if l.ID == "" {
			return Message{}, fmt.Errorf("decode leave: missing id")
		}
		msg.Leave = &l
	case CommandGossip:
		var g GossipData
		if err := json.Unmarshal(env.Data, &g); err != nil {
			return Message{}, fmt.Errorf("decode gossip: %w", err)
		}
		for id, v := range g.Members {
			if id == "" || v.ID != id || !v.Status.Valid() {
				return Message{}, fmt.Errorf("decode gossip: invalid member entry %q", id)
			}
		}
		if g.Members == nil {
			g.Members = map[string]MemberView{}
		}
		msg.Gossip = &g
	default:
		return Message{}, fmt.Errorf("decode %d: %w", env.Command, ErrUnknownCommand)
	}
	return msg, nil
}
