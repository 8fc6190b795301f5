package dataType

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Status is the liveness state of a member. It is only comparable between
// two records carrying the same incarnation.
type Status uint8

const (
	StatusAlive Status = iota
	StatusSuspected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAlive:
		return "ALIVE"
	case StatusSuspected:
		return "SUSPECTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the three transmitted ordinals.
func (s Status) Valid() bool {
	return s <= StatusFailed
}

type Address struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddress parses "host:port".
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("unexpected address format: %s", s)
	}
	if host == "" {
		return Address{}, fmt.Errorf("empty host in address: %s", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("unexpected port in address: %s", s)
	}
	return Address{Host: host, Port: port}, nil
}

// Member is the locally held record of one peer, self included.
// LastContact, SuspectedAt and FailedAt are local clock readings and never
// leave this process.
type Member struct {
	ID          string
	Address     Address
	Heartbeat   uint64
	Incarnation uint64
	Status      Status
	LastContact time.Time
	SuspectedAt time.Time
	FailedAt    time.Time
}

// View returns the wire form of m.
func (m Member) View() MemberView {
	return MemberView{
		ID:          m.ID,
		Host:        m.Address.Host,
		Port:        m.Address.Port,
		Heartbeat:   m.Heartbeat,
		Incarnation: m.Incarnation,
		Status:      m.Status,
	}
}

// MarkFailed moves m into the absorbing Failed state. FailedAt is only
// stamped on the transition so repeated reports cannot postpone eviction.
func (m *Member) MarkFailed(now time.Time) bool {
	if m.Status == StatusFailed {
		return false
	}
	m.Status = StatusFailed
	m.FailedAt = now
	return true
}

// MarkSuspected moves an Alive member to Suspected at the same incarnation.
func (m *Member) MarkSuspected(now time.Time) bool {
	if m.Status != StatusAlive {
		return false
	}
	m.Status = StatusSuspected
	m.SuspectedAt = now
	return true
}

// MemberView is what crosses the wire for one member.
type MemberView struct {
	ID          string `json:"id"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Heartbeat   uint64 `json:"heartbeat"`
	Incarnation uint64 `json:"incarnation"`
	Status      Status `json:"status"`
}

func (v MemberView) Address() Address {
	return Address{Host: v.Host, Port: v.Port}
}
