package server

import (
	"time"

	"gossip_membership/internal/dataType"
)

type Timeouts struct {
	Suspect time.Duration
	Fail    time.Duration
	Cleanup time.Duration
}

type Transition struct {
	ID   string
	From dataType.Status
	To   dataType.Status
	// Evicted is set when the record was removed instead of changing status.
	Evicted bool
}

// sweep advances every peer's state machine against a single reading of
// now. Each member moves at most one step per sweep. The caller holds the
// table lock.
func sweep(members map[string]*dataType.Member, selfID string, t Timeouts, suspicionEnabled bool, now time.Time) []Transition {
	var out []Transition

	for id, m := range members {
		if id == selfID {
			continue
		}

		switch m.Status {
		case dataType.StatusAlive:
			elapsed := now.Sub(m.LastContact)
			if suspicionEnabled {
				if elapsed > t.Suspect && m.MarkSuspected(now) {
					out = append(out, Transition{ID: id, From: dataType.StatusAlive, To: dataType.StatusSuspected})
				}
			} else if elapsed > t.Fail && m.MarkFailed(now) {
				out = append(out, Transition{ID: id, From: dataType.StatusAlive, To: dataType.StatusFailed})
			}

		case dataType.StatusSuspected:
			since := m.LastContact
			if m.SuspectedAt.After(since) {
				since = m.SuspectedAt
			}
			if now.Sub(since) > t.Fail && m.MarkFailed(now) {
				out = append(out, Transition{ID: id, From: dataType.StatusSuspected, To: dataType.StatusFailed})
			}

		case dataType.StatusFailed:
			if now.Sub(m.FailedAt) > t.Cleanup {
				delete(members, id)
				out = append(out, Transition{ID: id, From: dataType.StatusFailed, To: dataType.StatusFailed, Evicted: true})
			}
		}
	}
	return out
}
