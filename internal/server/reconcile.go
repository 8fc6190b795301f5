package server

import (
	"time"

	"gossip_membership/internal/dataType"
)

// statusPair is a status together with the incarnation it was asserted at.
type statusPair struct {
	Incarnation uint64
	Status      dataType.Status
}

// mergeStatus decides which status pair a record holds after seeing
// incoming. Failed is absorbing; otherwise a higher incarnation wins, and at
// equal incarnation Suspected beats Alive.
func mergeStatus(local, incoming statusPair) statusPair {
	switch {
	case local.Status == dataType.StatusFailed:
		return local
	case incoming.Status == dataType.StatusFailed:
		return statusPair{Incarnation: max(local.Incarnation, incoming.Incarnation), Status: dataType.StatusFailed}
	case incoming.Incarnation > local.Incarnation:
		return incoming
	case incoming.Incarnation == local.Incarnation &&
		incoming.Status == dataType.StatusSuspected &&
		local.Status == dataType.StatusAlive:
		return incoming
	default:
		return local
	}
}

// dampSuspicion reports Suspected as Alive on a node that does not run the
// suspicion phase itself.
func dampSuspicion(s dataType.Status, suspicionEnabled bool) dataType.Status {
	if s == dataType.StatusSuspected && !suspicionEnabled {
		return dataType.StatusAlive
	}
	return s
}

type MergeResult struct {
	Inserted  []string
	Suspected []string
	Failed    []string
	Recovered []string
	Refuted   bool
	Ignored   int
}

func (r MergeResult) Changed() bool {
	return len(r.Inserted)+len(r.Suspected)+len(r.Failed)+len(r.Recovered) > 0 || r.Refuted
}

// reconcile folds incoming into members. The caller holds the table lock.
// Local clock readings are always taken from now, never from the sender.
func reconcile(members map[string]*dataType.Member, selfID string, incoming map[string]dataType.MemberView, suspicionEnabled bool, now time.Time) MergeResult {
	var res MergeResult

	for id, in := range incoming {
		if id == "" || in.ID != id {
			res.Ignored++
			continue
		}
		if id == selfID {
			if reconcileSelf(members[selfID], in) {
				res.Refuted = true
			}
			continue
		}

		status := dampSuspicion(in.Status, suspicionEnabled)
		local, ok := members[id]
		if !ok {
			if status == dataType.StatusFailed {
				res.Ignored++
				continue
			}
			m := &dataType.Member{
				ID:          id,
				Address:     in.Address(),
				Heartbeat:   in.Heartbeat,
				Incarnation: in.Incarnation,
				Status:      status,
				LastContact: now,
			}
			if status == dataType.StatusSuspected {
				m.SuspectedAt = now
			}
			members[id] = m
			res.Inserted = append(res.Inserted, id)
			continue
		}

		if in.Heartbeat > local.Heartbeat {
			local.Heartbeat = in.Heartbeat
			local.LastContact = now
		}

		before := statusPair{Incarnation: local.Incarnation, Status: local.Status}
		after := mergeStatus(before, statusPair{Incarnation: in.Incarnation, Status: status})
		if after == before {
			continue
		}
		if after.Incarnation > before.Incarnation && after.Status != dataType.StatusFailed {
			local.Address = in.Address()
		}
		local.Incarnation = after.Incarnation

		switch after.Status {
		case dataType.StatusFailed:
			local.MarkFailed(now)
			res.Failed = append(res.Failed, id)
		case dataType.StatusSuspected:
			if before.Status != dataType.StatusSuspected {
				local.Status = dataType.StatusSuspected
				local.SuspectedAt = now
				res.Suspected = append(res.Suspected, id)
			} else if after.Incarnation != before.Incarnation {
				// suspected again after a refutation we never saw
				local.SuspectedAt = now
			}
		case dataType.StatusAlive:
			if before.Status != dataType.StatusAlive {
				local.Status = dataType.StatusAlive
				local.SuspectedAt = time.Time{}
				res.Recovered = append(res.Recovered, id)
			}
		}
	}
	return res
}

// reconcileSelf applies what a peer says about this node. Any suspicion is
// refuted by moving past both incarnations, so even a stale report that is
// still circulating gets an Alive answer that outranks it. A Failed report
// is never adopted for self. It returns true on refutation.
func reconcileSelf(self *dataType.Member, in dataType.MemberView) bool {
	if self == nil {
		return false
	}
	if in.Heartbeat > self.Heartbeat {
		self.Heartbeat = in.Heartbeat
	}
	if in.Status == dataType.StatusSuspected {
		self.Incarnation = max(self.Incarnation, in.Incarnation) + 1
		self.Status = dataType.StatusAlive
		self.FailedAt = time.Time{}
		return true
	}
	if in.Incarnation > self.Incarnation {
		self.Incarnation = in.Incarnation
	}
	self.Status = dataType.StatusAlive
	self.FailedAt = time.Time{}
	return false
}
