package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"gossip_membership/internal/dataType"
	"gossip_membership/internal/telemetry"
	"gossip_membership/internal/transport"
)

var ErrJoinTimeout = errors.New("introducer did not answer join request")

// Join bootstraps a non-introducer node: it asks the introducer to admit us
// and waits, bounded by JoinTimeout, for the introducer's full table in
// reply. Gossip from anyone else is ignored. It must run before Run, while
// nothing else reads the transport.
func (n *Node) Join(ctx context.Context) error {
	if n.cfg.IsIntroducer() {
		n.logger.Info("acting as introducer")
		return nil
	}

	introducer := n.cfg.IntroducerAddress()
	if err := n.send(introducer, dataType.NewJoinMessage(n.cfg.NodeID, n.transport.LocalAddr())); err != nil {
		return fmt.Errorf("send join to %s: %w", introducer, err)
	}
	n.logger.Info("join request sent", zap.String("introducer", introducer.String()))

	deadline := time.Now().Add(n.cfg.JoinTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%s after %v: %w", introducer, n.cfg.JoinTimeout, ErrJoinTimeout)
		}

		payload, from, err := n.transport.Receive(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return fmt.Errorf("%s after %v: %w", introducer, n.cfg.JoinTimeout, ErrJoinTimeout)
			}
			return fmt.Errorf("wait for join reply: %w", err)
		}

		msg, err := dataType.Decode(payload)
		if err != nil {
			n.logger.Debug("discarding malformed datagram during join", zap.String("from", from.String()), zap.Error(err))
			continue
		}
		if msg.Command != dataType.CommandGossip {
			n.logger.Debug("ignoring non-gossip datagram during join",
				zap.Stringer("command", msg.Command), zap.String("from", from.String()))
			continue
		}
		if !sameEndpoint(from, introducer) {
			n.logger.Debug("ignoring gossip from non-introducer during join", zap.String("from", from.String()))
			continue
		}

		telemetry.MessagesReceived.WithLabelValues(msg.Command.String()).Inc()
		n.merge(msg.Gossip.Members, from.String())
		n.logger.Info("joined cluster", zap.Int("members", n.table.Len()))
		return nil
	}
}

// sameEndpoint reports whether a datagram source is the configured address.
// The source carries an IP while the config may carry a name, so the name is
// resolved before giving up.
func sameEndpoint(from, want dataType.Address) bool {
	if from.Port != want.Port {
		return false
	}
	if from.Host == want.Host {
		return true
	}
	fromIP := net.ParseIP(from.Host)
	if fromIP == nil {
		return false
	}
	ips, err := net.LookupIP(want.Host)
	if err != nil {
		return false
	}
	for _, ip := range ips {
		if ip.Equal(fromIP) {
			return true
		}
	}
	return false
}

// requestJoin sends a Join without waiting; the receive loop merges the
// reply like any other gossip.
func (n *Node) requestJoin() {
	introducer := n.cfg.IntroducerAddress()
	if err := n.send(introducer, dataType.NewJoinMessage(n.cfg.NodeID, n.transport.LocalAddr())); err != nil {
		n.logger.Warn("failed to send join request", zap.String("introducer", introducer.String()), zap.Error(err))
		return
	}
	n.logger.Debug("join request sent", zap.String("introducer", introducer.String()))
}

// handleJoin admits a new member on the introducer and replies with the
// current table. Repeated requests for a known id are ignored.
func (n *Node) handleJoin(req dataType.JoinData) {
	if !n.cfg.IsIntroducer() {
		n.logger.Debug("ignoring join request, not the introducer", zap.String("member", req.ID))
		return
	}

	var (
		known bool
		views map[string]dataType.MemberView
		res   MergeResult
	)
	now := n.now()
	suspicion := n.SuspicionEnabled()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		if _, known = members[req.ID]; known {
			return
		}
		res = reconcile(members, n.cfg.NodeID, map[string]dataType.MemberView{
			req.ID: {
				ID:     req.ID,
				Host:   req.Host,
				Port:   req.Port,
				Status: dataType.StatusAlive,
			},
		}, suspicion, now)
		views = dataType.ViewsLocked(members)
	})

	if known {
		n.logger.Debug("member already known, ignoring join", zap.String("member", req.ID))
		return
	}
	if len(res.Inserted) == 0 {
		return
	}
	n.logger.Info("member joined", zap.String("member", req.ID), zap.String("address", req.Address().String()))

	if err := n.send(req.Address(), dataType.NewGossipMessage(views)); err != nil {
		n.logger.Warn("failed to send table to joiner", zap.String("member", req.ID), zap.Error(err))
	}
}

// handleLeave marks the departing member Failed immediately.
func (n *Node) handleLeave(req dataType.LeaveData, from dataType.Address) {
	if req.ID == n.cfg.NodeID {
		n.logger.Debug("ignoring leave for self", zap.String("from", from.String()))
		return
	}

	var known, changed bool
	now := n.now()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		m, ok := members[req.ID]
		if !ok {
			return
		}
		known = true
		changed = m.MarkFailed(now)
	})

	switch {
	case !known:
		n.logger.Debug("leave for unknown member", zap.String("member", req.ID))
	case changed:
		telemetry.Transitions.WithLabelValues(dataType.StatusFailed.String()).Inc()
		n.logger.Info("member left", zap.String("member", req.ID))
	}
}

// announceLeave tells up to Fanout live peers that we are going away.
func (n *Node) announceLeave() {
	var candidates []peer
	n.table.WithLock(func(members map[string]*dataType.Member) {
		candidates = livePeersLocked(members, n.cfg.NodeID)
	})
	payload, err := dataType.Encode(dataType.NewLeaveMessage(n.cfg.NodeID))
	if err != nil {
		n.logger.Error("failed to encode leave", zap.Error(err))
		return
	}
	for _, p := range n.pickPeers(candidates, n.cfg.Fanout) {
		if err := n.sendRaw(p.addr, payload); err != nil {
			n.logger.Warn("failed to send leave", zap.String("peer", p.id), zap.Error(err))
		}
	}
}

// SetOnline switches between participating and soft-left. Going offline
// announces a Leave first. Coming back takes a fresh incarnation; a joiner
// drops its stale view and asks the introducer again, while the introducer
// keeps its table and restarts every peer's timers.
func (n *Node) SetOnline(online bool) {
	if !online {
		if !n.online.Load() {
			return
		}
		n.announceLeave()
		n.online.Store(false)
		n.logger.Info("node is offline")
		return
	}

	if n.online.Load() {
		return
	}
	now := n.now()
	introducer := n.cfg.IsIntroducer()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		for id, m := range members {
			if id == n.cfg.NodeID {
				m.Incarnation++
				m.Status = dataType.StatusAlive
				m.FailedAt = time.Time{}
				m.LastContact = now
				continue
			}
			if !introducer {
				delete(members, id)
				continue
			}
			if m.Status != dataType.StatusFailed {
				m.LastContact = now
			}
		}
	})
	n.online.Store(true)
	n.logger.Info("node is online", zap.Uint64("incarnation", n.table.Self().Incarnation))

	if !introducer {
		n.requestJoin()
	}
}
