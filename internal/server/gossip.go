package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"gossip_membership/internal/dataType"
	"gossip_membership/internal/telemetry"
	"gossip_membership/internal/transport"
)

type peer struct {
	id   string
	addr dataType.Address
}

// gossipOnce is one dissemination round: bump our heartbeat, snapshot the
// table, and push it to a random fan-out of live peers.
func (n *Node) gossipOnce() {
	var (
		views      map[string]dataType.MemberView
		candidates []peer
		lonely     bool
	)
	now := n.now()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		if self, ok := members[n.cfg.NodeID]; ok {
			self.Heartbeat++
			self.LastContact = now
		}
		views = dataType.ViewsLocked(members)
		candidates = livePeersLocked(members, n.cfg.NodeID)
		lonely = len(members) == 1
	})

	// A joiner that lost its Join (or was evicted while away) keeps asking.
	if lonely && !n.cfg.IsIntroducer() {
		n.requestJoin()
	}

	targets := n.pickPeers(candidates, n.cfg.Fanout)
	if len(targets) == 0 {
		return
	}

	payload, err := dataType.Encode(dataType.NewGossipMessage(views))
	if err != nil {
		n.logger.Error("failed to encode gossip", zap.Error(err))
		return
	}
	if len(payload) > n.cfg.MaxDatagramSize {
		telemetry.MessagesDropped.WithLabelValues("oversized").Inc()
		n.logger.Error("gossip payload exceeds max datagram size, round skipped",
			zap.Int("bytes", len(payload)),
			zap.Int("limit", n.cfg.MaxDatagramSize),
			zap.Int("members", len(views)))
		return
	}

	for _, p := range targets {
		if err := n.sendRaw(p.addr, payload); err != nil {
			n.logger.Warn("failed to send gossip",
				zap.String("peer", p.id),
				zap.String("address", p.addr.String()),
				zap.Error(err))
			continue
		}
		telemetry.GossipSent.Inc()
	}
	n.logger.Debug("gossip round", zap.Int("targets", len(targets)), zap.Int("members", len(views)))
}

// livePeersLocked lists every member except self and the Failed ones.
func livePeersLocked(members map[string]*dataType.Member, selfID string) []peer {
	out := make([]peer, 0, len(members))
	for id, m := range members {
		if id == selfID || m.Status == dataType.StatusFailed {
			continue
		}
		out = append(out, peer{id: id, addr: m.Address})
	}
	return out
}

// pickPeers chooses up to k distinct candidates uniformly at random.
func (n *Node) pickPeers(candidates []peer, k int) []peer {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}
	perm := n.randPerm(len(candidates))
	out := make([]peer, 0, k)
	for _, i := range perm[:k] {
		out = append(out, candidates[i])
	}
	return out
}

// receiveLoop handles datagrams one at a time until ctx ends or the
// transport is closed.
func (n *Node) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !n.online.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(n.cfg.TUpdate):
			}
			continue
		}

		payload, from, err := n.transport.Receive(n.cfg.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if isClosed(err) {
				return
			}
			n.logger.Warn("receive failed", zap.Error(err))
			continue
		}

		if rate := n.cfg.MessageDropRate; rate > 0 && n.randFloat() < rate {
			telemetry.MessagesDropped.WithLabelValues("simulated").Inc()
			n.logger.Debug("simulated datagram drop", zap.String("from", from.String()))
			continue
		}

		n.handleDatagram(payload, from)
	}
}

func (n *Node) handleDatagram(payload []byte, from dataType.Address) {
	msg, err := dataType.Decode(payload)
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("malformed").Inc()
		n.logger.Debug("discarding malformed datagram", zap.String("from", from.String()), zap.Error(err))
		return
	}
	telemetry.MessagesReceived.WithLabelValues(msg.Command.String()).Inc()

	switch msg.Command {
	case dataType.CommandJoin:
		n.handleJoin(*msg.Join)
	case dataType.CommandLeave:
		n.handleLeave(*msg.Leave, from)
	case dataType.CommandGossip:
		n.merge(msg.Gossip.Members, from.String())
	}
}
