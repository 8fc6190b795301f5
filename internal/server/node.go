package server

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gossip_membership/internal/config"
	"gossip_membership/internal/dataType"
	"gossip_membership/internal/telemetry"
	"gossip_membership/internal/transport"
)

// Node runs the membership protocol for one process: a receive loop, a
// gossip timer and a failure-detector timer, all sharing one MemberList.
type Node struct {
	cfg       *config.MainConfig
	table     *dataType.MemberList
	transport transport.Transport
	logger    *zap.Logger

	online    atomic.Bool
	suspicion atomic.Bool

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
	wg  sync.WaitGroup
}

func NewNode(cfg *config.MainConfig, tr transport.Transport, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Node{
		cfg:       cfg,
		transport: tr,
		logger:    logger.With(zap.String("node", cfg.NodeID)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	n.table = dataType.NewMemberList(dataType.Member{
		ID:          cfg.NodeID,
		Address:     tr.LocalAddr(),
		Status:      dataType.StatusAlive,
		LastContact: n.now(),
	})
	n.online.Store(true)
	n.suspicion.Store(cfg.SuspicionEnabled)
	return n
}

func (n *Node) ID() string {
	return n.cfg.NodeID
}

func (n *Node) Table() *dataType.MemberList {
	return n.table
}

func (n *Node) Online() bool {
	return n.online.Load()
}

func (n *Node) SuspicionEnabled() bool {
	return n.suspicion.Load()
}

func (n *Node) SetSuspicion(enabled bool) {
	if n.suspicion.Swap(enabled) != enabled {
		n.logger.Info("suspicion strategy changed", zap.Bool("enabled", enabled))
	}
}

func (n *Node) timeouts() Timeouts {
	return Timeouts{Suspect: n.cfg.TSuspect, Fail: n.cfg.TFail, Cleanup: n.cfg.TCleanup}
}

// Run starts the protocol loops and blocks until ctx is cancelled and all
// of them have returned.
func (n *Node) Run(ctx context.Context) {
	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		n.receiveLoop(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.tickLoop(ctx, n.cfg.TGossip, n.gossipOnce)
	}()
	go func() {
		defer n.wg.Done()
		n.tickLoop(ctx, n.cfg.TUpdate, n.detectOnce)
	}()

	n.logger.Info("membership node started",
		zap.String("address", n.transport.LocalAddr().String()),
		zap.Bool("introducer", n.cfg.IsIntroducer()),
		zap.Bool("suspicion", n.SuspicionEnabled()))
	n.wg.Wait()
	n.logger.Info("membership node stopped")
}

// tickLoop calls fn every period while the node is online.
func (n *Node) tickLoop(ctx context.Context, period time.Duration, fn func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !n.online.Load() {
				continue
			}
			fn()
		}
	}
}

func (n *Node) Close() error {
	return n.transport.Close()
}

// merge reconciles an incoming view into the table.
func (n *Node) merge(incoming map[string]dataType.MemberView, from string) MergeResult {
	var res MergeResult
	now := n.now()
	suspicion := n.SuspicionEnabled()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		res = reconcile(members, n.cfg.NodeID, incoming, suspicion, now)
	})

	for _, id := range res.Inserted {
		n.logger.Info("member discovered", zap.String("member", id), zap.String("via", from))
	}
	for _, id := range res.Suspected {
		telemetry.Transitions.WithLabelValues(dataType.StatusSuspected.String()).Inc()
		n.logger.Info("member suspected by peer report", zap.String("member", id), zap.String("via", from))
	}
	for _, id := range res.Failed {
		telemetry.Transitions.WithLabelValues(dataType.StatusFailed.String()).Inc()
		n.logger.Info("member failed by peer report", zap.String("member", id), zap.String("via", from))
	}
	for _, id := range res.Recovered {
		telemetry.Transitions.WithLabelValues(dataType.StatusAlive.String()).Inc()
		n.logger.Info("member refuted suspicion", zap.String("member", id), zap.String("via", from))
	}
	if res.Refuted {
		telemetry.Refutations.Inc()
		n.logger.Warn("refuting suspicion of self",
			zap.Uint64("incarnation", n.table.Self().Incarnation), zap.String("via", from))
	}
	if res.Ignored > 0 {
		n.logger.Debug("ignored gossip entries", zap.Int("count", res.Ignored), zap.String("via", from))
	}
	if res.Changed() {
		n.observe()
	}
	return res
}

// detectOnce runs one failure-detector sweep.
func (n *Node) detectOnce() {
	var transitions []Transition
	now := n.now()
	suspicion := n.SuspicionEnabled()
	n.table.WithLock(func(members map[string]*dataType.Member) {
		transitions = sweep(members, n.cfg.NodeID, n.timeouts(), suspicion, now)
	})

	for _, t := range transitions {
		if t.Evicted {
			telemetry.Evictions.Inc()
			n.logger.Info("member evicted", zap.String("member", t.ID))
			continue
		}
		telemetry.Transitions.WithLabelValues(t.To.String()).Inc()
		n.logger.Info("member timed out",
			zap.String("member", t.ID),
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To))
	}
	n.observe()
}

func (n *Node) observe() {
	for status, count := range n.table.CountByStatus() {
		telemetry.Members.WithLabelValues(status.String()).Set(float64(count))
	}
	self := n.table.Self()
	telemetry.SelfHeartbeat.Set(float64(self.Heartbeat))
	telemetry.SelfIncarnation.Set(float64(self.Incarnation))
}

func (n *Node) randFloat() float64 {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64()
}

func (n *Node) randPerm(k int) []int {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Perm(k)
}

// send encodes msg and hands it to the transport.
func (n *Node) send(addr dataType.Address, msg dataType.Message) error {
	payload, err := dataType.Encode(msg)
	if err != nil {
		return err
	}
	return n.sendRaw(addr, payload)
}

func (n *Node) sendRaw(addr dataType.Address, payload []byte) error {
	if len(payload) > n.cfg.MaxDatagramSize {
		return transport.ErrMessageTooLarge
	}
	if err := n.transport.Send(addr, payload); err != nil {
		telemetry.SendFailures.Inc()
		return err
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, transport.ErrClosed)
}
