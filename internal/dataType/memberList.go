package dataType

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MemberList is the membership table. Every read that spans more than one
// field, and every write, happens under mu. Nothing in here performs I/O.
type MemberList struct {
	mu      sync.Mutex
	selfID  string
	members map[string]*Member
}

func NewMemberList(self Member) *MemberList {
	m := self
	return &MemberList{
		selfID:  self.ID,
		members: map[string]*Member{self.ID: &m},
	}
}

func (ml *MemberList) SelfID() string {
	return ml.selfID
}

// WithLock runs fn with exclusive access to the underlying map. fn must not
// block or retain the map after returning.
func (ml *MemberList) WithLock(fn func(members map[string]*Member)) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	fn(ml.members)
}

func (ml *MemberList) Get(id string) (Member, bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	m, ok := ml.members[id]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

func (ml *MemberList) Self() Member {
	m, _ := ml.Get(ml.selfID)
	return m
}

func (ml *MemberList) Len() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.members)
}

// Snapshot returns a value copy of the whole table.
func (ml *MemberList) Snapshot() map[string]Member {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	snapshot := make(map[string]Member, len(ml.members))
	for id, m := range ml.members {
		snapshot[id] = *m
	}
	return snapshot
}

// Views returns the table in wire form.
func (ml *MemberList) Views() map[string]MemberView {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return viewsLocked(ml.members)
}

func viewsLocked(members map[string]*Member) map[string]MemberView {
	views := make(map[string]MemberView, len(members))
	for id, m := range members {
		views[id] = m.View()
	}
	return views
}

// ViewsLocked is Views for callers already inside WithLock.
func ViewsLocked(members map[string]*Member) map[string]MemberView {
	return viewsLocked(members)
}

// Sorted returns a copy of the table ordered by id.
func (ml *MemberList) Sorted() []Member {
	snapshot := ml.Snapshot()
	out := make([]Member, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ml *MemberList) CountByStatus() map[Status]int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	counts := map[Status]int{StatusAlive: 0, StatusSuspected: 0, StatusFailed: 0}
	for _, m := range ml.members {
		counts[m.Status]++
	}
	return counts
}

// Digest hashes the replicated part of every record (id, heartbeat,
// incarnation, status). Two tables with equal digests agree on everything
// gossip carries except addresses.
func (ml *MemberList) Digest() uint64 {
	views := ml.Views()
	return DigestViews(views)
}

// DigestViews computes the same digest as MemberList.Digest over a wire map.
func DigestViews(views map[string]MemberView) uint64 {
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	d := xxhash.New()
	var buf [17]byte
	for _, id := range ids {
		v := views[id]
		_, _ = d.WriteString(id)
		binary.BigEndian.PutUint64(buf[0:8], v.Heartbeat)
		binary.BigEndian.PutUint64(buf[8:16], v.Incarnation)
		buf[16] = byte(v.Status)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
