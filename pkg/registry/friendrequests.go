package registry

import (
	"sync"

	"github.com/worldhost/server/pkg/wtypes"
)

const (
	// RememberedBound is the per-user cap on outstanding sent friend
	// requests not yet delivered (spec.md §3).
	RememberedBound = 5
	// ReceivedBound is the per-user cap on queued friend requests
	// received while offline (spec.md §3).
	ReceivedBound = 10
)

// orderedSet is a small insertion-ordered set of user ids with a
// bound; inserting past the bound evicts the oldest entry.
type orderedSet struct {
	order []wtypes.UserId
	bound int
}

func (s *orderedSet) contains(id wtypes.UserId) bool {
	for _, x := range s.order {
		if x == id {
			return true
		}
	}
	return false
}

// push appends id, evicting and returning the oldest entry if the
// bound was exceeded. Returns ok=false if id was already present (no
// change made).
func (s *orderedSet) push(id wtypes.UserId) (evicted wtypes.UserId, didEvict, ok bool) {
	if s.contains(id) {
		return wtypes.UserId{}, false, false
	}
	s.order = append(s.order, id)
	if len(s.order) > s.bound {
		evicted = s.order[0]
		s.order = s.order[1:]
		didEvict = true
	}
	return evicted, didEvict, true
}

func (s *orderedSet) remove(id wtypes.UserId) bool {
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}

// FriendRequests holds the two bounded per-user ordered sets of
// spec.md §3/§4.6: "remembered" (requests sent, not yet delivered)
// and "received" (requests queued while the recipient was offline),
// with the symmetric eviction invariant R4: x in remembered[a][b]
// iff x in received[b][a].
type FriendRequests struct {
	mu         sync.Mutex
	remembered map[wtypes.UserId]*orderedSet // remembered[a] holds targets b that a has requested
	received   map[wtypes.UserId]*orderedSet // received[b] holds senders a that requested b
}

// NewFriendRequests returns an empty store.
func NewFriendRequests() *FriendRequests {
	return &FriendRequests{
		remembered: make(map[wtypes.UserId]*orderedSet),
		received:   make(map[wtypes.UserId]*orderedSet),
	}
}

func (f *FriendRequests) setFor(m map[wtypes.UserId]*orderedSet, id wtypes.UserId, bound int) *orderedSet {
	s, ok := m[id]
	if !ok {
		s = &orderedSet{bound: bound}
		m[id] = s
	}
	return s
}

// Enqueue records that `from` sent a friend request to `to` while `to`
// was offline, maintaining R4: the entry is added to
// remembered[from][to] and received[to][from] together, and any
// eviction on one side removes the paired entry on the other.
func (f *FriendRequests) Enqueue(from, to wtypes.UserId) {
	f.mu.Lock()
	defer f.mu.Unlock()

	remembered := f.setFor(f.remembered, from, RememberedBound)
	evictedTarget, remEvicted, ok := remembered.push(to)
	if !ok {
		return
	}
	if remEvicted {
		// remembered[from] dropped evictedTarget; the paired
		// received[evictedTarget][from] entry must go with it.
		if other, ok := f.received[evictedTarget]; ok {
			other.remove(from)
			if len(other.order) == 0 {
				delete(f.received, evictedTarget)
			}
		}
	}

	received := f.setFor(f.received, to, ReceivedBound)
	evictedSender, recvEvicted, _ := received.push(from)
	if recvEvicted {
		// received[to] dropped evictedSender; the paired
		// remembered[evictedSender][to] entry must go with it.
		if other, ok := f.remembered[evictedSender]; ok {
			other.remove(to)
			if len(other.order) == 0 {
				delete(f.remembered, evictedSender)
			}
		}
	}
}

// Drain removes and returns every sender queued in received[self],
// clearing the paired remembered[sender][self] entries, per spec.md
// §4.6's "drain received[self] on Live transition" rule.
func (f *FriendRequests) Drain(self wtypes.UserId) []wtypes.UserId {
	f.mu.Lock()
	defer f.mu.Unlock()

	received, ok := f.received[self]
	if !ok {
		return nil
	}
	senders := make([]wtypes.UserId, len(received.order))
	copy(senders, received.order)
	delete(f.received, self)

	for _, sender := range senders {
		if remembered, ok := f.remembered[sender]; ok {
			remembered.remove(self)
			if len(remembered.order) == 0 {
				delete(f.remembered, sender)
			}
		}
	}
	return senders
}
