package registry

import (
	"sync"
	"time"

	"github.com/worldhost/server/pkg/wtypes"
)

// Registry is the dual-indexed ConnectionRegistry of spec.md §3/§4.5:
// id -> Connection, and user-id -> insertion-ordered list of
// Connection, kept in lockstep (R1-R3).
type Registry struct {
	mu       sync.RWMutex
	byID     map[wtypes.ConnectionId]*Connection
	byUserID map[wtypes.UserId][]*Connection
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:     make(map[wtypes.ConnectionId]*Connection),
		byUserID: make(map[wtypes.UserId][]*Connection),
	}
}

// ByID returns the connection registered under id, or nil.
func (r *Registry) ByID(id wtypes.ConnectionId) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByUserID returns a snapshot, in insertion order, of every live
// connection for the given user.
func (r *Registry) ByUserID(uid wtypes.UserId) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket := r.byUserID[uid]
	out := make([]*Connection, len(bucket))
	copy(out, bucket)
	return out
}

// Add inserts c, failing if its id is already registered.
func (r *Registry) Add(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return false
	}
	r.addLocked(c)
	return true
}

// AddForce inserts c unconditionally. If the id was already
// registered, the incumbent is evicted from its user-bucket first
// (the caller is responsible for closing the incumbent's transport).
func (r *Registry) AddForce(c *Connection) (evicted *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[c.ID]; ok {
		r.removeFromUserBucketLocked(old)
		evicted = old
	}
	r.addLocked(c)
	return evicted
}

func (r *Registry) addLocked(c *Connection) {
	r.byID[c.ID] = c
	r.byUserID[c.UserID] = append(r.byUserID[c.UserID], c)
}

// Remove deletes c from both indexes (R1-R3); the user bucket is
// garbage-collected once empty.
func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID[c.ID] == c {
		delete(r.byID, c.ID)
	}
	r.removeFromUserBucketLocked(c)
}

func (r *Registry) removeFromUserBucketLocked(c *Connection) {
	bucket := r.byUserID[c.UserID]
	for i, other := range bucket {
		if other.ID == c.ID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(r.byUserID, c.UserID)
	} else {
		r.byUserID[c.UserID] = bucket
	}
}

// Iter returns a snapshot slice of every registered connection.
func (r *Registry) Iter() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// Len reports how many connections are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// AwaitFreeID polls ByID for up to the given timeout (spec.md §4.5's
// 500ms collision-retry rule), returning true once id is free.
func (r *Registry) AwaitFreeID(id wtypes.ConnectionId, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.ByID(id) == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
