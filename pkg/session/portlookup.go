package session

import (
	"sync"
	"time"

	"github.com/worldhost/server/pkg/wtypes"
)

// PortLookupExpiry is the default lifetime of an ActivePortLookup
// (spec.md §3, original_source/src/protocol/port_lookup.rs).
const PortLookupExpiry = 10 * time.Second

type activeLookup struct {
	source wtypes.ConnectionId
	expiry time.Time
}

// PortLookups tracks in-flight UDP port-lookup requests, indexed by
// lookup id and by expiry (spec.md §3's ActivePortLookup).
type PortLookups struct {
	mu      sync.Mutex
	entries map[wtypes.UserId]*activeLookup
	now     func() time.Time
}

// NewPortLookups returns an empty tracker.
func NewPortLookups() *PortLookups {
	return &PortLookups{entries: make(map[wtypes.UserId]*activeLookup), now: time.Now}
}

// Begin inserts a new pending lookup for lookupID, sourced from
// source, expiring PortLookupExpiry from now.
func (p *PortLookups) Begin(lookupID wtypes.UserId, source wtypes.ConnectionId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[lookupID] = &activeLookup{source: source, expiry: p.now().Add(PortLookupExpiry)}
}

// Source returns the source connection id registered for lookupID,
// if it exists and has not expired.
func (p *PortLookups) Source(lookupID wtypes.UserId) (wtypes.ConnectionId, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[lookupID]
	if !ok || p.now().After(e.expiry) {
		return 0, false
	}
	return e.source, true
}

// Remove deletes the entry for lookupID (on success or cancellation).
func (p *PortLookups) Remove(lookupID wtypes.UserId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, lookupID)
}

// ExpiredLookup is a timed-out ActivePortLookup.
type ExpiredLookup struct {
	LookupID wtypes.UserId
	Source   wtypes.ConnectionId
}

// ExpireOnce removes every entry whose expiry has passed, returning
// them so the caller can notify the originating connections
// (CancelPortLookup).
func (p *PortLookups) ExpireOnce() []ExpiredLookup {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []ExpiredLookup
	now := p.now()
	for id, e := range p.entries {
		if now.After(e.expiry) {
			expired = append(expired, ExpiredLookup{LookupID: id, Source: e.source})
			delete(p.entries, id)
		}
	}
	return expired
}

// Run ticks ExpireOnce every second (spec.md §4.8's "1-second expiry
// tick") until stop is closed, invoking onExpire for each entry that
// times out.
func (p *PortLookups) Run(stop <-chan struct{}, onExpire func(ExpiredLookup)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, exp := range p.ExpireOnce() {
				onExpire(exp)
			}
		}
	}
}
