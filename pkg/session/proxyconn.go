package session

import (
	"io"
	"sync"

	"github.com/worldhost/server/pkg/wtypes"
)

// ProxyConnection is an ingress-side TCP relay connection, per
// spec.md §3/§4.7: a monotonic 64-bit id, the control-plane
// connection it targets, and the write half of the ingress socket so
// ProxyS2CPacket/ProxyDisconnect can reach it.
type ProxyConnection struct {
	ID     uint64
	Target wtypes.ConnectionId
	Owner  wtypes.ConnectionId // the Connection that owns (can write to) this proxy entry
	Ingress io.WriteCloser
}

// ProxyConnections tracks every in-flight relay tunnel by its
// monotonic ingress id.
type ProxyConnections struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*ProxyConnection
}

// NewProxyConnections returns an empty tracker.
func NewProxyConnections() *ProxyConnections {
	return &ProxyConnections{entries: make(map[uint64]*ProxyConnection)}
}

// Register allocates the next monotonic proxy-cid (wrapping on
// overflow, per spec.md §4.7) and tracks the tunnel under it.
func (p *ProxyConnections) Register(owner, target wtypes.ConnectionId, ingress io.WriteCloser) *ProxyConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	entry := &ProxyConnection{ID: id, Target: target, Owner: owner, Ingress: ingress}
	p.entries[id] = entry
	return entry
}

// Get returns the proxy connection registered under id, if any.
func (p *ProxyConnections) Get(id uint64) (*ProxyConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return e, ok
}

// Remove deletes the entry for id.
func (p *ProxyConnections) Remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}
