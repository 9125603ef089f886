// Package registry implements the dual-indexed ConnectionRegistry and
// the bounded per-user friend-request queues from spec.md §3/§4.5,
// grounded on original_source/src/connection/connection_set.rs for
// the add/add_force/remove semantics and on the donor ServerList in
// R2Northstar-Atlas's pkg/api/api0/serverlist.go for the mutex/map
// layout idiom.
package registry

import (
	"io"
	"net/netip"
	"sync"

	"github.com/worldhost/server/pkg/geoip"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/wire"
	"github.com/worldhost/server/pkg/wtypes"
)

// Connection is the live record for a control-plane session, per
// spec.md §3.
type Connection struct {
	ID       wtypes.ConnectionId
	RemoteIP netip.Addr
	UserID   wtypes.UserId
	Protocol uint32
	Security wtypes.SecurityLevel

	Conn   *wire.Conn
	closer io.Closer

	mu           sync.Mutex
	writeMu      sync.Mutex
	country      geoip.IpInfo
	hasCountry   bool
	externalHost string
	externalPort uint16
	hasExternal  bool
	publishedTo  map[wtypes.UserId]struct{}
}

// NewConnection builds a Connection ready to be inserted into a
// Registry.
func NewConnection(id wtypes.ConnectionId, remoteIP netip.Addr, userID wtypes.UserId, protocol uint32, security wtypes.SecurityLevel, c *wire.Conn) *Connection {
	return &Connection{
		ID:          id,
		RemoteIP:    remoteIP,
		UserID:      userID,
		Protocol:    protocol,
		Security:    security,
		Conn:        c,
		publishedTo: make(map[wtypes.UserId]struct{}),
	}
}

// SetCloser records the underlying transport so AddForce's incumbent
// eviction (spec.md §4.5) can terminate the replaced connection's
// socket, not just drop it from the registry.
func (c *Connection) SetCloser(closer io.Closer) {
	c.closer = closer
}

// Close closes the underlying transport, if one was recorded with
// SetCloser. A connection with none is a no-op, matching the nil-Conn
// no-op convention used throughout this type.
func (c *Connection) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// SetCountry records the GeoIP-derived location for this connection.
func (c *Connection) SetCountry(info geoip.IpInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.country = info
	c.hasCountry = true
}

// Country returns the connection's resolved GeoIP info, if any.
func (c *Connection) Country() (geoip.IpInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.country, c.hasCountry
}

// SetExternalProxy records the nearest external proxy chosen for
// this connection's OnlineGame(Proxy) responses.
func (c *Connection) SetExternalProxy(host string, port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.externalHost, c.externalPort, c.hasExternal = host, port, true
}

// ExternalProxy returns the chosen external proxy, if any.
func (c *Connection) ExternalProxy() (host string, port uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.externalHost, c.externalPort, c.hasExternal
}

// PublishTo adds friends to this connection's published-to set.
func (c *Connection) PublishTo(friends []wtypes.UserId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range friends {
		c.publishedTo[f] = struct{}{}
	}
}

// UnpublishFrom removes friends from this connection's published-to
// set.
func (c *Connection) UnpublishFrom(friends []wtypes.UserId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range friends {
		delete(c.publishedTo, f)
	}
}

// Send encodes msg for this connection's negotiated protocol version
// and writes it, per spec.md §4.2's "outbound messages whose
// introduction exceeds the peer's negotiated version are silently
// dropped at send time" rule. A nil Conn (used in tests) is a no-op.
// Writes are serialized per-connection since other connections'
// dispatch goroutines may send to this one concurrently with its own
// read loop.
func (c *Connection) Send(msg proto.S2CMessage) error {
	if c.Conn == nil {
		return nil
	}
	payload := proto.EncodeS2C(msg, c.Protocol)
	if payload == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteFrame(msg.TypeID(), payload)
}
