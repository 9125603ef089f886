// Package session implements the control-plane message dispatch
// loop of spec.md §4.6: one goroutine per connection, reading framed
// C2S messages and acting on them against the shared ConnectionRegistry,
// friend-request queues, proxy-connection table, and port-lookup
// table.
//
// Grounded on original_source/src/protocol/message_handler.rs for
// the dispatch shape and the send_safely pattern (transport errors to
// a peer are logged and swallowed, never fatal to the sender); the
// TODOs left in that file (queued friend requests, published/closed
// world tracking, proxy packet relay, port lookups) are fully built
// out here per spec.md's complete specification.
package session

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/connid"
	"github.com/worldhost/server/pkg/geoip"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/wtypes"
)

// Config holds the handler's static, rarely-changing settings.
type Config struct {
	BaseAddr      string // hostname external clients use to reach this server's relay
	ExJavaPort    uint16 // configured external Minecraft-protocol relay port
	LatestVersion uint32 // newest protocol version visible to clients, for OutdatedWorldHost
}

// Handler dispatches C2S messages against the server's shared state.
type Handler struct {
	Registry    *registry.Registry
	Friends     *registry.FriendRequests
	Proxies     *ProxyConnections
	PortLookups *PortLookups
	GeoIP       *geoip.Map
	ExternalProxies []ExternalProxy
	Config      Config
	Log         zerolog.Logger
}

// ExternalProxy is a configured relay proxy the server can direct
// clients to, with its resolved location for nearest-proxy selection.
type ExternalProxy struct {
	Host     string
	Port     uint16
	BaseAddr string
	McPort   uint16
	Location geoip.LatLong
}

// sendSafely delivers msg to target, logging and swallowing any
// transport error (never fatal to the sender), per spec.md §4.6.
func (h *Handler) sendSafely(from, target *registry.Connection, msg proto.S2CMessage) {
	if err := target.Send(msg); err != nil {
		h.Log.Warn().
			Uint64("from", uint64(from.ID)).
			Uint64("to", uint64(target.ID)).
			Err(err).
			Msg("failed to deliver message")
	}
}

func (h *Handler) broadcastToFriends(self *registry.Connection, friends []wtypes.UserId, build func() proto.S2CMessage) {
	for _, friend := range friends {
		for _, other := range h.Registry.ByUserID(friend) {
			if other.ID != self.ID {
				h.sendSafely(self, other, build())
			}
		}
	}
}

// Dispatch performs the semantics of spec.md §4.6 for one received
// client message. Sender-side transport errors (writing back to
// self) are returned to the caller, since those are fatal to the
// connection; errors delivering to other peers are handled via
// sendSafely and never returned.
func (h *Handler) Dispatch(self *registry.Connection, msg proto.C2SMessage) error {
	switch m := msg.(type) {
	case proto.C2SListOnline:
		h.broadcastToFriends(self, m.Friends, func() proto.S2CMessage {
			return proto.S2CIsOnlineTo{User: self.UserID}
		})

	case proto.C2SFriendRequest:
		others := h.Registry.ByUserID(m.To)
		response := proto.S2CFriendRequest{FromUser: self.UserID, Security: self.Security}
		delivered := false
		for _, other := range others {
			if other.ID != self.ID {
				h.sendSafely(self, other, response)
				delivered = true
			}
		}
		if !delivered && self.Security > wtypes.Insecure {
			h.Friends.Enqueue(self.UserID, m.To)
		}

	case proto.C2SPublishedWorld:
		self.PublishTo(m.Friends)
		h.broadcastToFriends(self, m.Friends, func() proto.S2CMessage {
			return proto.S2CPublishedWorld{User: self.UserID, Cid: self.ID, Security: self.Security}
		})

	case proto.C2SClosedWorld:
		self.UnpublishFrom(m.Friends)
		h.broadcastToFriends(self, m.Friends, func() proto.S2CMessage {
			return proto.S2CClosedWorld{User: self.UserID}
		})

	case proto.C2SRequestJoin:
		if self.Protocol >= 4 {
			return self.Send(proto.S2CError{
				Message:  "Please use the v4+ RequestDirectJoin message instead of the unsupported RequestJoin message",
				Critical: false,
			})
		}
		online := h.Registry.ByUserID(m.Friend)
		if len(online) > 0 {
			last := online[len(online)-1]
			h.sendSafely(self, last, proto.S2CRequestJoin{
				User: self.UserID, Cid: self.ID, Security: self.Security,
			})
		}

	case proto.C2SJoinGranted:
		response, ok := h.buildOnlineGame(self, m.JoinType)
		if !ok {
			return self.Send(proto.S2CError{
				Message:  fmt.Sprintf("This server does not support JoinType %v", m.JoinType.Kind),
				Critical: false,
			})
		}
		if m.Cid != self.ID {
			if target := h.Registry.ByID(m.Cid); target != nil {
				h.sendSafely(self, target, response)
			}
		}

	case proto.C2SQueryRequest:
		h.broadcastToFriends(self, m.Friends, func() proto.S2CMessage {
			return proto.S2CQueryRequest{Friend: self.UserID, Cid: self.ID, Security: self.Security}
		})

	case proto.C2SQueryResponse:
		return h.Dispatch(self, proto.C2SNewQueryResponse{Cid: m.Cid, Data: m.Data})

	case proto.C2SProxyS2CPacket:
		if conn, ok := h.Proxies.Get(m.ProxyCid); ok && conn.Owner == self.ID {
			_, err := conn.Ingress.Write(m.Data)
			if err != nil {
				h.Log.Warn().Uint64("proxyCid", m.ProxyCid).Err(err).Msg("failed to write to ingress socket")
			}
		}

	case proto.C2SProxyDisconnect:
		if conn, ok := h.Proxies.Get(m.ProxyCid); ok && conn.Owner == self.ID {
			conn.Ingress.Close()
			h.Proxies.Remove(m.ProxyCid)
		}

	case proto.C2SRequestDirectJoin:
		if m.Cid != self.ID {
			if target := h.Registry.ByID(m.Cid); target != nil {
				h.sendSafely(self, target, proto.S2CRequestJoin{
					User: self.UserID, Cid: self.ID, Security: self.Security,
				})
				return nil
			}
		}
		return self.Send(proto.S2CConnectionNotFound{Cid: m.Cid})

	case proto.C2SNewQueryResponse:
		if m.Cid == self.ID {
			return nil
		}
		target := h.Registry.ByID(m.Cid)
		if target == nil {
			return nil
		}
		if target.Protocol < 5 {
			h.sendSafely(self, target, proto.S2CQueryResponseLegacy{Friend: self.UserID, Data: m.Data})
		} else {
			h.sendSafely(self, target, proto.S2CNewQueryResponse{Friend: self.UserID, Data: m.Data})
		}

	case proto.C2SRequestPunchOpen:
		target := h.Registry.ByID(m.TargetCid)
		if target == nil || target.Protocol < 7 {
			return self.Send(proto.S2CPunchRequestCancelled{PunchId: m.PunchId})
		}
		h.sendSafely(self, target, proto.S2CPunchOpenRequest{
			PunchId: m.PunchId, Purpose: m.Purpose,
			FromHost: m.MyHost, FromPort: m.MyPort,
			Cid: self.ID, User: self.UserID, Security: self.Security,
		})

	case proto.C2SPunchFailed:
		if target := h.Registry.ByID(m.TargetCid); target != nil {
			h.sendSafely(self, target, proto.S2CPunchRequestCancelled{PunchId: m.PunchId})
		}

	case proto.C2SBeginPortLookup:
		h.PortLookups.Begin(m.LookupId, self.ID)

	case proto.C2SPunchSuccess:
		if target := h.Registry.ByID(m.Cid); target != nil {
			h.sendSafely(self, target, proto.S2CPunchSuccess{PunchId: m.PunchId, Host: m.Host, Port: m.Port})
		}

	default:
		return fmt.Errorf("session: unhandled message type %T", msg)
	}
	return nil
}

// buildOnlineGame materialises the OnlineGame response for a
// JoinGranted message, per spec.md §4.6's per-joinType rules.
func (h *Handler) buildOnlineGame(self *registry.Connection, jt proto.JoinType) (proto.S2CMessage, bool) {
	switch jt.Kind {
	case proto.JoinTypeUPnP:
		return proto.S2COnlineGame{
			Host: self.RemoteIP.String(), Port: jt.Port, OwnerCid: self.ID,
		}, true
	case proto.JoinTypeProxy:
		baseAddr, port, ok := h.proxyTarget(self)
		if !ok {
			return nil, false
		}
		return proto.S2COnlineGame{
			Host:     fmt.Sprintf("%s.%s", connid.Render(self.ID), baseAddr),
			Port:     port,
			OwnerCid: self.ID,
		}, true
	case proto.JoinTypePunch:
		return nil, false
	default:
		return nil, false
	}
}

// proxyTarget resolves the baseAddr/port an OnlineGame(Proxy)
// response should use: the connection's chosen external proxy (for
// protocol >= 3) if one was selected, else the server's configured
// default.
func (h *Handler) proxyTarget(self *registry.Connection) (string, uint16, bool) {
	if self.Protocol >= 3 {
		if host, port, ok := self.ExternalProxy(); ok {
			return host, port, true
		}
	}
	if h.Config.BaseAddr == "" {
		return "", 0, false
	}
	return h.Config.BaseAddr, h.Config.ExJavaPort, true
}

// OnLive performs the one-time, post-handshake setup of spec.md
// §4.6: ConnectionInfo, optional OutdatedWorldHost / insecure-upgrade
// nudge, GeoIP-driven external proxy selection, and draining queued
// friend requests.
func (h *Handler) OnLive(self *registry.Connection, punchPort uint16) {
	self.Send(proto.S2CConnectionInfo{
		Cid: self.ID, BaseIp: h.Config.BaseAddr, BasePort: h.Config.ExJavaPort,
		UserIp: self.RemoteIP.String(), ProtocolVersion: self.Protocol, PunchPort: punchPort,
	})

	if self.Protocol < h.Config.LatestVersion {
		self.Send(proto.S2COutdatedWorldHost{RecommendedVersion: proto.VersionName(h.Config.LatestVersion)})
	}
	if self.Security == wtypes.Insecure && self.UserID.IsOnline() {
		self.Send(proto.S2CError{
			Message:  "Your connection is insecure; consider using a premium account or upgrading your client.",
			Critical: false,
		})
	}

	if h.GeoIP != nil {
		if info, ok := h.GeoIP.Lookup(self.RemoteIP); ok {
			self.SetCountry(info)
			if proxy, ok := h.nearestExternalProxy(info); ok {
				self.SetExternalProxy(proxy.Host, proxy.McPort)
				self.Send(proto.S2CExternalProxyServer{
					Host: proxy.Host, Port: proxy.Port, BaseAddr: proxy.BaseAddr, McPort: proxy.McPort,
				})
			}
		}
	}

	for _, sender := range h.Friends.Drain(self.UserID) {
		self.Send(proto.S2CFriendRequest{FromUser: sender, Security: wtypes.Secure})
	}
}

func (h *Handler) nearestExternalProxy(info geoip.IpInfo) (ExternalProxy, bool) {
	if len(h.ExternalProxies) == 0 {
		return ExternalProxy{}, false
	}
	points := make([]geoip.LatLong, len(h.ExternalProxies))
	for i, p := range h.ExternalProxies {
		points[i] = p.Location
	}
	idx := geoip.Nearest(geoip.LatLong{Lat: info.Lat, Long: info.Long}, points)
	return h.ExternalProxies[idx], true
}
