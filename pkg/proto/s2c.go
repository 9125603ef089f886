package proto

import (
	"net/netip"

	"github.com/worldhost/server/pkg/wtypes"
)

// S2CMessage is implemented by every server-to-client message type.
type S2CMessage interface {
	TypeID() byte
	FirstProtocol() uint32
}

type S2CError struct {
	Message  string
	Critical bool
}
type S2CIsOnlineTo struct{ User wtypes.UserId }
type S2COnlineGame struct {
	Host     string
	Port     uint16
	OwnerCid wtypes.ConnectionId
}
type S2CFriendRequest struct {
	FromUser wtypes.UserId
	Security wtypes.SecurityLevel
}
type S2CPublishedWorld struct {
	User     wtypes.UserId
	Cid      wtypes.ConnectionId
	Security wtypes.SecurityLevel
}
type S2CClosedWorld struct{ User wtypes.UserId }
type S2CRequestJoin struct {
	User     wtypes.UserId
	Cid      wtypes.ConnectionId
	Security wtypes.SecurityLevel
}
type S2CQueryRequest struct {
	Friend   wtypes.UserId
	Cid      wtypes.ConnectionId
	Security wtypes.SecurityLevel
}

// S2CQueryResponseLegacy is the deprecated pre-v5 QueryResponse
// shape, used only as a fallback when the recipient's protocol
// version is below 5 (spec.md §4.6, NewQueryResponse dispatch note).
type S2CQueryResponseLegacy struct {
	Friend wtypes.UserId
	Data   []byte
}
type S2CProxyC2SPacket struct {
	ProxyCid uint64
	Data     []byte
}
type S2CProxyConnect struct {
	ProxyCid   uint64
	RemoteAddr netip.Addr
}
type S2CProxyDisconnect struct{ ProxyCid uint64 }
type S2CConnectionInfo struct {
	Cid             wtypes.ConnectionId
	BaseIp          string
	BasePort        uint16
	UserIp          string
	ProtocolVersion uint32
	PunchPort       uint16
}
type S2CExternalProxyServer struct {
	Host     string
	Port     uint16
	BaseAddr string
	McPort   uint16
}
type S2COutdatedWorldHost struct{ RecommendedVersion string }
type S2CConnectionNotFound struct{ Cid wtypes.ConnectionId }
type S2CNewQueryResponse struct {
	Friend wtypes.UserId
	Data   []byte
}
type S2CWarning struct {
	Message   string
	Important bool
}
type S2CPunchOpenRequest struct {
	PunchId  wtypes.UserId
	Purpose  string
	FromHost string
	FromPort uint16
	Cid      wtypes.ConnectionId
	User     wtypes.UserId
	Security wtypes.SecurityLevel
}
type S2CCancelPortLookup struct{ LookupId wtypes.UserId }
type S2CPortLookupSuccess struct {
	LookupId wtypes.UserId
	Host     string
	Port     uint16
}
type S2CPunchRequestCancelled struct{ PunchId wtypes.UserId }
type S2CPunchSuccess struct {
	PunchId wtypes.UserId
	Host    string
	Port    uint16
}

func (S2CError) TypeID() byte                 { return 0 }
func (S2CIsOnlineTo) TypeID() byte             { return 1 }
func (S2COnlineGame) TypeID() byte             { return 2 }
func (S2CFriendRequest) TypeID() byte          { return 3 }
func (S2CPublishedWorld) TypeID() byte         { return 4 }
func (S2CClosedWorld) TypeID() byte            { return 5 }
func (S2CRequestJoin) TypeID() byte            { return 6 }
func (S2CQueryRequest) TypeID() byte           { return 7 }
func (S2CQueryResponseLegacy) TypeID() byte    { return 8 }
func (S2CProxyC2SPacket) TypeID() byte         { return 9 }
func (S2CProxyConnect) TypeID() byte           { return 10 }
func (S2CProxyDisconnect) TypeID() byte        { return 11 }
func (S2CConnectionInfo) TypeID() byte         { return 12 }
func (S2CExternalProxyServer) TypeID() byte    { return 13 }
func (S2COutdatedWorldHost) TypeID() byte      { return 14 }
func (S2CConnectionNotFound) TypeID() byte     { return 15 }
func (S2CNewQueryResponse) TypeID() byte       { return 16 }
func (S2CWarning) TypeID() byte                { return 17 }
func (S2CPunchOpenRequest) TypeID() byte       { return 18 }
func (S2CCancelPortLookup) TypeID() byte       { return 19 }
func (S2CPortLookupSuccess) TypeID() byte      { return 20 }
func (S2CPunchRequestCancelled) TypeID() byte  { return 21 }
func (S2CPunchSuccess) TypeID() byte           { return 22 }

func (S2CError) FirstProtocol() uint32                { return 2 }
func (S2CIsOnlineTo) FirstProtocol() uint32            { return 2 }
func (S2COnlineGame) FirstProtocol() uint32            { return 2 }
func (S2CFriendRequest) FirstProtocol() uint32         { return 2 }
func (S2CPublishedWorld) FirstProtocol() uint32        { return 2 }
func (S2CClosedWorld) FirstProtocol() uint32           { return 2 }
func (S2CRequestJoin) FirstProtocol() uint32           { return 2 }
func (S2CQueryRequest) FirstProtocol() uint32          { return 2 }
func (S2CQueryResponseLegacy) FirstProtocol() uint32   { return 2 }
func (S2CProxyC2SPacket) FirstProtocol() uint32        { return 2 }
func (S2CProxyConnect) FirstProtocol() uint32          { return 2 }
func (S2CProxyDisconnect) FirstProtocol() uint32       { return 2 }
func (S2CConnectionInfo) FirstProtocol() uint32        { return 2 }
func (S2CExternalProxyServer) FirstProtocol() uint32   { return 2 }
func (S2COutdatedWorldHost) FirstProtocol() uint32     { return 4 }
func (S2CConnectionNotFound) FirstProtocol() uint32    { return 4 }
func (S2CNewQueryResponse) FirstProtocol() uint32      { return 5 }
func (S2CWarning) FirstProtocol() uint32               { return 6 }
func (S2CPunchOpenRequest) FirstProtocol() uint32      { return 7 }
func (S2CCancelPortLookup) FirstProtocol() uint32      { return 7 }
func (S2CPortLookupSuccess) FirstProtocol() uint32     { return 7 }
func (S2CPunchRequestCancelled) FirstProtocol() uint32 { return 7 }
func (S2CPunchSuccess) FirstProtocol() uint32          { return 7 }

// EncodeS2C renders an S2C message to wire bytes (type byte not
// included). Returns nil if the recipient's protocol version is
// below the message's FirstProtocol — per spec.md P5, "send is a
// no-op" in that case — so callers can unconditionally call this and
// skip the write when the result is nil.
func EncodeS2C(m S2CMessage, recipientProtocol uint32) []byte {
	if recipientProtocol < m.FirstProtocol() {
		return nil
	}
	w := NewWriter()
	switch v := m.(type) {
	case S2CError:
		w.String(v.Message)
		w.U8(boolByte(v.Critical))
	case S2CIsOnlineTo:
		w.UUID(v.User)
	case S2COnlineGame:
		w.String(v.Host)
		w.U16(v.Port)
		w.ConnectionId(v.OwnerCid)
		w.U8(0) // trailing literal false, spec.md §6
	case S2CFriendRequest:
		w.UUID(v.FromUser)
		w.Security(v.Security)
	case S2CPublishedWorld:
		w.UUID(v.User)
		w.ConnectionId(v.Cid)
		w.Security(v.Security)
	case S2CClosedWorld:
		w.UUID(v.User)
	case S2CRequestJoin:
		w.UUID(v.User)
		w.ConnectionId(v.Cid)
		w.Security(v.Security)
	case S2CQueryRequest:
		w.UUID(v.Friend)
		w.ConnectionId(v.Cid)
		w.Security(v.Security)
	case S2CQueryResponseLegacy:
		w.UUID(v.Friend)
		w.LengthPrefixedBytes(v.Data)
	case S2CProxyC2SPacket:
		w.U64(v.ProxyCid)
		w.Raw(v.Data)
	case S2CProxyConnect:
		w.U64(v.ProxyCid)
		w.IPAddr(v.RemoteAddr)
	case S2CProxyDisconnect:
		w.U64(v.ProxyCid)
	case S2CConnectionInfo:
		w.ConnectionId(v.Cid)
		w.String(v.BaseIp)
		w.U16(v.BasePort)
		w.String(v.UserIp)
		w.U32(v.ProtocolVersion)
		w.U16(v.PunchPort)
	case S2CExternalProxyServer:
		w.String(v.Host)
		w.U16(v.Port)
		w.String(v.BaseAddr)
		w.U16(v.McPort)
	case S2COutdatedWorldHost:
		w.String(v.RecommendedVersion)
	case S2CConnectionNotFound:
		w.ConnectionId(v.Cid)
	case S2CNewQueryResponse:
		w.UUID(v.Friend)
		w.Raw(v.Data)
	case S2CWarning:
		w.String(v.Message)
		w.U8(boolByte(v.Important))
	case S2CPunchOpenRequest:
		w.UUID(v.PunchId)
		w.String(v.Purpose)
		w.String(v.FromHost)
		w.U16(v.FromPort)
		w.ConnectionId(v.Cid)
		w.UUID(v.User)
		w.Security(v.Security)
	case S2CCancelPortLookup:
		w.UUID(v.LookupId)
	case S2CPortLookupSuccess:
		w.UUID(v.LookupId)
		w.String(v.Host)
		w.U16(v.Port)
	case S2CPunchRequestCancelled:
		w.UUID(v.PunchId)
	case S2CPunchSuccess:
		w.UUID(v.PunchId)
		w.String(v.Host)
		w.U16(v.Port)
	}
	return w.Bytes()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// DecodeS2C decodes a server-to-client message of the given type id.
// The server itself never needs this direction, but it is the
// natural counterpart to EncodeS2C and is exercised by round-trip
// tests to keep the two in lockstep.
func DecodeS2C(id byte, payload []byte) (S2CMessage, error) {
	r := NewReader(payload)
	switch id {
	case 0:
		msg, err := r.String()
		if err != nil {
			return nil, err
		}
		crit, err := r.U8()
		return S2CError{Message: msg, Critical: crit != 0}, err
	case 1:
		u, err := r.UUID()
		return S2CIsOnlineTo{User: u}, err
	case 2:
		host, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		if err != nil {
			return nil, err
		}
		owner, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		if _, err := r.U8(); err != nil {
			return nil, err
		}
		return S2COnlineGame{Host: host, Port: port, OwnerCid: owner}, nil
	case 3:
		from, err := r.UUID()
		if err != nil {
			return nil, err
		}
		sec, err := r.Security()
		return S2CFriendRequest{FromUser: from, Security: sec}, err
	case 4:
		user, err := r.UUID()
		if err != nil {
			return nil, err
		}
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		sec, err := r.Security()
		return S2CPublishedWorld{User: user, Cid: cid, Security: sec}, err
	case 5:
		user, err := r.UUID()
		return S2CClosedWorld{User: user}, err
	case 6:
		user, err := r.UUID()
		if err != nil {
			return nil, err
		}
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		sec, err := r.Security()
		return S2CRequestJoin{User: user, Cid: cid, Security: sec}, err
	case 7:
		friend, err := r.UUID()
		if err != nil {
			return nil, err
		}
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		sec, err := r.Security()
		return S2CQueryRequest{Friend: friend, Cid: cid, Security: sec}, err
	case 8:
		friend, err := r.UUID()
		if err != nil {
			return nil, err
		}
		data, err := r.LengthPrefixedBytes()
		return S2CQueryResponseLegacy{Friend: friend, Data: data}, err
	case 9:
		proxyCid, err := r.U64()
		if err != nil {
			return nil, err
		}
		return S2CProxyC2SPacket{ProxyCid: proxyCid, Data: r.Remainder()}, nil
	case 10:
		proxyCid, err := r.U64()
		if err != nil {
			return nil, err
		}
		addr, err := r.IPAddr()
		return S2CProxyConnect{ProxyCid: proxyCid, RemoteAddr: addr}, err
	case 11:
		proxyCid, err := r.U64()
		return S2CProxyDisconnect{ProxyCid: proxyCid}, err
	case 12:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		baseIp, err := r.String()
		if err != nil {
			return nil, err
		}
		basePort, err := r.U16()
		if err != nil {
			return nil, err
		}
		userIp, err := r.String()
		if err != nil {
			return nil, err
		}
		protoVer, err := r.U32()
		if err != nil {
			return nil, err
		}
		punchPort, err := r.U16()
		return S2CConnectionInfo{
			Cid: cid, BaseIp: baseIp, BasePort: basePort, UserIp: userIp,
			ProtocolVersion: protoVer, PunchPort: punchPort,
		}, err
	case 13:
		host, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		if err != nil {
			return nil, err
		}
		baseAddr, err := r.String()
		if err != nil {
			return nil, err
		}
		mcPort, err := r.U16()
		return S2CExternalProxyServer{Host: host, Port: port, BaseAddr: baseAddr, McPort: mcPort}, err
	case 14:
		v, err := r.String()
		return S2COutdatedWorldHost{RecommendedVersion: v}, err
	case 15:
		cid, err := r.ConnectionId()
		return S2CConnectionNotFound{Cid: cid}, err
	case 16:
		friend, err := r.UUID()
		if err != nil {
			return nil, err
		}
		return S2CNewQueryResponse{Friend: friend, Data: r.Remainder()}, nil
	case 17:
		msg, err := r.String()
		if err != nil {
			return nil, err
		}
		important, err := r.U8()
		return S2CWarning{Message: msg, Important: important != 0}, err
	case 18:
		punchId, err := r.UUID()
		if err != nil {
			return nil, err
		}
		purpose, err := r.String()
		if err != nil {
			return nil, err
		}
		fromHost, err := r.String()
		if err != nil {
			return nil, err
		}
		fromPort, err := r.U16()
		if err != nil {
			return nil, err
		}
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		user, err := r.UUID()
		if err != nil {
			return nil, err
		}
		sec, err := r.Security()
		return S2CPunchOpenRequest{
			PunchId: punchId, Purpose: purpose, FromHost: fromHost, FromPort: fromPort,
			Cid: cid, User: user, Security: sec,
		}, err
	case 19:
		lookupId, err := r.UUID()
		return S2CCancelPortLookup{LookupId: lookupId}, err
	case 20:
		lookupId, err := r.UUID()
		if err != nil {
			return nil, err
		}
		host, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		return S2CPortLookupSuccess{LookupId: lookupId, Host: host, Port: port}, err
	case 21:
		punchId, err := r.UUID()
		return S2CPunchRequestCancelled{PunchId: punchId}, err
	case 22:
		punchId, err := r.UUID()
		if err != nil {
			return nil, err
		}
		host, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		return S2CPunchSuccess{PunchId: punchId, Host: host, Port: port}, err
	default:
		return nil, ErrUnknownS2CType(id)
	}
}

// ErrUnknownS2CType reports an unrecognised S2C type id.
type ErrUnknownS2CType byte

func (e ErrUnknownS2CType) Error() string {
	return "proto: unknown s2c type id " + itoa(byte(e))
}
