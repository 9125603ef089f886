package proto

import "github.com/worldhost/server/pkg/wtypes"

// C2SMessage is implemented by every client-to-server message type.
// TypeID and FirstProtocol are used for the "introduced-in protocol
// version" gating rule in spec.md §4.2.
type C2SMessage interface {
	TypeID() byte
	FirstProtocol() uint32
}

// JoinType is the variable-shape join-type field carried by
// C2SJoinGranted (spec.md §9's open question: decoders must branch
// on the type id before deciding whether a trailing u16 follows).
type JoinType struct {
	Kind JoinTypeKind
	Port uint16 // only meaningful if Kind == JoinTypeUPnP
}

type JoinTypeKind byte

const (
	JoinTypeUPnP  JoinTypeKind = 0
	JoinTypeProxy JoinTypeKind = 1
	JoinTypePunch JoinTypeKind = 2
)

func (k JoinTypeKind) String() string {
	switch k {
	case JoinTypeUPnP:
		return "UPnP"
	case JoinTypeProxy:
		return "Proxy"
	case JoinTypePunch:
		return "Punch"
	default:
		return "JoinTypeKind(" + itoa(byte(k)) + ")"
	}
}

func decodeJoinType(r *Reader) (JoinType, error) {
	id, err := r.U8()
	if err != nil {
		return JoinType{}, err
	}
	switch JoinTypeKind(id) {
	case JoinTypeUPnP:
		port, err := r.U16()
		if err != nil {
			return JoinType{}, err
		}
		return JoinType{Kind: JoinTypeUPnP, Port: port}, nil
	case JoinTypeProxy:
		return JoinType{Kind: JoinTypeProxy}, nil
	case JoinTypePunch:
		return JoinType{Kind: JoinTypePunch}, nil
	default:
		return JoinType{}, ErrUnknownJoinType(id)
	}
}

// ErrUnknownJoinType reports an unrecognised joinTypeId.
type ErrUnknownJoinType byte

func (e ErrUnknownJoinType) Error() string {
	return "proto: unknown joinTypeId " + itoa(byte(e))
}

func itoa(b byte) string {
	if b < 10 {
		return string(rune('0' + b))
	}
	return string(rune('0'+b/10)) + string(rune('0'+b%10))
}

type C2SListOnline struct{ Friends []wtypes.UserId }
type C2SFriendRequest struct{ To wtypes.UserId }
type C2SPublishedWorld struct{ Friends []wtypes.UserId }
type C2SClosedWorld struct{ Friends []wtypes.UserId }
type C2SRequestJoin struct{ Friend wtypes.UserId }
type C2SJoinGranted struct {
	Cid      wtypes.ConnectionId
	JoinType JoinType
}
type C2SQueryRequest struct{ Friends []wtypes.UserId }
type C2SQueryResponse struct {
	Cid  wtypes.ConnectionId
	Data []byte
}
type C2SProxyS2CPacket struct {
	ProxyCid uint64
	Data     []byte
}
type C2SProxyDisconnect struct{ ProxyCid uint64 }
type C2SRequestDirectJoin struct{ Cid wtypes.ConnectionId }
type C2SNewQueryResponse struct {
	Cid  wtypes.ConnectionId
	Data []byte
}
type C2SRequestPunchOpen struct {
	TargetCid   wtypes.ConnectionId
	Purpose     string
	PunchId     wtypes.UserId
	MyHost      string
	MyPort      uint16
	MyLocalHost string
	MyLocalPort uint16
}
type C2SPunchFailed struct {
	TargetCid wtypes.ConnectionId
	PunchId   wtypes.UserId
}
type C2SBeginPortLookup struct{ LookupId wtypes.UserId }
type C2SPunchSuccess struct {
	Cid     wtypes.ConnectionId
	PunchId wtypes.UserId
	Host    string
	Port    uint16
}

func (C2SListOnline) TypeID() byte         { return 0 }
func (C2SFriendRequest) TypeID() byte      { return 1 }
func (C2SPublishedWorld) TypeID() byte     { return 2 }
func (C2SClosedWorld) TypeID() byte        { return 3 }
func (C2SRequestJoin) TypeID() byte        { return 4 }
func (C2SJoinGranted) TypeID() byte        { return 5 }
func (C2SQueryRequest) TypeID() byte       { return 6 }
func (C2SQueryResponse) TypeID() byte      { return 7 }
func (C2SProxyS2CPacket) TypeID() byte     { return 8 }
func (C2SProxyDisconnect) TypeID() byte    { return 9 }
func (C2SRequestDirectJoin) TypeID() byte  { return 10 }
func (C2SNewQueryResponse) TypeID() byte   { return 11 }
func (C2SRequestPunchOpen) TypeID() byte   { return 12 }
func (C2SPunchFailed) TypeID() byte        { return 13 }
func (C2SBeginPortLookup) TypeID() byte    { return 14 }
func (C2SPunchSuccess) TypeID() byte       { return 15 }

func (C2SListOnline) FirstProtocol() uint32        { return 2 }
func (C2SFriendRequest) FirstProtocol() uint32     { return 2 }
func (C2SPublishedWorld) FirstProtocol() uint32    { return 2 }
func (C2SClosedWorld) FirstProtocol() uint32       { return 2 }
func (C2SRequestJoin) FirstProtocol() uint32       { return 2 }
func (C2SJoinGranted) FirstProtocol() uint32       { return 2 }
func (C2SQueryRequest) FirstProtocol() uint32      { return 2 }
func (C2SQueryResponse) FirstProtocol() uint32     { return 2 }
func (C2SProxyS2CPacket) FirstProtocol() uint32    { return 2 }
func (C2SProxyDisconnect) FirstProtocol() uint32   { return 2 }
func (C2SRequestDirectJoin) FirstProtocol() uint32 { return 4 }
func (C2SNewQueryResponse) FirstProtocol() uint32  { return 5 }
func (C2SRequestPunchOpen) FirstProtocol() uint32  { return 7 }
func (C2SPunchFailed) FirstProtocol() uint32       { return 7 }
func (C2SBeginPortLookup) FirstProtocol() uint32   { return 7 }
func (C2SPunchSuccess) FirstProtocol() uint32      { return 7 }

// C2SFirstProtocol returns the introduced-in protocol version for a
// C2S type id, or false if the id is unknown.
func C2SFirstProtocol(id byte) (uint32, bool) {
	switch id {
	case 0, 1, 2, 3, 4, 5, 6, 7, 8, 9:
		return 2, true
	case 10:
		return 4, true
	case 11:
		return 5, true
	case 12, 13, 14, 15:
		return 7, true
	default:
		return 0, false
	}
}

// DecodeC2S decodes a client-to-server message of the given type id
// from payload (the frame body after the type byte).
func DecodeC2S(id byte, payload []byte) (C2SMessage, error) {
	r := NewReader(payload)
	switch id {
	case 0:
		friends, err := r.UUIDSlice()
		return C2SListOnline{Friends: friends}, err
	case 1:
		to, err := r.UUID()
		return C2SFriendRequest{To: to}, err
	case 2:
		friends, err := r.UUIDSlice()
		return C2SPublishedWorld{Friends: friends}, err
	case 3:
		friends, err := r.UUIDSlice()
		return C2SClosedWorld{Friends: friends}, err
	case 4:
		friend, err := r.UUID()
		return C2SRequestJoin{Friend: friend}, err
	case 5:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		jt, err := decodeJoinType(r)
		return C2SJoinGranted{Cid: cid, JoinType: jt}, err
	case 6:
		friends, err := r.UUIDSlice()
		return C2SQueryRequest{Friends: friends}, err
	case 7:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		data, err := r.LengthPrefixedBytes()
		return C2SQueryResponse{Cid: cid, Data: data}, err
	case 8:
		proxyCid, err := r.U64()
		if err != nil {
			return nil, err
		}
		return C2SProxyS2CPacket{ProxyCid: proxyCid, Data: r.Remainder()}, nil
	case 9:
		proxyCid, err := r.U64()
		return C2SProxyDisconnect{ProxyCid: proxyCid}, err
	case 10:
		cid, err := r.ConnectionId()
		return C2SRequestDirectJoin{Cid: cid}, err
	case 11:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		return C2SNewQueryResponse{Cid: cid, Data: r.Remainder()}, nil
	case 12:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		purpose, err := r.String()
		if err != nil {
			return nil, err
		}
		punchId, err := r.UUID()
		if err != nil {
			return nil, err
		}
		myHost, err := r.String()
		if err != nil {
			return nil, err
		}
		myPort, err := r.U16()
		if err != nil {
			return nil, err
		}
		myLocalHost, err := r.String()
		if err != nil {
			return nil, err
		}
		myLocalPort, err := r.U16()
		return C2SRequestPunchOpen{
			TargetCid: cid, Purpose: purpose, PunchId: punchId,
			MyHost: myHost, MyPort: myPort,
			MyLocalHost: myLocalHost, MyLocalPort: myLocalPort,
		}, err
	case 13:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		punchId, err := r.UUID()
		return C2SPunchFailed{TargetCid: cid, PunchId: punchId}, err
	case 14:
		lookupId, err := r.UUID()
		return C2SBeginPortLookup{LookupId: lookupId}, err
	case 15:
		cid, err := r.ConnectionId()
		if err != nil {
			return nil, err
		}
		punchId, err := r.UUID()
		if err != nil {
			return nil, err
		}
		host, err := r.String()
		if err != nil {
			return nil, err
		}
		port, err := r.U16()
		return C2SPunchSuccess{Cid: cid, PunchId: punchId, Host: host, Port: port}, err
	default:
		return nil, ErrUnknownC2SType(id)
	}
}

// ErrUnknownC2SType reports an unrecognised C2S type id.
type ErrUnknownC2SType byte

func (e ErrUnknownC2SType) Error() string {
	return "proto: unknown c2s type id " + itoa(byte(e))
}

// EncodeC2S renders a message back to wire bytes (the type byte is
// not included; callers write it via wire.Conn.WriteFrame). Mainly
// exercised by tests.
func EncodeC2S(m C2SMessage) []byte {
	w := NewWriter()
	switch v := m.(type) {
	case C2SListOnline:
		w.UUIDSlice(v.Friends)
	case C2SFriendRequest:
		w.UUID(v.To)
	case C2SPublishedWorld:
		w.UUIDSlice(v.Friends)
	case C2SClosedWorld:
		w.UUIDSlice(v.Friends)
	case C2SRequestJoin:
		w.UUID(v.Friend)
	case C2SJoinGranted:
		w.ConnectionId(v.Cid)
		w.U8(byte(v.JoinType.Kind))
		if v.JoinType.Kind == JoinTypeUPnP {
			w.U16(v.JoinType.Port)
		}
	case C2SQueryRequest:
		w.UUIDSlice(v.Friends)
	case C2SQueryResponse:
		w.ConnectionId(v.Cid)
		w.LengthPrefixedBytes(v.Data)
	case C2SProxyS2CPacket:
		w.U64(v.ProxyCid)
		w.Raw(v.Data)
	case C2SProxyDisconnect:
		w.U64(v.ProxyCid)
	case C2SRequestDirectJoin:
		w.ConnectionId(v.Cid)
	case C2SNewQueryResponse:
		w.ConnectionId(v.Cid)
		w.Raw(v.Data)
	case C2SRequestPunchOpen:
		w.ConnectionId(v.TargetCid)
		w.String(v.Purpose)
		w.UUID(v.PunchId)
		w.String(v.MyHost)
		w.U16(v.MyPort)
		w.String(v.MyLocalHost)
		w.U16(v.MyLocalPort)
	case C2SPunchFailed:
		w.ConnectionId(v.TargetCid)
		w.UUID(v.PunchId)
	case C2SBeginPortLookup:
		w.UUID(v.LookupId)
	case C2SPunchSuccess:
		w.ConnectionId(v.Cid)
		w.UUID(v.PunchId)
		w.String(v.Host)
		w.U16(v.Port)
	}
	return w.Bytes()
}
