package proto

import (
	"math/rand"
	"net/netip"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/worldhost/server/pkg/wtypes"
)

func randUserId(rng *rand.Rand) wtypes.UserId {
	var u uuid.UUID
	rng.Read(u[:])
	return wtypes.UserId(u)
}

func TestC2SRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	friend := randUserId(rng)

	cases := []C2SMessage{
		C2SListOnline{Friends: []wtypes.UserId{friend, randUserId(rng)}},
		C2SFriendRequest{To: friend},
		C2SRequestJoin{Friend: friend},
		C2SJoinGranted{Cid: 12345, JoinType: JoinType{Kind: JoinTypeUPnP, Port: 7777}},
		C2SJoinGranted{Cid: 1, JoinType: JoinType{Kind: JoinTypeProxy}},
		C2SJoinGranted{Cid: 2, JoinType: JoinType{Kind: JoinTypePunch}},
		C2SQueryResponse{Cid: 99, Data: []byte("hello world")},
		C2SProxyS2CPacket{ProxyCid: 42, Data: []byte{1, 2, 3}},
		C2SRequestDirectJoin{Cid: 7},
		C2SNewQueryResponse{Cid: 8, Data: []byte("new")},
		C2SRequestPunchOpen{
			TargetCid: 3, Purpose: "join", PunchId: friend,
			MyHost: "1.2.3.4", MyPort: 1000, MyLocalHost: "10.0.0.1", MyLocalPort: 2000,
		},
		C2SPunchFailed{TargetCid: 3, PunchId: friend},
		C2SBeginPortLookup{LookupId: friend},
		C2SPunchSuccess{Cid: 3, PunchId: friend, Host: "1.2.3.4", Port: 1234},
	}

	for _, m := range cases {
		encoded := EncodeC2S(m)
		decoded, err := DecodeC2S(m.TypeID(), encoded)
		if err != nil {
			t.Fatalf("%T: decode error: %v", m, err)
		}
		if !reflect.DeepEqual(m, decoded) {
			t.Fatalf("%T: round trip mismatch: %+v != %+v", m, m, decoded)
		}
	}
}

func TestS2CRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	u := randUserId(rng)
	addr := netip.MustParseAddr("203.0.113.5")

	cases := []S2CMessage{
		S2CError{Message: "bad", Critical: true},
		S2CIsOnlineTo{User: u},
		S2COnlineGame{Host: "play.example", Port: 25565, OwnerCid: 555},
		S2CFriendRequest{FromUser: u, Security: wtypes.Secure},
		S2CPublishedWorld{User: u, Cid: 1, Security: wtypes.Offline},
		S2CClosedWorld{User: u},
		S2CRequestJoin{User: u, Cid: 2, Security: wtypes.Insecure},
		S2CQueryRequest{Friend: u, Cid: 3, Security: wtypes.Secure},
		S2CQueryResponseLegacy{Friend: u, Data: []byte("legacy")},
		S2CProxyC2SPacket{ProxyCid: 9, Data: []byte{9, 8, 7}},
		S2CProxyConnect{ProxyCid: 10, RemoteAddr: addr},
		S2CProxyDisconnect{ProxyCid: 11},
		S2CConnectionInfo{
			Cid: 4, BaseIp: "1.1.1.1", BasePort: 1, UserIp: "2.2.2.2",
			ProtocolVersion: 7, PunchPort: 2,
		},
		S2CExternalProxyServer{Host: "proxy.example", Port: 3, BaseAddr: "base", McPort: 4},
		S2COutdatedWorldHost{RecommendedVersion: "0.5.0"},
		S2CConnectionNotFound{Cid: 5},
		S2CNewQueryResponse{Friend: u, Data: []byte("new")},
		S2CWarning{Message: "careful", Important: false},
		S2CPunchOpenRequest{
			PunchId: u, Purpose: "join", FromHost: "1.1.1.1", FromPort: 1,
			Cid: 6, User: u, Security: wtypes.Secure,
		},
		S2CCancelPortLookup{LookupId: u},
		S2CPortLookupSuccess{LookupId: u, Host: "1.1.1.1", Port: 2},
		S2CPunchRequestCancelled{PunchId: u},
		S2CPunchSuccess{PunchId: u, Host: "1.1.1.1", Port: 3},
	}

	for _, m := range cases {
		encoded := EncodeS2C(m, Current)
		if encoded == nil {
			t.Fatalf("%T: unexpected nil encode at current protocol version", m)
		}
		decoded, err := DecodeS2C(m.TypeID(), encoded)
		if err != nil {
			t.Fatalf("%T: decode error: %v", m, err)
		}
		if !reflect.DeepEqual(m, decoded) {
			t.Fatalf("%T: round trip mismatch: %+v != %+v", m, m, decoded)
		}
	}
}

// TestS2CVersionGating covers P5: a message must not be sent to a
// recipient whose protocol version is below the message's
// FirstProtocol.
func TestS2CVersionGating(t *testing.T) {
	msg := S2CPunchSuccess{Host: "x", Port: 1}
	if got := EncodeS2C(msg, 6); got != nil {
		t.Fatalf("expected nil encode below FirstProtocol, got %v", got)
	}
	if got := EncodeS2C(msg, 7); got == nil {
		t.Fatal("expected non-nil encode at FirstProtocol")
	}
}

func TestSupportedRange(t *testing.T) {
	cases := map[uint32]bool{
		0: false, 1: false, 2: true, 7: true, 8: false,
	}
	for v, want := range cases {
		if got := Supported(v); got != want {
			t.Errorf("Supported(%d) = %v, want %v", v, got, want)
		}
	}
}

func TestVersionName(t *testing.T) {
	if got := VersionName(7); got != "0.5.0" {
		t.Fatalf("VersionName(7) = %q", got)
	}
	if got := VersionName(999); got != "" {
		t.Fatalf("VersionName(999) = %q, want empty", got)
	}
}

func TestDecodeUnknownTypeIds(t *testing.T) {
	if _, err := DecodeC2S(200, nil); err == nil {
		t.Fatal("expected error for unknown c2s type")
	}
	if _, err := DecodeS2C(200, nil); err == nil {
		t.Fatal("expected error for unknown s2c type")
	}
}
