package session

import (
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/wtypes"
)

func newHandler() *Handler {
	return &Handler{
		Registry:    registry.New(),
		Friends:     registry.NewFriendRequests(),
		Proxies:     NewProxyConnections(),
		PortLookups: NewPortLookups(),
		Log:         zerolog.Nop(),
	}
}

func newTestConn(h *Handler, id wtypes.ConnectionId, protocol uint32) *registry.Connection {
	var u uuid.UUID
	u[0] = byte(id)
	u[6] = (u[6] & 0x0f) | 0x40
	c := registry.NewConnection(id, netip.MustParseAddr("198.51.100.1"), wtypes.UserId(u), protocol, wtypes.Secure, nil)
	h.Registry.Add(c)
	return c
}

func TestDispatchFriendRequestQueuesWhenOffline(t *testing.T) {
	h := newHandler()
	self := newTestConn(h, 1, 7)
	target := wtypes.UserId(uuid.New())

	if err := h.Dispatch(self, proto.C2SFriendRequest{To: target}); err != nil {
		t.Fatal(err)
	}
	// no live connection for target: request should be queued.
	drained := h.Friends.Drain(target)
	if len(drained) != 1 || drained[0] != self.UserID {
		t.Fatalf("drained = %+v, want [self.UserID]", drained)
	}
}

func TestDispatchRequestJoinRejectedForModernProtocol(t *testing.T) {
	h := newHandler()
	self := newTestConn(h, 1, 5)

	err := h.Dispatch(self, proto.C2SRequestJoin{Friend: wtypes.UserId(uuid.New())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchRequestDirectJoinNotFound(t *testing.T) {
	h := newHandler()
	self := newTestConn(h, 1, 7)

	err := h.Dispatch(self, proto.C2SRequestDirectJoin{Cid: 999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchPunchOpenCancelledIfTargetIsOldProtocol(t *testing.T) {
	h := newHandler()
	self := newTestConn(h, 1, 7)
	old := newTestConn(h, 2, 6)

	punchID := wtypes.UserId(uuid.New())
	if err := h.Dispatch(self, proto.C2SRequestPunchOpen{TargetCid: old.ID, PunchId: punchID}); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchBeginAndExpirePortLookup(t *testing.T) {
	h := newHandler()
	self := newTestConn(h, 1, 7)
	lookupID := wtypes.UserId(uuid.New())

	if err := h.Dispatch(self, proto.C2SBeginPortLookup{LookupId: lookupID}); err != nil {
		t.Fatal(err)
	}
	source, ok := h.PortLookups.Source(lookupID)
	if !ok || source != self.ID {
		t.Fatalf("source = %v, %v; want %v, true", source, ok, self.ID)
	}
}
