package punch

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/session"
	"github.com/worldhost/server/pkg/wtypes"
)

func TestHandleSignalDeliversPortLookupSuccess(t *testing.T) {
	reg := registry.New()
	pl := session.NewPortLookups()
	l := New(reg, pl, zerolog.Nop())

	self := registry.NewConnection(1, netip.MustParseAddr("203.0.113.9"), wtypes.UserId(uuid.New()), 7, wtypes.Secure, nil)
	if !reg.Add(self) {
		t.Fatal("Add failed")
	}

	lookupID := wtypes.UserId(uuid.New())
	pl.Begin(lookupID, self.ID)

	l.handleSignal(lookupID, &net.UDPAddr{IP: net.ParseIP("198.51.100.20"), Port: 40000})

	if _, ok := pl.Source(lookupID); ok {
		t.Fatal("expected lookup to be removed after a successful signal")
	}
}

func TestHandleSignalIgnoresUnknownLookup(t *testing.T) {
	reg := registry.New()
	pl := session.NewPortLookups()
	l := New(reg, pl, zerolog.Nop())

	// Should not panic and should simply be a no-op.
	l.handleSignal(wtypes.UserId(uuid.New()), &net.UDPAddr{IP: net.ParseIP("198.51.100.20"), Port: 40000})
}

func TestOnExpireIsANoOpForUnregisteredSource(t *testing.T) {
	reg := registry.New()
	pl := session.NewPortLookups()
	l := New(reg, pl, zerolog.Nop())

	// Source connection id 99 was never registered; onExpire must not panic.
	l.onExpire(session.ExpiredLookup{LookupID: wtypes.UserId(uuid.New()), Source: 99})
}

func TestOnExpireDeliversToRegisteredSource(t *testing.T) {
	reg := registry.New()
	pl := session.NewPortLookups()
	l := New(reg, pl, zerolog.Nop())

	self := registry.NewConnection(2, netip.MustParseAddr("203.0.113.9"), wtypes.UserId(uuid.New()), 7, wtypes.Secure, nil)
	if !reg.Add(self) {
		t.Fatal("Add failed")
	}

	// A nil Conn makes Send a no-op; this exercises the lookup path
	// without needing a real wire.Conn.
	l.onExpire(session.ExpiredLookup{LookupID: wtypes.UserId(uuid.New()), Source: self.ID})
}
