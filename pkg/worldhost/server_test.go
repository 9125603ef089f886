package worldhost

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/wire"
	"github.com/worldhost/server/pkg/wtypes"
)

func TestNewBuildsServerWithDefaults(t *testing.T) {
	cfg := Config{Addr: ":0", InJavaPort: 25565, ExJavaPort: 25565}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if s.Handler.Config.ExJavaPort != 25565 {
		t.Fatalf("ExJavaPort = %d, want 25565", s.Handler.Config.ExJavaPort)
	}
	if s.Handler.Config.LatestVersion != proto.Current {
		t.Fatalf("LatestVersion = %d, want %d", s.Handler.Config.LatestVersion, proto.Current)
	}
	if len(s.Handler.ExternalProxies) != 0 {
		t.Fatalf("expected no external proxies without a configured file")
	}
}

func TestNewLoadsSelfBaseAddrFromExternalProxies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "external_proxies.json")
	const doc = `[
		{"latLong":[40.7,-74.0],"baseAddr":"self.example"},
		{"latLong":[51.5,-0.1],"addr":"lon.example"}
	]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Addr: ":0", ExternalProxies: path}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if s.Handler.Config.BaseAddr != "self.example" {
		t.Fatalf("BaseAddr = %q, want self.example", s.Handler.Config.BaseAddr)
	}
	if len(s.Handler.ExternalProxies) != 1 || s.Handler.ExternalProxies[0].Host != "lon.example" {
		t.Fatalf("ExternalProxies = %+v", s.Handler.ExternalProxies)
	}
}

func TestNewPrefersConfigBaseAddrOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "external_proxies.json")
	const doc = `[{"latLong":[0,0],"baseAddr":"file.example"}]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Addr: ":0", BaseAddr: "flag.example", ExternalProxies: path}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if s.Handler.Config.BaseAddr != "flag.example" {
		t.Fatalf("BaseAddr = %q, want flag.example (config wins)", s.Handler.Config.BaseAddr)
	}
}

func TestNewToleratesMissingExternalProxiesFile(t *testing.T) {
	cfg := Config{Addr: ":0", ExternalProxies: filepath.Join(t.TempDir(), "missing.json")}
	if _, err := New(cfg, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
}

func TestSendErrorWritesCriticalFrame(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	go func() {
		conn := wire.NewConn(serverSide, serverSide)
		sendError(conn, proto.Current, "That connection ID is taken.")
	}()

	clientConn := wire.NewConn(clientSide, clientSide)
	typ, payload, err := clientConn.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := proto.DecodeS2C(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	errMsg, ok := msg.(proto.S2CError)
	if !ok {
		t.Fatalf("got %T, want S2CError", msg)
	}
	if !errMsg.Critical || errMsg.Message != "That connection ID is taken." {
		t.Fatalf("got %+v", errMsg)
	}
}

// dialLegacyHandshake connects to addr and plays the pre-NEW_AUTH_PROTOCOL
// client side of the handshake (spec.md §4.3.1), claiming cid, then
// returns the open wire.Conn for the test to read/write frames on.
func dialLegacyHandshake(t *testing.T, addr string, cid wtypes.ConnectionId) *wire.Conn {
	t.Helper()
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { netConn.Close() })

	c := wire.NewConn(netConn, netConn)
	if err := c.WriteRaw(u32(2)); err != nil { // version 2: legacy
		t.Fatal(err)
	}
	u := uuid.New()
	if err := c.WriteRaw(u[:]); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteRaw(u32(uint32(uint64(cid) >> 32))); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteRaw(u32(uint32(uint64(cid)))); err != nil {
		t.Fatal(err)
	}
	return c
}

func u32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func TestHandleControlConnSameIPCollisionEvictsIncumbent(t *testing.T) {
	s := newTestServerWithListener(t)

	incoming := dialLegacyHandshake(t, s.addr, 42)
	incoming.ReadFrame() // drain the initial ConnectionInfo frame from OnLive

	// Give the first connection a moment to register before the collider dials.
	time.Sleep(50 * time.Millisecond)

	collider := dialLegacyHandshake(t, s.addr, 42)

	typ, payload, err := incoming.ReadFrame()
	if err != nil {
		t.Fatalf("expected incumbent to receive an eviction error frame: %v", err)
	}
	msg, err := proto.DecodeS2C(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	errMsg, ok := msg.(proto.S2CError)
	if !ok || !errMsg.Critical || errMsg.Message != "Connection ID taken by same IP" {
		t.Fatalf("got %+v (ok=%v)", msg, ok)
	}

	if _, _, err := incoming.ReadFrame(); err == nil {
		t.Fatal("expected the evicted incumbent's transport to be closed")
	}
	_ = collider
}

func TestHandleControlConnDifferentIPCollisionIsRejected(t *testing.T) {
	s := newTestServerWithListener(t)

	// Pre-register an incumbent under a different remote IP that never
	// frees the id, forcing the AwaitFreeID branch to time out.
	incumbent := registry.NewConnection(7, netip.MustParseAddr("203.0.113.9"), wtypes.UserId(uuid.New()), proto.Current, wtypes.Insecure, nil)
	if !s.Registry.Add(incumbent) {
		t.Fatal("failed to seed incumbent")
	}

	conn := dialLegacyHandshake(t, s.addr, 7)

	typ, payload, err := conn.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := proto.DecodeS2C(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	errMsg, ok := msg.(proto.S2CError)
	if !ok || !errMsg.Critical || errMsg.Message != "That connection ID is taken." {
		t.Fatalf("got %+v (ok=%v)", msg, ok)
	}
}

// testServer bundles a running control-plane listener with its Server
// for collision-path tests that need a real TCP round trip.
type testServer struct {
	*Server
	addr string
}

func newTestServerWithListener(t *testing.T) *testServer {
	t.Helper()
	cfg := Config{Addr: "127.0.0.1:0"}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go s.serveControlPlane(ln)

	return &testServer{Server: s, addr: ln.Addr().String()}
}
