// Package relay implements the TCP relay (proxy) subsystem of
// spec.md §4.7: an ingress listener that sniffs a game-protocol
// handshake packet to learn which registered control-plane
// connection a client means to reach, then tunnels raw bytes to and
// from that connection as ProxyC2SPacket/ProxyS2CPacket/ProxyConnect/
// ProxyDisconnect control-plane messages.
//
// Grounded on original_source/src/modules/proxy_server.rs for the
// accept-loop, handshake-sniff, and retry-and-reresolve shape.
package relay

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/connid"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/session"
	"github.com/worldhost/server/pkg/wtypes"
)

// maxHandshakeLength bounds the VarInt-prefixed handshake packet body
// read from a newly accepted ingress connection.
const maxHandshakeLength = 64 * 1024

// forwardTimeout and forwardRetryInterval implement spec.md §4.7's
// "retry every 50ms for up to 5s, re-resolving the target cid each
// time" rule.
const (
	forwardTimeout       = 5 * time.Second
	forwardRetryInterval = 50 * time.Millisecond
)

// chunkSize is the read buffer size for the post-handshake tunnel
// loop.
const chunkSize = 64 * 1024

// Config holds the relay's static settings.
type Config struct {
	// BaseAddr is the hostname clients are told to use
	// (my-cid.BaseAddr); used only to recognise the "please use this
	// syntax" diagnostic case.
	BaseAddr string
}

// Relay accepts ingress TCP connections and tunnels them to
// registered control-plane connections.
type Relay struct {
	cfg     Config
	reg     *registry.Registry
	proxies *session.ProxyConnections
	log     zerolog.Logger
}

// New builds a Relay serving against the given registry and proxy
// table, shared with the control-plane session.Handler.
func New(cfg Config, reg *registry.Registry, proxies *session.ProxyConnections, log zerolog.Logger) *Relay {
	return &Relay{cfg: cfg, reg: reg, proxies: proxies, log: log}
}

// Serve accepts connections from ln until it returns an error (e.g.
// on Close).
func (r *Relay) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go r.handleConn(conn)
	}
}

func (r *Relay) handleConn(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	raw, addr, port, nextState, ok := r.readHandshake(br)
	if !ok {
		return
	}

	cidStr := addr
	if idx := strings.IndexByte(addr, '.'); idx >= 0 {
		cidStr = addr[:idx]
	}
	targetID, err := connid.Parse(cidStr)
	if err != nil {
		var message string
		if addr == r.cfg.BaseAddr {
			show := addr
			if port != 25565 {
				show = addr + ":" + portString(port)
			}
			message = "Please use the syntax my-connection-id." + show
		} else {
			message = "Invalid connection ID: " + err.Error()
		}
		writeDisconnect(conn, nextState, message)
		return
	}

	target := r.reg.ByID(targetID)
	if target == nil {
		writeDisconnect(conn, nextState, "No world host connection is currently registered with that id.")
		return
	}

	remoteAddr, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	entry := r.proxies.Register(targetID, targetID, conn)
	defer r.closeProxy(entry.ID, targetID)

	r.log.Info().
		Uint64("proxyCid", entry.ID).
		Uint64("targetCid", uint64(targetID)).
		Str("remote", conn.RemoteAddr().String()).
		Msg("accepted proxy connection")

	if err := target.Send(proto.S2CProxyConnect{ProxyCid: entry.ID, RemoteAddr: remoteAddr.Addr()}); err != nil {
		return
	}
	if !r.forward(targetID, entry.ID, raw) {
		return
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if !r.forward(targetID, entry.ID, buf[:n]) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// readHandshake reads the single VarInt-length-prefixed game-protocol
// handshake packet (spec.md §4.7), returning the raw re-frameable
// bytes alongside the parsed address/port/nextState fields.
func (r *Relay) readHandshake(br *bufio.Reader) (raw []byte, addr string, port uint16, nextState int32, ok bool) {
	length, err := readVarInt(br)
	if err != nil || length < 0 || int(length) > maxHandshakeLength {
		return nil, "", 0, 0, false
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, "", 0, 0, false
	}

	var header bytes.Buffer
	writeVarInt(&header, length)
	raw = append(header.Bytes(), body...)

	pr := bytes.NewReader(body)
	if _, err := readVarInt(pr); err != nil { // packet id
		return nil, "", 0, 0, false
	}
	if _, err := readVarInt(pr); err != nil { // protocol version
		return nil, "", 0, 0, false
	}
	addr, err = readMCString(pr, 255)
	if err != nil {
		return nil, "", 0, 0, false
	}
	port, err = readU16(pr)
	if err != nil {
		return nil, "", 0, 0, false
	}
	nextState, err = readVarInt(pr)
	if err != nil {
		return nil, "", 0, 0, false
	}
	return raw, addr, port, nextState, true
}

// forward delivers data to targetID as a ProxyC2SPacket, retrying
// every 50ms for up to 5s and re-resolving the target connection on
// each attempt (it may have reconnected under the same id).
func (r *Relay) forward(targetID wtypes.ConnectionId, proxyCid uint64, data []byte) bool {
	deadline := time.Now().Add(forwardTimeout)
	for {
		if target := r.reg.ByID(targetID); target != nil {
			if err := target.Send(proto.S2CProxyC2SPacket{ProxyCid: proxyCid, Data: data}); err == nil {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(forwardRetryInterval)
	}
}

// closeProxy drops the ProxyConnections entry and notifies the
// target (best-effort), per spec.md §4.7's close semantics.
func (r *Relay) closeProxy(proxyCid uint64, targetID wtypes.ConnectionId) {
	r.proxies.Remove(proxyCid)
	if target := r.reg.ByID(targetID); target != nil {
		if err := target.Send(proto.S2CProxyDisconnect{ProxyCid: proxyCid}); err != nil {
			r.log.Warn().Uint64("proxyCid", proxyCid).Err(err).Msg("failed to notify target of proxy disconnect")
		}
	}
}

func portString(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}
