package worldhost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/worldhost/server/internal/sdnotify"
	"github.com/worldhost/server/pkg/connid"
	"github.com/worldhost/server/pkg/geoip"
	"github.com/worldhost/server/pkg/handshake"
	"github.com/worldhost/server/pkg/profile"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/punch"
	"github.com/worldhost/server/pkg/ratelimit"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/relay"
	"github.com/worldhost/server/pkg/session"
	"github.com/worldhost/server/pkg/wire"
)

// idCollisionWait is spec.md §4.5's collision-retry window: a
// newcomer whose requested id belongs to a different remote IP polls
// this long before giving up.
const idCollisionWait = 500 * time.Millisecond

// evictTick is how often the rate limiter's buckets are swept for
// expired entries (spec.md §4.9).
const evictTick = 60 * time.Second

// Server wires together every subsystem of a running world host
// process: the control-plane session listener, the TCP relay, UDP
// signalling, the handshake key pair and profile verifier, GeoIP,
// analytics, and configured external proxies. Grounded on
// R2Northstar-Atlas's pkg/atlas.Server for the overall Run/sdnotify
// shape and on original_source/src/server_state.rs for what a world
// host process actually starts up.
type Server struct {
	Config Config
	Log    zerolog.Logger

	Registry    *registry.Registry
	Friends     *registry.FriendRequests
	Proxies     *session.ProxyConnections
	PortLookups *session.PortLookups
	Handler     *session.Handler
	Keys        *handshake.KeyPair
	Verifier    handshake.Verifier
	GeoIP       *geoip.Map
	Relay       *relay.Relay
	Punch       *punch.Listener
	Limiter     *ratelimit.Limiter[netip.Addr]

	selfBaseAddr string
	closed       bool
}

// New builds a Server from cfg: generates the handshake key pair,
// loads GeoIP and external-proxy data if configured, and wires every
// subsystem against one shared Registry/FriendRequests/ProxyConnections/
// PortLookups set. It performs no I/O beyond reading the configured
// GeoIP database and external_proxies.json.
func New(cfg Config, log zerolog.Logger) (*Server, error) {
	keys, err := handshake.NewKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate handshake keypair: %w", err)
	}

	var geoipMap *geoip.Map
	if cfg.IP2Location != "" {
		f, err := os.Open(cfg.IP2Location)
		if err != nil {
			return nil, fmt.Errorf("open geoip database: %w", err)
		}
		geoipMap, err = geoip.Load(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load geoip database: %w", err)
		}
	}

	var extProxies []session.ExternalProxy
	baseAddr := cfg.BaseAddr
	if cfg.ExternalProxies != "" {
		f, err := os.Open(cfg.ExternalProxies)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", cfg.ExternalProxies, err)
		}
		if err == nil {
			remote, self, err := LoadExternalProxies(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", cfg.ExternalProxies, err)
			}
			extProxies = remote
			if self != nil && self.BaseAddr != "" {
				if baseAddr != "" && baseAddr != self.BaseAddr {
					log.Warn().
						Str("flagValue", baseAddr).
						Str("fileValue", self.BaseAddr).
						Msg("base address set both by config and external_proxies.json; config wins")
				} else {
					baseAddr = self.BaseAddr
				}
			}
		}
	}

	reg := registry.New()
	friends := registry.NewFriendRequests()
	proxies := session.NewProxyConnections()
	portLookups := session.NewPortLookups()

	handler := &session.Handler{
		Registry:    reg,
		Friends:     friends,
		Proxies:     proxies,
		PortLookups: portLookups,
		GeoIP:       geoipMap,
		ExternalProxies: extProxies,
		Config: session.Config{
			BaseAddr:      baseAddr,
			ExJavaPort:    uint16(cfg.ExJavaPort),
			LatestVersion: proto.Current,
		},
		Log: log,
	}

	s := &Server{
		Config:       cfg,
		Log:          log,
		Registry:     reg,
		Friends:      friends,
		Proxies:      proxies,
		PortLookups:  portLookups,
		Handler:      handler,
		Keys:         keys,
		Verifier:     profile.NewClient(profile.SessionHost),
		GeoIP:        geoipMap,
		Relay:        relay.New(relay.Config{BaseAddr: baseAddr}, reg, proxies, log),
		Punch:        punch.New(reg, portLookups, log),
		Limiter:      ratelimit.DefaultLimiter[netip.Addr](),
		selfBaseAddr: baseAddr,
	}
	return s, nil
}

// Run starts every listener and blocks until ctx is canceled, then
// shuts down gracefully. It must only ever be called once.
func (s *Server) Run(ctx context.Context) error {
	if s.closed {
		return errors.New("worldhost: server already run")
	}

	ln, err := net.Listen("tcp", s.Config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Config.Addr, err)
	}
	defer ln.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", s.Config.Addr)
	if err != nil {
		return fmt.Errorf("resolve udp %s: %w", s.Config.Addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", s.Config.Addr, err)
	}
	defer udpConn.Close()

	var relayLn net.Listener
	if s.selfBaseAddr != "" {
		relayLn, err = net.Listen("tcp", fmt.Sprintf(":%d", s.Config.InJavaPort))
		if err != nil {
			return fmt.Errorf("listen relay :%d: %w", s.Config.InJavaPort, err)
		}
		defer relayLn.Close()
	}

	stop := make(chan struct{})
	defer close(stop)

	errch := make(chan error, 4)
	go func() { errch <- s.serveControlPlane(ln) }()
	go func() { errch <- s.Punch.Serve(udpConn) }()
	if relayLn != nil {
		go func() { errch <- s.Relay.Serve(relayLn) }()
	}
	go s.Limiter.Run(stop, evictTick)
	go runAnalytics(stop, "analytics.csv", s.Config.AnalyticsTime, s.Registry, s.Log)
	s.pingExternalProxies()

	var shutdownTimer <-chan time.Time
	if s.Config.ShutdownTime > 0 {
		t := time.NewTimer(s.Config.ShutdownTime)
		defer t.Stop()
		shutdownTimer = t.C
	}

	s.Log.Info().Str("addr", s.Config.Addr).Msg("world host listening")
	go sdnotify.Notify(s.Config.NotifySocket, "READY=1")

	select {
	case <-ctx.Done():
	case <-shutdownTimer:
		s.Log.Info().Msg("shutdown-time elapsed, stopping")
	case err := <-errch:
		s.Log.Error().Err(err).Msg("listener failed")
		return err
	}

	s.closed = true
	s.Log.Info().Msg("shutting down")
	sdnotify.Notify(s.Config.NotifySocket, "STOPPING=1")
	return nil
}

// pingExternalServers probes each configured external proxy with a
// bare TCP dial-and-close, logging reachability. Grounded on
// original_source/src/server_state.rs's ping_external_servers: this
// is a liveness check, not a persistent connection.
func (s *Server) pingExternalProxies() {
	for _, p := range s.Handler.ExternalProxies {
		p := p
		go func() {
			addr := fmt.Sprintf("%s:%d", p.Host, p.Port)
			conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
			if err != nil {
				s.Log.Warn().Str("proxy", addr).Err(err).Msg("external proxy unreachable")
				return
			}
			conn.Close()
			s.Log.Info().Str("proxy", addr).Msg("external proxy reachable")
		}()
	}
}

// sendError writes a critical Error frame directly, bypassing
// Connection.Send since the caller either has no registered
// Connection yet or is rejecting one before registration completes.
func sendError(conn *wire.Conn, protocol uint32, message string) {
	msg := proto.S2CError{Message: message, Critical: true}
	conn.WriteFrame(msg.TypeID(), proto.EncodeS2C(msg, protocol))
}

// serveControlPlane accepts control-plane TCP connections until ln
// errors (e.g. on Close), spawning one goroutine per connection.
func (s *Server) serveControlPlane(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleControlConn(conn)
	}
}

func (s *Server) handleControlConn(netConn net.Conn) {
	defer netConn.Close()

	remoteAddr, err := netip.ParseAddrPort(netConn.RemoteAddr().String())
	if err != nil {
		return
	}
	remoteIP := remoteAddr.Addr()

	if lim := s.Limiter.Allow(remoteIP); lim != nil {
		conn := wire.NewConn(netConn, netConn)
		sendError(conn, proto.Current, lim.Error())
		return
	}

	wireConn := wire.NewConn(netConn, netConn)
	outcome, err := handshake.Negotiate(wireConn, remoteIP, s.Keys, s.Verifier)
	if err != nil {
		if !errors.Is(err, handshake.ErrLivenessPing) {
			var rejected *handshake.RejectedError
			if !errors.As(err, &rejected) {
				s.Log.Debug().Err(err).Str("remote", remoteIP.String()).Msg("handshake failed")
			}
		}
		return
	}

	self := registry.NewConnection(outcome.ConnID, remoteIP, outcome.UserID, outcome.Protocol, outcome.Security, wireConn)
	self.SetCloser(netConn)

	if !s.Registry.Add(self) {
		if incumbent := s.Registry.ByID(outcome.ConnID); incumbent != nil && incumbent.RemoteIP == remoteIP {
			incumbent.Send(proto.S2CError{Message: "Connection ID taken by same IP", Critical: true})
			incumbent.Close()
			s.Registry.AddForce(self)
		} else if s.Registry.AwaitFreeID(outcome.ConnID, idCollisionWait) {
			if !s.Registry.Add(self) {
				sendError(wireConn, outcome.Protocol, "That connection ID is taken.")
				return
			}
		} else {
			sendError(wireConn, outcome.Protocol, "That connection ID is taken.")
			return
		}
	}
	defer s.Registry.Remove(self)

	s.Log.Info().
		Uint64("cid", uint64(self.ID)).
		Str("conn", connid.Render(self.ID)).
		Str("remote", remoteIP.String()).
		Msg("connection live")

	if outcome.Warning != "" {
		self.Send(proto.S2CError{Message: outcome.Warning, Critical: false})
	}
	s.Handler.OnLive(self, 0)

	for {
		typ, payload, err := wireConn.ReadFrame()
		if err != nil {
			return
		}
		msg, err := proto.DecodeC2S(typ, payload)
		if err != nil {
			s.Log.Debug().Err(err).Uint64("cid", uint64(self.ID)).Msg("failed to decode message")
			return
		}
		if err := s.Handler.Dispatch(self, msg); err != nil {
			s.Log.Debug().Err(err).Uint64("cid", uint64(self.ID)).Msg("dispatch failed")
			return
		}
	}
}
