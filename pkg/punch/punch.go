// Package punch implements the UDP signalling listener of spec.md
// §4.8: clients trying to discover their own external ip:port for a
// hole-punch attempt send a bare 16-byte lookup id datagram; whoever
// it arrives from learns that address and reports it back to the
// control-plane connection that started the lookup.
//
// Grounded on original_source/src/modules/signalling_server.rs for
// the recv loop and the 1-second expiry pump.
package punch

import (
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/proto"
	"github.com/worldhost/server/pkg/registry"
	"github.com/worldhost/server/pkg/session"
	"github.com/worldhost/server/pkg/wtypes"
)

// signalSize is the fixed datagram size: a 16-byte UUID lookup id,
// any trailing bytes are ignored.
const signalSize = 16

// expiryTick is how often the port-lookup table is swept for timed
// out entries (spec.md §4.8).
const expiryTick = 1 * time.Second

// Listener answers UDP "port lookup" signals against a shared
// registry and port-lookup table.
type Listener struct {
	reg *registry.Registry
	pl  *session.PortLookups
	log zerolog.Logger
}

// New builds a Listener serving against the given registry and
// port-lookup table, shared with the control-plane session.Handler.
func New(reg *registry.Registry, pl *session.PortLookups, log zerolog.Logger) *Listener {
	return &Listener{reg: reg, pl: pl, log: log}
}

// Serve reads signals from conn until it errors (e.g. on Close).
func (l *Listener) Serve(conn *net.UDPConn) error {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		if n < signalSize {
			l.log.Warn().Int("bytes", n).Str("from", addr.String()).Msg("received undersized signal")
			continue
		}
		var raw [16]byte
		copy(raw[:], buf[:signalSize])
		lookupID := wtypes.UserId(raw)
		l.handleSignal(lookupID, addr)
	}
}

func (l *Listener) handleSignal(lookupID wtypes.UserId, addr *net.UDPAddr) {
	source, ok := l.pl.Source(lookupID)
	if !ok {
		return
	}
	l.pl.Remove(lookupID)

	conn := l.reg.ByID(source)
	if conn == nil {
		return
	}
	if err := conn.Send(proto.S2CPortLookupSuccess{
		LookupId: lookupID,
		Host:     addr.IP.String(),
		Port:     uint16(addr.Port),
	}); err != nil {
		l.log.Warn().Uint64("source", uint64(source)).Err(err).Msg("failed to deliver port lookup success")
	}
}

// RunExpiry ticks the shared port-lookup table once a second,
// notifying the originating connection with CancelPortLookup for
// every entry that times out (spec.md §4.8).
func (l *Listener) RunExpiry(stop <-chan struct{}) {
	t := time.NewTicker(expiryTick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, exp := range l.pl.ExpireOnce() {
				l.onExpire(exp)
			}
		}
	}
}

func (l *Listener) onExpire(exp session.ExpiredLookup) {
	conn := l.reg.ByID(exp.Source)
	if conn == nil {
		return
	}
	if err := conn.Send(proto.S2CCancelPortLookup{LookupId: exp.LookupID}); err != nil {
		l.log.Warn().Uint64("source", uint64(exp.Source)).Err(err).Msg("failed to deliver cancel port lookup")
	}
}
