// Package sdnotify sends readiness/liveness notifications to systemd
// via the NOTIFY_SOCKET datagram protocol (sd_notify(3)).
//
// Adapted from the sdnotify method on R2Northstar-Atlas's pkg/atlas.Server.
package sdnotify

import "net"

// Notify sends state to socket (the value of $NOTIFY_SOCKET), doing
// nothing and returning false, nil if socket is empty.
func Notify(socket, state string) (bool, error) {
	if socket == "" {
		return false, nil
	}

	addr := &net.UnixAddr{Name: socket, Net: "unixgram"}
	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		return false, err
	}
	return true, nil
}
