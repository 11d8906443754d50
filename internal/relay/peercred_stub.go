//go:build !linux

package relay

import "net"

// checkPeerUser is a no-op where SO_PEERCRED is unavailable; the socket file
// mode still limits access to the owning user.
func checkPeerUser(_ *net.UnixConn) error {
	return nil
}
