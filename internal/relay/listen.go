package relay

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Listen opens the server's listener. addr is either a loopback "host:port"
// or "unix:/path/to/socket". Unix sockets are restricted to the owning user;
// TCP refuses non-loopback hosts so the channel never leaves the machine.
func Listen(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return listenUnix(path)
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if !isLoopbackHost(host) {
		return nil, fmt.Errorf("listen address %q is not loopback", addr)
	}
	return net.Listen("tcp", addr)
}

func listenUnix(path string) (net.Listener, error) {
	// A leftover socket from a dead process blocks the bind.
	if _, err := os.Stat(path); err == nil {
		if conn, dialErr := net.Dial("unix", path); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("socket %s is already in use", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	return &sameUserListener{Listener: listener}, nil
}

// sameUserListener drops unix connections whose peer is another user.
type sameUserListener struct {
	net.Listener
}

func (l *sameUserListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		unixConn, ok := conn.(*net.UnixConn)
		if !ok {
			return conn, nil
		}
		if err := checkPeerUser(unixConn); err != nil {
			_ = conn.Close()
			continue
		}
		return conn, nil
	}
}

func isLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(strings.Trim(h, "[]"))
	return ip != nil && ip.IsLoopback()
}
