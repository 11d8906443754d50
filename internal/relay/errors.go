package relay

import "errors"

var (
	ErrPeerClosed  = errors.New("relay: peer closed")
	ErrCallTimeout = errors.New("relay: call timed out")
	ErrNoSession   = errors.New("relay: no workbench session")
)
