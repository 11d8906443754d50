package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Dial connects the workbench side to an extension host's channel endpoint.
// The returned peer is idle until Run is called.
func Dial(ctx context.Context, url, token string, router *Router, callTimeout time.Duration, logger zerolog.Logger) (*Peer, error) {
	header := http.Header{}
	if token != "" {
		header.Set(AuthHeader, token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("channel dial %s failed (%s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("channel dial %s failed: %w", url, err)
	}

	return NewPeer(conn, router, callTimeout, logger), nil
}
