// Package relay carries protocol frames between the extension host and the
// workbench over a local websocket channel. A Peer wraps one connection end:
// it matches replies to calls, dispatches inbound work to a Router, and
// forwards cancellation in both directions.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/protocol"
)

// DefaultCallTimeout bounds a call when the other side never replies.
const DefaultCallTimeout = 30 * time.Second

// eventBuffer bounds the queue between the read loop and the event worker.
const eventBuffer = 64

type pendingCall struct {
	resolve chan json.RawMessage
	reject  chan error
}

// Peer is one end of the channel.
type Peer struct {
	conn        *websocket.Conn
	router      *Router
	logger      zerolog.Logger
	callTimeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Uint64

	events chan *protocol.Envelope

	mu       sync.Mutex
	pending  map[uint64]*pendingCall
	inflight map[uint64]context.CancelFunc
	closed   bool
}

// NewPeer wraps conn. The peer does nothing until Run is called; callTimeout
// of zero means DefaultCallTimeout.
func NewPeer(conn *websocket.Conn, router *Router, callTimeout time.Duration, logger zerolog.Logger) *Peer {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Peer{
		conn:        conn,
		router:      router,
		logger:      logger.With().Str("component", "relay-peer").Logger(),
		callTimeout: callTimeout,
		events:      make(chan *protocol.Envelope, eventBuffer),
		pending:     make(map[uint64]*pendingCall),
		inflight:    make(map[uint64]context.CancelFunc),
	}
}

// Run reads frames until the connection drops. Calls run on their own
// goroutines; events go through a single worker so they reach handlers in
// arrival order. It returns nil on a clean close.
func (p *Peer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(logging.WithContext(ctx, p.logger))
	defer cancel()

	go p.serveEvents(ctx)

	var readErr error
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		p.dispatch(ctx, data)
	}

	p.shutdown()

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return readErr
}

// Close tears the connection down; Run returns shortly after.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Call sends a request and waits for its reply, the call timeout, or ctx.
// Cancelling ctx tells the other side to abandon the call.
func (p *Peer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := p.nextID.Add(1)
	call := &pendingCall{
		resolve: make(chan json.RawMessage, 1),
		reject:  make(chan error, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPeerClosed
	}
	p.pending[id] = call
	p.mu.Unlock()

	timer := time.AfterFunc(p.callTimeout, func() {
		if taken := p.take(id); taken != nil {
			taken.reject <- fmt.Errorf("%w: %s", ErrCallTimeout, method)
		}
	})
	defer timer.Stop()

	if err := p.write(&protocol.Envelope{ID: id, Method: method, Params: raw}); err != nil {
		p.take(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case result := <-call.resolve:
		return result, nil
	case err := <-call.reject:
		return nil, err
	case <-ctx.Done():
		if taken := p.take(id); taken != nil {
			if err := p.Notify(protocol.MethodCancel, protocol.CancelParams{ID: id}); err != nil {
				p.logger.Debug().Err(err).Uint64("id", id).Msg("cancel notify failed")
			}
		}
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget event.
func (p *Peer) Notify(method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return p.write(&protocol.Envelope{Method: method, Params: raw})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return raw, nil
}

func (p *Peer) write(env *protocol.Envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(env)
}

// take removes and returns the pending call for id, or nil if it was already
// settled. Every settlement path goes through take exactly once.
func (p *Peer) take(id uint64) *pendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.pending[id]
	delete(p.pending, id)
	return call
}

func (p *Peer) dispatch(ctx context.Context, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		p.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch {
	case env.IsReply():
		p.settle(&env)
	case env.IsCall():
		go p.serveCall(ctx, &env)
	case env.IsEvent():
		// Cancellation must overtake queued work to reach its call in time.
		if env.Method == protocol.MethodCancel {
			p.cancelInflight(env.Params)
			return
		}
		select {
		case p.events <- &env:
		default:
			p.logger.Warn().Str("method", env.Method).Msg("event queue full, dropping event")
		}
	default:
		p.logger.Warn().Msg("dropping frame with neither id nor method")
	}
}

func (p *Peer) settle(env *protocol.Envelope) {
	call := p.take(env.ID)
	if call == nil {
		p.logger.Debug().Uint64("id", env.ID).Msg("reply for settled call")
		return
	}
	if env.Error != nil {
		call.reject <- protocol.FromWireError(env.Error)
		return
	}
	call.resolve <- env.Result
}

func (p *Peer) serveCall(ctx context.Context, env *protocol.Envelope) {
	callCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.inflight[env.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inflight, env.ID)
		p.mu.Unlock()
		cancel()
	}()

	result, err := p.router.dispatch(callCtx, env.Method, env.Params)

	reply := protocol.Envelope{ID: env.ID}
	if err != nil {
		reply.Error = protocol.ToWireError(err)
	} else if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			reply.Error = protocol.ToWireError(fmt.Errorf("failed to encode result: %w", mErr))
		} else {
			reply.Result = raw
		}
	}

	if wErr := p.write(&reply); wErr != nil {
		p.logger.Debug().Err(wErr).Str("method", env.Method).Msg("reply write failed")
	}
}

// serveEvents drains the event queue one handler at a time, preserving
// arrival order. A handler error fails that event only.
func (p *Peer) serveEvents(ctx context.Context) {
	for {
		select {
		case env := <-p.events:
			if _, err := p.router.dispatch(ctx, env.Method, env.Params); err != nil {
				p.logger.Warn().Err(err).Str("method", env.Method).Msg("event handler failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Peer) cancelInflight(params json.RawMessage) {
	var cp protocol.CancelParams
	if err := json.Unmarshal(params, &cp); err != nil {
		p.logger.Warn().Err(err).Msg("malformed cancel event")
		return
	}

	p.mu.Lock()
	cancel := p.inflight[cp.ID]
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// shutdown rejects every pending call once the connection is gone.
func (p *Peer) shutdown() {
	p.mu.Lock()
	p.closed = true
	calls := p.pending
	p.pending = make(map[uint64]*pendingCall)
	p.mu.Unlock()

	for _, call := range calls {
		call.reject <- ErrPeerClosed
	}
}
