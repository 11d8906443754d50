package workbench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alcoveio/alcove/internal/protocol"
	"github.com/alcoveio/alcove/pkg/alcove"
)

// ErrSessionClosed is returned by session operations after Close or after the
// channel dropped.
var ErrSessionClosed = errors.New("workbench: view session closed")

// messageBuffer bounds how many undrained webview messages a session keeps.
const messageBuffer = 16

// ViewSession is the workbench-side record of one live view: everything the
// extension pushed (title, badge, html, options, state) plus the message
// channel out of the view's content.
type ViewSession struct {
	wb       *Workbench
	handle   string
	viewType string

	closed atomic.Bool

	mu            sync.RWMutex
	title         string
	description   string
	badge         *alcove.Badge
	visible       bool
	preserveFocus bool
	html          string
	options       alcove.WebviewOptions
	state         json.RawMessage
	messages      chan json.RawMessage
}

func newViewSession(wb *Workbench, handle, viewType, title string, state json.RawMessage) *ViewSession {
	return &ViewSession{
		wb:       wb,
		handle:   handle,
		viewType: viewType,
		title:    title,
		visible:  true,
		state:    state,
		messages: make(chan json.RawMessage, messageBuffer),
	}
}

// Handle returns the workbench-allocated identifier for this session.
func (s *ViewSession) Handle() string { return s.handle }

// ViewType returns the view type this session was opened for.
func (s *ViewSession) ViewType() string { return s.viewType }

// Closed reports whether the session has been closed.
func (s *ViewSession) Closed() bool { return s.closed.Load() }

// Title returns the session's current title.
func (s *ViewSession) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Description returns the session's current description.
func (s *ViewSession) Description() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.description
}

// Badge returns the session's current badge, or nil when cleared.
func (s *ViewSession) Badge() *alcove.Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.badge == nil {
		return nil
	}
	badge := *s.badge
	return &badge
}

// Visible reports whether the view is currently shown.
func (s *ViewSession) Visible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// PreserveFocus reports whether the last show request asked to keep focus
// where it was.
func (s *ViewSession) PreserveFocus() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preserveFocus
}

// HTML returns the content the extension last pushed.
func (s *ViewSession) HTML() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.html
}

// Options returns the content permissions the extension last pushed.
func (s *ViewSession) Options() alcove.WebviewOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options
}

// State returns the state blob the view last persisted.
func (s *ViewSession) State() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Messages yields payloads the view's content posts. The channel closes when
// the session does.
func (s *ViewSession) Messages() <-chan json.RawMessage {
	return s.messages
}

// SetVisible announces a visibility change to the extension host, firing the
// view's visibility subscribers there.
func (s *ViewSession) SetVisible(ctx context.Context, visible bool) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	peer := s.wb.currentPeer()
	if peer == nil {
		return ErrNotConnected
	}

	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()

	_, err := peer.Call(ctx, protocol.MethodViewVisibility, protocol.VisibilityParams{
		Handle:  s.handle,
		Visible: visible,
	})
	return err
}

// Post sends v to the view's message subscribers on the extension side. v
// must marshal to JSON.
func (s *ViewSession) Post(ctx context.Context, v any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	peer := s.wb.currentPeer()
	if peer == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_, err = peer.Call(ctx, protocol.MethodWebviewMessage, protocol.MessageParams{
		Handle:  s.handle,
		Payload: payload,
	})
	return err
}

// Close tears the view down on the extension host and forgets the session.
// Safe to call more than once.
func (s *ViewSession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	peer := s.wb.currentPeer()
	s.wb.forget(s.handle)

	s.mu.Lock()
	close(s.messages)
	s.mu.Unlock()

	if peer == nil {
		return nil
	}
	_, err := peer.Call(ctx, protocol.MethodDisposeView, protocol.DisposeViewParams{Handle: s.handle})
	return err
}

// markClosed closes the record without wire traffic, after the channel is
// already gone or resolve failed.
func (s *ViewSession) markClosed() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	close(s.messages)
	s.mu.Unlock()
}

func (s *ViewSession) applyTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

func (s *ViewSession) applyDescription(description string) {
	s.mu.Lock()
	s.description = description
	s.mu.Unlock()
}

func (s *ViewSession) applyBadge(badge *alcove.Badge) {
	s.mu.Lock()
	s.badge = badge
	s.mu.Unlock()
}

func (s *ViewSession) applyShow(preserveFocus bool) {
	s.mu.Lock()
	s.visible = true
	s.preserveFocus = preserveFocus
	s.mu.Unlock()
}

func (s *ViewSession) applyHTML(html string) {
	s.mu.Lock()
	s.html = html
	s.mu.Unlock()
}

func (s *ViewSession) applyOptions(opts alcove.WebviewOptions) {
	s.mu.Lock()
	s.options = opts
	s.mu.Unlock()
}

func (s *ViewSession) applyState(state json.RawMessage) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// deliver queues a payload from the view's content, dropping it when the
// session is closed or the buffer is full.
func (s *ViewSession) deliver(payload json.RawMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.messages <- payload:
	default:
		s.wb.logger.Warn().
			Str("handle", s.handle).
			Msg("message buffer full, dropping webview message")
	}
}
