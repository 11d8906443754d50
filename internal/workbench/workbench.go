// Package workbench is the host side of the channel: the process that decides
// when views materialize. It learns provider registrations from the extension
// host, opens views against them, applies extension-initiated mutations to
// its session records, and persists view state. There is no rendering here;
// Go host shells embed this driver and draw the sessions however they like.
package workbench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alcoveio/alcove/internal/protocol"
	"github.com/alcoveio/alcove/internal/relay"
	"github.com/alcoveio/alcove/internal/workbench/store"
	"github.com/alcoveio/alcove/pkg/alcove"
)

// ErrNotConnected is returned when an operation needs a live channel.
var ErrNotConnected = errors.New("workbench: not connected to an extension host")

// ViewDescriptor is one provider registration as the workbench sees it.
// Title tracks the last title a view of this type carried.
type ViewDescriptor struct {
	ViewType                string
	Title                   string
	Extension               string
	RetainContextWhenHidden bool
}

// Workbench drives webview views from the host side of the boundary.
type Workbench struct {
	logger zerolog.Logger
	store  *store.Store // nil disables persistence

	mu          sync.RWMutex
	peer        *relay.Peer
	descriptors map[string]*ViewDescriptor
	sessions    map[string]*ViewSession // by handle
	byType      map[string]string       // view type -> live handle
}

// New creates a Workbench. st may be nil when state persistence is not
// wanted (the resolve then always carries a nil state blob).
func New(st *store.Store, logger zerolog.Logger) *Workbench {
	return &Workbench{
		logger:      logger.With().Str("component", "workbench").Logger(),
		store:       st,
		descriptors: make(map[string]*ViewDescriptor),
		sessions:    make(map[string]*ViewSession),
		byType:      make(map[string]string),
	}
}

// Connect dials the extension host's channel endpoint. Call Run afterwards to
// serve the channel.
func (w *Workbench) Connect(ctx context.Context, url, token string, callTimeout time.Duration) error {
	router := relay.NewRouter(w.logger)
	if err := w.bind(router); err != nil {
		return err
	}

	peer, err := relay.Dial(ctx, url, token, router, callTimeout, w.logger)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.peer = peer
	w.mu.Unlock()

	w.logger.Info().Str("url", url).Msg("connected to extension host")
	return nil
}

// Run serves the channel until it drops or ctx ends. Every live session is
// closed locally on return; descriptors arrive again on the next connect.
func (w *Workbench) Run(ctx context.Context) error {
	peer := w.currentPeer()
	if peer == nil {
		return ErrNotConnected
	}

	err := peer.Run(ctx)
	w.dropAll()
	return err
}

// Close tears the channel down; Run returns shortly after.
func (w *Workbench) Close() error {
	peer := w.currentPeer()
	if peer == nil {
		return nil
	}
	return peer.Close()
}

// Connected reports whether a channel to an extension host is up.
func (w *Workbench) Connected() bool {
	return w.currentPeer() != nil
}

// OpenView materializes a view of viewType: it allocates a handle, loads any
// persisted state, and asks the extension host to resolve the view. Opening a
// type that already has a live session returns that session. Opening a type
// no provider covers fails with the extension host's error.
func (w *Workbench) OpenView(ctx context.Context, viewType string) (*ViewSession, error) {
	if viewType == "" {
		return nil, fmt.Errorf("view type cannot be empty")
	}

	peer := w.currentPeer()
	if peer == nil {
		return nil, ErrNotConnected
	}

	title := viewType
	w.mu.RLock()
	if desc, ok := w.descriptors[viewType]; ok && desc.Title != "" {
		title = desc.Title
	}
	w.mu.RUnlock()

	var state json.RawMessage
	if w.store != nil {
		persisted, err := w.store.Get(ctx, viewType)
		if err != nil {
			w.logger.Warn().Err(err).Str("view_type", viewType).Msg("persisted state unavailable")
		} else if persisted != nil {
			state = persisted.State
			if persisted.Title != "" {
				title = persisted.Title
			}
		}
	}

	handle := uuid.NewString()
	session := newViewSession(w, handle, viewType, title, state)

	w.mu.Lock()
	if existing, ok := w.byType[viewType]; ok {
		live := w.sessions[existing]
		w.mu.Unlock()
		return live, nil
	}
	w.sessions[handle] = session
	w.byType[viewType] = handle
	w.mu.Unlock()

	w.logger.Debug().
		Str("view_type", viewType).
		Str("handle", handle).
		Bool("has_state", state != nil).
		Msg("opening webview view")

	_, err := peer.Call(ctx, protocol.MethodResolveView, protocol.ResolveViewParams{
		Handle:   handle,
		ViewType: viewType,
		Title:    title,
		Visible:  true,
		State:    state,
	})
	if err != nil {
		w.forget(handle)
		session.markClosed()
		return nil, fmt.Errorf("resolve %q: %w", viewType, err)
	}

	return session, nil
}

// Descriptors returns a snapshot of the known registrations, sorted by view
// type.
func (w *Workbench) Descriptors() []ViewDescriptor {
	w.mu.RLock()
	descs := make([]ViewDescriptor, 0, len(w.descriptors))
	for _, desc := range w.descriptors {
		descs = append(descs, *desc)
	}
	w.mu.RUnlock()

	sort.Slice(descs, func(i, j int) bool { return descs[i].ViewType < descs[j].ViewType })
	return descs
}

// Sessions returns a snapshot of the live sessions, sorted by view type.
func (w *Workbench) Sessions() []*ViewSession {
	w.mu.RLock()
	sessions := make([]*ViewSession, 0, len(w.sessions))
	for _, session := range w.sessions {
		sessions = append(sessions, session)
	}
	w.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].viewType < sessions[j].viewType })
	return sessions
}

// Session returns the live session for viewType, or nil.
func (w *Workbench) Session(viewType string) *ViewSession {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if handle, ok := w.byType[viewType]; ok {
		return w.sessions[handle]
	}
	return nil
}

func (w *Workbench) currentPeer() *relay.Peer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.peer
}

// lookup resolves a handle from an inbound frame.
func (w *Workbench) lookup(handle string) (*ViewSession, error) {
	w.mu.RLock()
	session, ok := w.sessions[handle]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", alcove.ErrUnknownHandle, handle)
	}
	return session, nil
}

// forget removes the session record for handle, releasing its view type.
func (w *Workbench) forget(handle string) {
	w.mu.Lock()
	session := w.sessions[handle]
	delete(w.sessions, handle)
	if session != nil && w.byType[session.viewType] == handle {
		delete(w.byType, session.viewType)
	}
	w.mu.Unlock()
}

// dropAll closes every session record after the channel is gone.
func (w *Workbench) dropAll() {
	w.mu.Lock()
	w.peer = nil
	sessions := make([]*ViewSession, 0, len(w.sessions))
	for _, session := range w.sessions {
		sessions = append(sessions, session)
	}
	w.sessions = make(map[string]*ViewSession)
	w.byType = make(map[string]string)
	w.descriptors = make(map[string]*ViewDescriptor)
	w.mu.Unlock()

	for _, session := range sessions {
		session.markClosed()
	}

	if len(sessions) > 0 {
		w.logger.Debug().Int("count", len(sessions)).Msg("dropped sessions after disconnect")
	}
}

// bind routes the extension-host-initiated methods to this workbench.
func (w *Workbench) bind(router *relay.Router) error {
	type binding struct {
		method  string
		handler relay.HandlerFunc
	}

	bindings := []binding{
		{protocol.MethodRegisterView, w.handleRegister},
		{protocol.MethodUnregisterView, w.handleUnregister},
		{protocol.MethodSetTitle, w.handleSetTitle},
		{protocol.MethodSetDescription, w.handleSetDescription},
		{protocol.MethodSetBadge, w.handleSetBadge},
		{protocol.MethodShowView, w.handleShow},
		{protocol.MethodSetHTML, w.handleSetHTML},
		{protocol.MethodSetWebviewOptions, w.handleSetOptions},
		{protocol.MethodPostMessage, w.handlePostMessage},
		{protocol.MethodSetState, w.handleSetState},
	}

	for _, b := range bindings {
		if err := router.RegisterFunc(b.method, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbench) handleRegister(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.RegisterViewParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed register params: %w", err)
	}
	if p.ViewType == "" {
		return nil, fmt.Errorf("view type cannot be empty")
	}

	w.mu.Lock()
	title := ""
	if prev, ok := w.descriptors[p.ViewType]; ok {
		title = prev.Title
	}
	w.descriptors[p.ViewType] = &ViewDescriptor{
		ViewType:                p.ViewType,
		Title:                   title,
		Extension:               p.Extension,
		RetainContextWhenHidden: p.RetainContextWhenHidden,
	}
	w.mu.Unlock()

	w.logger.Debug().
		Str("view_type", p.ViewType).
		Str("extension", p.Extension).
		Msg("provider announced")
	return nil, nil
}

func (w *Workbench) handleUnregister(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.UnregisterViewParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed unregister params: %w", err)
	}

	w.mu.Lock()
	delete(w.descriptors, p.ViewType)
	w.mu.Unlock()

	w.logger.Debug().Str("view_type", p.ViewType).Msg("provider withdrawn")
	return nil, nil
}

func (w *Workbench) handleSetTitle(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetTitleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setTitle params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyTitle(p.Title)

	w.mu.Lock()
	if desc, ok := w.descriptors[session.viewType]; ok {
		desc.Title = p.Title
	}
	w.mu.Unlock()
	return nil, nil
}

func (w *Workbench) handleSetDescription(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetDescriptionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setDescription params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyDescription(p.Description)
	return nil, nil
}

func (w *Workbench) handleSetBadge(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetBadgeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setBadge params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}

	var badge *alcove.Badge
	if p.Badge != nil {
		badge = &alcove.Badge{Value: p.Badge.Value, Tooltip: p.Badge.Tooltip}
	}
	session.applyBadge(badge)
	return nil, nil
}

// handleShow makes the session visible and echoes the visibility change back,
// which is how the extension's Show round-trips into its own subscribers.
func (w *Workbench) handleShow(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.ShowViewParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed show params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyShow(p.PreserveFocus)

	if peer := w.currentPeer(); peer != nil {
		if err := peer.Notify(protocol.MethodViewVisibility, protocol.VisibilityParams{
			Handle:  p.Handle,
			Visible: true,
		}); err != nil {
			w.logger.Debug().Err(err).Str("handle", p.Handle).Msg("visibility echo failed")
		}
	}
	return nil, nil
}

func (w *Workbench) handleSetHTML(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetHTMLParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setHtml params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyHTML(p.HTML)
	return nil, nil
}

func (w *Workbench) handleSetOptions(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetWebviewOptionsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setOptions params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyOptions(alcove.WebviewOptions{
		EnableScripts:      p.Options.EnableScripts,
		EnableForms:        p.Options.EnableForms,
		LocalResourceRoots: p.Options.LocalResourceRoots,
	})
	return nil, nil
}

func (w *Workbench) handlePostMessage(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.MessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed message params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.deliver(p.Payload)
	return nil, nil
}

func (w *Workbench) handleSetState(ctx context.Context, params json.RawMessage) (any, error) {
	var p protocol.SetStateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed setState params: %w", err)
	}
	session, err := w.lookup(p.Handle)
	if err != nil {
		return nil, err
	}
	session.applyState(p.State)

	if w.store == nil {
		return nil, nil
	}
	if err := w.store.Save(ctx, store.ViewState{
		ViewType: session.viewType,
		Title:    session.Title(),
		State:    p.State,
	}); err != nil {
		return nil, err
	}
	return nil, nil
}
