// Package alcove exposes a workbench's webview view surface to extension
// code. A ViewHost keeps the provider registry and the live view wrappers on
// the extension side of the process boundary; the workbench drives resolution
// and lifecycle through it and receives every view mutation through a
// HostProxy.
package alcove

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ResolveRequest carries the workbench's request to materialize a view.
type ResolveRequest struct {
	Handle   string
	ViewType string
	Title    string
	Visible  bool
	State    json.RawMessage
}

// RegistrationInfo is a snapshot of one provider registration.
type RegistrationInfo struct {
	ViewType                string
	Extension               string
	RetainContextWhenHidden bool
}

// ViewInfo is a snapshot of one live view.
type ViewInfo struct {
	Handle   string
	ViewType string
	Title    string
	Visible  bool
}

type providerEntry struct {
	provider WebviewViewProvider
	opts     ProviderOptions
}

// ViewHost tracks webview view providers by view type and live views by
// handle. At most one provider per view type; a handle maps to at most one
// live view.
type ViewHost struct {
	proxy  HostProxy
	logger zerolog.Logger

	mu        sync.RWMutex
	providers map[string]*providerEntry
	views     map[string]*WebviewView
}

// NewViewHost creates a ViewHost that reaches the workbench through proxy.
func NewViewHost(proxy HostProxy, logger zerolog.Logger) *ViewHost {
	return &ViewHost{
		proxy:     proxy,
		logger:    logger.With().Str("component", "viewhost").Logger(),
		providers: make(map[string]*providerEntry),
		views:     make(map[string]*WebviewView),
	}
}

// RegisterWebviewViewProvider registers provider for viewType and announces
// it to the workbench. It fails with ErrProviderRegistered if the view type
// already has a provider.
func (h *ViewHost) RegisterWebviewViewProvider(ctx context.Context, viewType string, provider WebviewViewProvider, opts ProviderOptions) (*Registration, error) {
	if viewType == "" {
		return nil, fmt.Errorf("view type cannot be empty")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	h.mu.Lock()
	if _, exists := h.providers[viewType]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrProviderRegistered, viewType)
	}
	h.providers[viewType] = &providerEntry{provider: provider, opts: opts}
	h.mu.Unlock()

	if err := h.proxy.RegisterViewProvider(ctx, viewType, opts); err != nil {
		h.mu.Lock()
		delete(h.providers, viewType)
		h.mu.Unlock()
		return nil, fmt.Errorf("failed to announce provider: %w", err)
	}

	h.logger.Debug().
		Str("view_type", viewType).
		Str("extension", opts.Extension).
		Msg("provider registered")

	return &Registration{host: h, viewType: viewType}, nil
}

func (h *ViewHost) unregisterProvider(ctx context.Context, viewType string) error {
	h.mu.Lock()
	_, exists := h.providers[viewType]
	delete(h.providers, viewType)
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrProviderNotFound, viewType)
	}

	h.logger.Debug().Str("view_type", viewType).Msg("provider unregistered")
	return h.proxy.UnregisterViewProvider(ctx, viewType)
}

// ResolveWebviewView materializes the view named by req.Handle: it creates
// the wrapper, records it, and awaits the provider callback. Cancellation of
// ctx reaches the provider unchanged. On provider failure the handle is
// released again.
func (h *ViewHost) ResolveWebviewView(ctx context.Context, req ResolveRequest) error {
	h.mu.Lock()
	entry, ok := h.providers[req.ViewType]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrProviderNotFound, req.ViewType)
	}
	if _, exists := h.views[req.Handle]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrHandleInUse, req.Handle)
	}
	view := newWebviewView(h, req, entry.opts)
	h.views[req.Handle] = view
	h.mu.Unlock()

	h.logger.Debug().
		Str("view_type", req.ViewType).
		Str("handle", req.Handle).
		Msg("resolving webview view")

	if err := entry.provider.ResolveWebviewView(ctx, view, req.State); err != nil {
		h.mu.Lock()
		delete(h.views, req.Handle)
		h.mu.Unlock()
		return fmt.Errorf("provider failed to resolve %q: %w", req.ViewType, err)
	}

	// The workbench may have torn the view down while the provider ran.
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// ChangeViewVisibility applies a workbench visibility change to the view and
// notifies its subscribers.
func (h *ViewHost) ChangeViewVisibility(handle string, visible bool) error {
	view, err := h.lookup(handle)
	if err != nil {
		return err
	}
	view.applyVisibility(visible)
	return nil
}

// DisposeWebviewView releases the handle and fires the view's dispose
// subscribers. Further wrapper operations fail with ErrViewDisposed.
func (h *ViewHost) DisposeWebviewView(handle string) error {
	h.mu.Lock()
	view, ok := h.views[handle]
	delete(h.views, handle)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}

	view.markDisposed()
	h.logger.Debug().Str("handle", handle).Msg("webview view disposed")
	return nil
}

// DeliverViewMessage routes a message from the view's content to the
// wrapper's message subscribers.
func (h *ViewHost) DeliverViewMessage(handle string, payload json.RawMessage) error {
	view, err := h.lookup(handle)
	if err != nil {
		return err
	}
	view.webview.deliver(payload)
	return nil
}

// DisposeAll disposes every live view, firing dispose subscribers.
// Registrations survive; the next workbench session resolves views afresh.
func (h *ViewHost) DisposeAll() {
	h.mu.Lock()
	views := make([]*WebviewView, 0, len(h.views))
	for _, view := range h.views {
		views = append(views, view)
	}
	h.views = make(map[string]*WebviewView)
	h.mu.Unlock()

	for _, view := range views {
		view.markDisposed()
	}

	if len(views) > 0 {
		h.logger.Debug().Int("count", len(views)).Msg("disposed all webview views")
	}
}

// Registrations returns a snapshot of all provider registrations, sorted by
// view type.
func (h *ViewHost) Registrations() []RegistrationInfo {
	h.mu.RLock()
	infos := make([]RegistrationInfo, 0, len(h.providers))
	for viewType, entry := range h.providers {
		infos = append(infos, RegistrationInfo{
			ViewType:                viewType,
			Extension:               entry.opts.Extension,
			RetainContextWhenHidden: entry.opts.RetainContextWhenHidden,
		})
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ViewType < infos[j].ViewType })
	return infos
}

// Views returns a snapshot of all live views, sorted by handle.
func (h *ViewHost) Views() []ViewInfo {
	h.mu.RLock()
	infos := make([]ViewInfo, 0, len(h.views))
	for _, view := range h.views {
		infos = append(infos, ViewInfo{
			Handle:   view.handle,
			ViewType: view.viewType,
			Title:    view.Title(),
			Visible:  view.Visible(),
		})
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos
}

func (h *ViewHost) lookup(handle string) (*WebviewView, error) {
	h.mu.RLock()
	view, ok := h.views[handle]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	return view, nil
}
