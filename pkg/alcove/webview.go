package alcove

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// WebviewOptions control what the view's content is allowed to do.
type WebviewOptions struct {
	EnableScripts      bool     `json:"enableScripts"`
	EnableForms        bool     `json:"enableForms"`
	LocalResourceRoots []string `json:"localResourceRoots,omitempty"`
}

// Webview is the content surface of a WebviewView: what it shows, what it may
// do, and the message channel to and from it.
type Webview struct {
	view *WebviewView

	mu      sync.RWMutex
	html    string
	options WebviewOptions
	state   json.RawMessage

	subMu       sync.Mutex
	nextSubID   uint64
	messageSubs map[uint64]func(json.RawMessage)
}

func newWebview(view *WebviewView, state json.RawMessage) *Webview {
	return &Webview{
		view:        view,
		state:       state,
		messageSubs: make(map[uint64]func(json.RawMessage)),
	}
}

// HTML returns the content last pushed to the workbench.
func (w *Webview) HTML() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.html
}

// SetHTML relays new content to the workbench.
func (w *Webview) SetHTML(ctx context.Context, html string) error {
	if err := w.view.guard(); err != nil {
		return err
	}
	if err := w.view.host.proxy.SetHTML(ctx, w.view.handle, html); err != nil {
		return err
	}
	w.mu.Lock()
	w.html = html
	w.mu.Unlock()
	return nil
}

// Options returns the current content permissions.
func (w *Webview) Options() WebviewOptions {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.options
}

// SetOptions relays new content permissions to the workbench.
func (w *Webview) SetOptions(ctx context.Context, opts WebviewOptions) error {
	if err := w.view.guard(); err != nil {
		return err
	}
	if err := w.view.host.proxy.SetWebviewOptions(ctx, w.view.handle, opts); err != nil {
		return err
	}
	w.mu.Lock()
	w.options = opts
	w.mu.Unlock()
	return nil
}

// State returns the view's persisted state blob: the one the view was
// resolved with until SetState replaces it.
func (w *Webview) State() json.RawMessage {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SetState hands a state blob to the workbench for persistence. Future
// resolves of this view type receive it back.
func (w *Webview) SetState(ctx context.Context, state json.RawMessage) error {
	if err := w.view.guard(); err != nil {
		return err
	}
	if err := w.view.host.proxy.SetState(ctx, w.view.handle, state); err != nil {
		return err
	}
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
	return nil
}

// PostMessage sends v to the view's content. v must marshal to JSON.
func (w *Webview) PostMessage(ctx context.Context, v any) error {
	if err := w.view.guard(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return w.view.host.proxy.PostMessage(ctx, w.view.handle, payload)
}

// OnDidReceiveMessage subscribes to messages from the view's content. The
// returned function removes the subscription.
func (w *Webview) OnDidReceiveMessage(fn func(payload json.RawMessage)) func() {
	w.subMu.Lock()
	w.nextSubID++
	id := w.nextSubID
	w.messageSubs[id] = fn
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		delete(w.messageSubs, id)
		w.subMu.Unlock()
	}
}

func (w *Webview) deliver(payload json.RawMessage) {
	w.subMu.Lock()
	subs := make([]func(json.RawMessage), 0, len(w.messageSubs))
	for _, fn := range w.messageSubs {
		subs = append(subs, fn)
	}
	w.subMu.Unlock()

	for _, fn := range subs {
		fn(payload)
	}
}
