package alcove

import (
	"context"
	"sync"
	"sync/atomic"
)

// Badge is a small numeric indicator shown on the view's container.
type Badge struct {
	Value   int    `json:"value"`
	Tooltip string `json:"tooltip,omitempty"`
}

// WebviewView is the extension-side wrapper for one live view. All mutators
// relay to the workbench and fail with ErrViewDisposed once the workbench has
// torn the view down.
type WebviewView struct {
	host      *ViewHost
	handle    string
	viewType  string
	extension string
	webview   *Webview

	disposed atomic.Bool

	mu          sync.RWMutex
	title       string
	description string
	badge       *Badge
	visible     bool

	subMu          sync.Mutex
	nextSubID      uint64
	visibilitySubs map[uint64]func(bool)
	disposeSubs    map[uint64]func()
}

func newWebviewView(host *ViewHost, req ResolveRequest, opts ProviderOptions) *WebviewView {
	view := &WebviewView{
		host:           host,
		handle:         req.Handle,
		viewType:       req.ViewType,
		extension:      opts.Extension,
		title:          req.Title,
		visible:        req.Visible,
		visibilitySubs: make(map[uint64]func(bool)),
		disposeSubs:    make(map[uint64]func()),
	}
	view.webview = newWebview(view, req.State)
	return view
}

// Handle returns the workbench-allocated identifier for this view.
func (v *WebviewView) Handle() string { return v.handle }

// ViewType returns the view type this view was resolved for.
func (v *WebviewView) ViewType() string { return v.viewType }

// Extension returns the extension the provider was registered under.
func (v *WebviewView) Extension() string { return v.extension }

// Webview returns the view's content surface.
func (v *WebviewView) Webview() *Webview { return v.webview }

// Disposed reports whether the workbench has torn the view down.
func (v *WebviewView) Disposed() bool { return v.disposed.Load() }

// Visible reports the last visibility the workbench announced.
func (v *WebviewView) Visible() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.visible
}

// Title returns the view's current title.
func (v *WebviewView) Title() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.title
}

// SetTitle relays a title change to the workbench.
func (v *WebviewView) SetTitle(ctx context.Context, title string) error {
	if err := v.guard(); err != nil {
		return err
	}
	if err := v.host.proxy.SetTitle(ctx, v.handle, title); err != nil {
		return err
	}
	v.mu.Lock()
	v.title = title
	v.mu.Unlock()
	return nil
}

// Description returns the view's current description.
func (v *WebviewView) Description() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.description
}

// SetDescription relays a description change to the workbench.
func (v *WebviewView) SetDescription(ctx context.Context, description string) error {
	if err := v.guard(); err != nil {
		return err
	}
	if err := v.host.proxy.SetDescription(ctx, v.handle, description); err != nil {
		return err
	}
	v.mu.Lock()
	v.description = description
	v.mu.Unlock()
	return nil
}

// Badge returns the view's current badge, or nil when cleared.
func (v *WebviewView) Badge() *Badge {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.badge == nil {
		return nil
	}
	badge := *v.badge
	return &badge
}

// SetBadge relays a badge change to the workbench. A nil badge clears it.
func (v *WebviewView) SetBadge(ctx context.Context, badge *Badge) error {
	if err := v.guard(); err != nil {
		return err
	}
	if err := v.host.proxy.SetBadge(ctx, v.handle, badge); err != nil {
		return err
	}
	v.mu.Lock()
	if badge == nil {
		v.badge = nil
	} else {
		copied := *badge
		v.badge = &copied
	}
	v.mu.Unlock()
	return nil
}

// Show asks the workbench to reveal the view. The visibility change comes
// back as a workbench event.
func (v *WebviewView) Show(ctx context.Context, preserveFocus bool) error {
	if err := v.guard(); err != nil {
		return err
	}
	return v.host.proxy.Show(ctx, v.handle, preserveFocus)
}

// OnDidChangeVisibility subscribes to visibility changes. The returned
// function removes the subscription and is safe to call more than once.
func (v *WebviewView) OnDidChangeVisibility(fn func(visible bool)) func() {
	v.subMu.Lock()
	v.nextSubID++
	id := v.nextSubID
	v.visibilitySubs[id] = fn
	v.subMu.Unlock()

	return func() {
		v.subMu.Lock()
		delete(v.visibilitySubs, id)
		v.subMu.Unlock()
	}
}

// OnDidDispose subscribes to the view's teardown. Fires at most once.
func (v *WebviewView) OnDidDispose(fn func()) func() {
	v.subMu.Lock()
	v.nextSubID++
	id := v.nextSubID
	v.disposeSubs[id] = fn
	v.subMu.Unlock()

	return func() {
		v.subMu.Lock()
		delete(v.disposeSubs, id)
		v.subMu.Unlock()
	}
}

func (v *WebviewView) guard() error {
	if v.disposed.Load() {
		return ErrViewDisposed
	}
	return nil
}

func (v *WebviewView) applyVisibility(visible bool) {
	v.mu.Lock()
	changed := v.visible != visible
	v.visible = visible
	v.mu.Unlock()

	if !changed {
		return
	}

	v.subMu.Lock()
	subs := make([]func(bool), 0, len(v.visibilitySubs))
	for _, fn := range v.visibilitySubs {
		subs = append(subs, fn)
	}
	v.subMu.Unlock()

	for _, fn := range subs {
		fn(visible)
	}
}

func (v *WebviewView) markDisposed() {
	if !v.disposed.CompareAndSwap(false, true) {
		return
	}

	v.subMu.Lock()
	subs := make([]func(), 0, len(v.disposeSubs))
	for _, fn := range v.disposeSubs {
		subs = append(subs, fn)
	}
	v.disposeSubs = make(map[uint64]func())
	v.subMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
