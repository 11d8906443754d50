package alcove

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// WebviewViewProvider fills in a webview view once the workbench materializes
// it. The state blob is whatever the view saved in a previous session, or nil
// on first resolve. ctx carries the workbench's cancellation for this resolve.
type WebviewViewProvider interface {
	ResolveWebviewView(ctx context.Context, view *WebviewView, state json.RawMessage) error
}

// WebviewViewProviderFunc adapts a function to WebviewViewProvider.
type WebviewViewProviderFunc func(ctx context.Context, view *WebviewView, state json.RawMessage) error

func (f WebviewViewProviderFunc) ResolveWebviewView(ctx context.Context, view *WebviewView, state json.RawMessage) error {
	return f(ctx, view, state)
}

// ProviderOptions configure a provider registration.
type ProviderOptions struct {
	// Extension attributes the registration in logs and status listings.
	Extension string
	// RetainContextWhenHidden asks the workbench to keep the view's content
	// alive while hidden instead of persisting and rebuilding it.
	RetainContextWhenHidden bool
}

// Registration represents one provider registration. Disposing it removes
// the provider; views already resolved stay alive until the workbench closes
// them.
type Registration struct {
	host     *ViewHost
	viewType string
	disposed atomic.Bool
}

// ViewType returns the view type this registration covers.
func (r *Registration) ViewType() string {
	return r.viewType
}

// Dispose unregisters the provider. Safe to call more than once.
func (r *Registration) Dispose(ctx context.Context) error {
	if !r.disposed.CompareAndSwap(false, true) {
		return nil
	}
	return r.host.unregisterProvider(ctx, r.viewType)
}
