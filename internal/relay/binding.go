package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/protocol"
	"github.com/alcoveio/alcove/pkg/alcove"
)

// BindViewHost routes the workbench-initiated methods to host.
func BindViewHost(router *Router, host *alcove.ViewHost) error {
	if err := router.RegisterFunc(protocol.MethodResolveView, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p protocol.ResolveViewParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("malformed resolve params: %w", err)
		}
		ctx = logging.WithViewType(ctx, p.ViewType)
		return nil, host.ResolveWebviewView(ctx, alcove.ResolveRequest{
			Handle:   p.Handle,
			ViewType: p.ViewType,
			Title:    p.Title,
			Visible:  p.Visible,
			State:    p.State,
		})
	}); err != nil {
		return err
	}

	if err := router.RegisterFunc(protocol.MethodViewVisibility, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p protocol.VisibilityParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("malformed visibility params: %w", err)
		}
		return nil, host.ChangeViewVisibility(p.Handle, p.Visible)
	}); err != nil {
		return err
	}

	if err := router.RegisterFunc(protocol.MethodDisposeView, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p protocol.DisposeViewParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("malformed dispose params: %w", err)
		}
		return nil, host.DisposeWebviewView(p.Handle)
	}); err != nil {
		return err
	}

	return router.RegisterFunc(protocol.MethodWebviewMessage, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p protocol.MessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("malformed message params: %w", err)
		}
		return nil, host.DeliverViewMessage(p.Handle, p.Payload)
	})
}

// SessionSource yields the current workbench peer, or nil when disconnected.
type SessionSource interface {
	Session() *Peer
}

// WorkbenchProxy implements alcove.HostProxy over the current session.
// Registration calls without a session succeed locally; the server replays
// them when a workbench connects. View-scoped calls need a live session.
type WorkbenchProxy struct {
	source SessionSource
}

func NewWorkbenchProxy(source SessionSource) *WorkbenchProxy {
	return &WorkbenchProxy{source: source}
}

func (w *WorkbenchProxy) call(ctx context.Context, method string, params any) error {
	peer := w.source.Session()
	if peer == nil {
		return fmt.Errorf("%w: %s", ErrNoSession, method)
	}
	_, err := peer.Call(ctx, method, params)
	return err
}

func (w *WorkbenchProxy) RegisterViewProvider(ctx context.Context, viewType string, opts alcove.ProviderOptions) error {
	if w.source.Session() == nil {
		return nil
	}
	return w.call(ctx, protocol.MethodRegisterView, protocol.RegisterViewParams{
		ViewType:                viewType,
		Extension:               opts.Extension,
		RetainContextWhenHidden: opts.RetainContextWhenHidden,
	})
}

func (w *WorkbenchProxy) UnregisterViewProvider(ctx context.Context, viewType string) error {
	if w.source.Session() == nil {
		return nil
	}
	return w.call(ctx, protocol.MethodUnregisterView, protocol.UnregisterViewParams{ViewType: viewType})
}

func (w *WorkbenchProxy) SetTitle(ctx context.Context, handle, title string) error {
	return w.call(ctx, protocol.MethodSetTitle, protocol.SetTitleParams{Handle: handle, Title: title})
}

func (w *WorkbenchProxy) SetDescription(ctx context.Context, handle, description string) error {
	return w.call(ctx, protocol.MethodSetDescription, protocol.SetDescriptionParams{Handle: handle, Description: description})
}

func (w *WorkbenchProxy) SetBadge(ctx context.Context, handle string, badge *alcove.Badge) error {
	params := protocol.SetBadgeParams{Handle: handle}
	if badge != nil {
		params.Badge = &protocol.BadgeParams{Value: badge.Value, Tooltip: badge.Tooltip}
	}
	return w.call(ctx, protocol.MethodSetBadge, params)
}

func (w *WorkbenchProxy) Show(ctx context.Context, handle string, preserveFocus bool) error {
	return w.call(ctx, protocol.MethodShowView, protocol.ShowViewParams{Handle: handle, PreserveFocus: preserveFocus})
}

func (w *WorkbenchProxy) SetHTML(ctx context.Context, handle, html string) error {
	return w.call(ctx, protocol.MethodSetHTML, protocol.SetHTMLParams{Handle: handle, HTML: html})
}

func (w *WorkbenchProxy) SetWebviewOptions(ctx context.Context, handle string, opts alcove.WebviewOptions) error {
	return w.call(ctx, protocol.MethodSetWebviewOptions, protocol.SetWebviewOptionsParams{
		Handle: handle,
		Options: protocol.WebviewOptionsParams{
			EnableScripts:      opts.EnableScripts,
			EnableForms:        opts.EnableForms,
			LocalResourceRoots: opts.LocalResourceRoots,
		},
	})
}

func (w *WorkbenchProxy) PostMessage(ctx context.Context, handle string, payload json.RawMessage) error {
	return w.call(ctx, protocol.MethodPostMessage, protocol.MessageParams{Handle: handle, Payload: payload})
}

func (w *WorkbenchProxy) SetState(ctx context.Context, handle string, state json.RawMessage) error {
	return w.call(ctx, protocol.MethodSetState, protocol.SetStateParams{Handle: handle, State: state})
}
