package alcove

import (
	"context"
	"encoding/json"
)

// HostProxy is the outbound half of the boundary: everything the extension
// side asks of the workbench goes through it. The relay provides the wire
// implementation; tests substitute fakes.
type HostProxy interface {
	RegisterViewProvider(ctx context.Context, viewType string, opts ProviderOptions) error
	UnregisterViewProvider(ctx context.Context, viewType string) error

	SetTitle(ctx context.Context, handle, title string) error
	SetDescription(ctx context.Context, handle, description string) error
	SetBadge(ctx context.Context, handle string, badge *Badge) error
	Show(ctx context.Context, handle string, preserveFocus bool) error

	SetHTML(ctx context.Context, handle, html string) error
	SetWebviewOptions(ctx context.Context, handle string, opts WebviewOptions) error
	PostMessage(ctx context.Context, handle string, payload json.RawMessage) error
	SetState(ctx context.Context, handle string, state json.RawMessage) error
}
