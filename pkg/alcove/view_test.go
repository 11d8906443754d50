package alcove

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebviewViewSetTitle(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	require.NoError(t, view.SetTitle(context.Background(), "Dependencies"))
	assert.Equal(t, "Dependencies", view.Title())

	call := proxy.LastCall("SetTitle")
	require.NotNil(t, call)
	assert.Equal(t, "h-1", call.Handle)
	assert.Equal(t, "Dependencies", call.Title)
}

func TestWebviewViewSetTitleProxyFailure(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	proxy.SetTitleFunc = func(ctx context.Context, handle, title string) error {
		return assert.AnError
	}

	err := view.SetTitle(context.Background(), "Dependencies")
	require.Error(t, err)
	// Local state only changes once the workbench accepted the call.
	assert.Equal(t, "Test View", view.Title())
}

func TestWebviewViewSetDescription(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	require.NoError(t, view.SetDescription(context.Background(), "12 outdated"))
	assert.Equal(t, "12 outdated", view.Description())

	call := proxy.LastCall("SetDescription")
	require.NotNil(t, call)
	assert.Equal(t, "12 outdated", call.Description)
}

func TestWebviewViewSetBadge(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	require.NoError(t, view.SetBadge(context.Background(), &Badge{Value: 3, Tooltip: "3 updates"}))
	badge := view.Badge()
	require.NotNil(t, badge)
	assert.Equal(t, 3, badge.Value)
	assert.Equal(t, "3 updates", badge.Tooltip)

	// A nil badge clears it.
	require.NoError(t, view.SetBadge(context.Background(), nil))
	assert.Nil(t, view.Badge())

	call := proxy.LastCall("SetBadge")
	require.NotNil(t, call)
	assert.Nil(t, call.Badge)
}

func TestWebviewViewShow(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")
	require.NoError(t, host.ChangeViewVisibility("h-1", false))

	require.NoError(t, view.Show(context.Background(), true))

	call := proxy.LastCall("Show")
	require.NotNil(t, call)
	assert.True(t, call.PreserveFocus)

	// Visibility flips only when the workbench says so.
	assert.False(t, view.Visible())
	require.NoError(t, host.ChangeViewVisibility("h-1", true))
	assert.True(t, view.Visible())
}

func TestVisibilitySubscriptionRemoval(t *testing.T) {
	host, _ := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	fired := 0
	remove := view.OnDidChangeVisibility(func(bool) { fired++ })

	require.NoError(t, host.ChangeViewVisibility("h-1", false))
	assert.Equal(t, 1, fired)

	remove()
	remove() // removing twice is harmless

	require.NoError(t, host.ChangeViewVisibility("h-1", true))
	assert.Equal(t, 1, fired)
}

func TestWebviewSetHTMLAndOptions(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")
	webview := view.Webview()

	require.NoError(t, webview.SetHTML(context.Background(), "<h1>deps</h1>"))
	assert.Equal(t, "<h1>deps</h1>", webview.HTML())
	require.NotNil(t, proxy.LastCall("SetHTML"))

	opts := WebviewOptions{EnableScripts: true, LocalResourceRoots: []string{"/opt/deps/assets"}}
	require.NoError(t, webview.SetOptions(context.Background(), opts))
	assert.Equal(t, opts, webview.Options())

	call := proxy.LastCall("SetWebviewOptions")
	require.NotNil(t, call)
	assert.True(t, call.WebviewOpts.EnableScripts)
}

func TestWebviewPostMessage(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	err := view.Webview().PostMessage(context.Background(), map[string]any{"kind": "refresh"})
	require.NoError(t, err)

	call := proxy.LastCall("PostMessage")
	require.NotNil(t, call)
	assert.JSONEq(t, `{"kind":"refresh"}`, string(call.Payload))

	// Unmarshalable values are rejected before hitting the wire.
	err = view.Webview().PostMessage(context.Background(), func() {})
	assert.Error(t, err)
	assert.Equal(t, 1, proxy.CallCount("PostMessage"))
}

func TestWebviewSetState(t *testing.T) {
	host, proxy := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")

	state := json.RawMessage(`{"expanded":["direct"]}`)
	require.NoError(t, view.Webview().SetState(context.Background(), state))
	assert.JSONEq(t, string(state), string(view.Webview().State()))

	call := proxy.LastCall("SetState")
	require.NotNil(t, call)
	assert.JSONEq(t, string(state), string(call.State))
}

func TestWebviewGuardsAfterDispose(t *testing.T) {
	host, _ := newTestHost()
	view := resolveView(t, host, "h-1", "deps.graph")
	webview := view.Webview()

	require.NoError(t, host.DisposeWebviewView("h-1"))

	assert.ErrorIs(t, webview.SetOptions(context.Background(), WebviewOptions{}), ErrViewDisposed)
	assert.ErrorIs(t, webview.SetState(context.Background(), nil), ErrViewDisposed)
	assert.ErrorIs(t, webview.PostMessage(context.Background(), "hi"), ErrViewDisposed)
	assert.ErrorIs(t, view.SetDescription(context.Background(), "x"), ErrViewDisposed)
	assert.ErrorIs(t, view.SetBadge(context.Background(), nil), ErrViewDisposed)
}
