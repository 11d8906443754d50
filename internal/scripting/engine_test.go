package scripting_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcoveio/alcove/internal/scripting"
	"github.com/alcoveio/alcove/pkg/alcove"
)

const testTimeout = 2 * time.Second

func newTestEngine(t *testing.T) (*scripting.Engine, *alcove.ViewHost, *alcove.MockHostProxy) {
	t.Helper()
	proxy := alcove.NewMockHostProxy()
	host := alcove.NewViewHost(proxy, zerolog.Nop())
	engine := scripting.NewEngine(host, scripting.Options{CallTimeout: testTimeout}, zerolog.Nop())
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine, host, proxy
}

func resolveView(t *testing.T, host *alcove.ViewHost, handle, viewType string, state json.RawMessage) {
	t.Helper()
	require.NoError(t, host.ResolveWebviewView(context.Background(), alcove.ResolveRequest{
		Handle:   handle,
		ViewType: viewType,
		Title:    viewType,
		Visible:  true,
		State:    state,
	}))
}

func TestLoadScriptRegistersProvider(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {}, {
			retainContextWhenHidden: true,
		});
	`)
	require.NoError(t, err)

	regs := host.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "deps.graph", regs[0].ViewType)
	assert.Equal(t, "deps", regs[0].Extension, "extension defaults to the script name")
	assert.True(t, regs[0].RetainContextWhenHidden)
	assert.Equal(t, 1, proxy.CallCount("RegisterViewProvider"))
}

func TestResolveRunsScriptProvider(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.setTitle("Dependencies");
			view.webview.setOptions({ enableScripts: true });
			view.webview.setHtml("<h1>" + view.viewType + "</h1>");
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)

	title := proxy.LastCall("SetTitle")
	require.NotNil(t, title)
	assert.Equal(t, "Dependencies", title.Title)
	assert.Equal(t, "h1", title.Handle)

	html := proxy.LastCall("SetHTML")
	require.NotNil(t, html)
	assert.Equal(t, "<h1>deps.graph</h1>", html.HTML)

	opts := proxy.LastCall("SetWebviewOptions")
	require.NotNil(t, opts)
	assert.True(t, opts.WebviewOpts.EnableScripts)

	views := host.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "Dependencies", views[0].Title)
}

func TestResolveReceivesPersistedState(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.setTitle(state ? "zoom=" + state.zoom : "fresh");
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", json.RawMessage(`{"zoom":4}`))
	title := proxy.LastCall("SetTitle")
	require.NotNil(t, title)
	assert.Equal(t, "zoom=4", title.Title)
}

func TestProviderObjectFormKeepsThis(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", {
			prefix: "deps: ",
			resolveWebviewView(view, state) {
				view.setTitle(this.prefix + view.handle);
			},
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)
	title := proxy.LastCall("SetTitle")
	require.NotNil(t, title)
	assert.Equal(t, "deps: h1", title.Title)
}

func TestProviderExceptionPropagates(t *testing.T) {
	engine, host, _ := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", () => {
			throw new Error("no graph today");
		});
	`)
	require.NoError(t, err)

	err = host.ResolveWebviewView(context.Background(), alcove.ResolveRequest{
		Handle:   "h1",
		ViewType: "deps.graph",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no graph today")

	// The failed resolve released the handle.
	assert.Empty(t, host.Views())
}

func TestVisibilityCallbackReentersLoop(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.onDidChangeVisibility((visible) => {
				view.setTitle(visible ? "shown" : "hidden");
			});
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)
	require.NoError(t, host.ChangeViewVisibility("h1", false))

	require.Eventually(t, func() bool {
		call := proxy.LastCall("SetTitle")
		return call != nil && call.Title == "hidden"
	}, testTimeout, 10*time.Millisecond)
}

func TestMessageRoundTrip(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.webview.onDidReceiveMessage((msg) => {
				view.webview.postMessage({ reply: msg.ask + 1 });
			});
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)
	require.NoError(t, host.DeliverViewMessage("h1", json.RawMessage(`{"ask":1}`)))

	require.Eventually(t, func() bool {
		call := proxy.LastCall("PostMessage")
		return call != nil && string(call.Payload) == `{"reply":2}`
	}, testTimeout, 10*time.Millisecond)
}

func TestSetStateAndBadgeReachProxy(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.setBadge({ value: 3, tooltip: "three" });
			view.webview.setState({ zoom: 2 });
			view.setBadge(null);
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)

	state := proxy.LastCall("SetState")
	require.NotNil(t, state)
	assert.JSONEq(t, `{"zoom":2}`, string(state.State))

	badge := proxy.LastCall("SetBadge")
	require.NotNil(t, badge)
	assert.Nil(t, badge.Badge, "last setBadge cleared the badge")
	assert.Equal(t, 2, proxy.CallCount("SetBadge"))
}

func TestDisposeEventReachesScript(t *testing.T) {
	engine, host, _ := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", (view, state) => {
			view.onDidDispose(() => {
				alcove.log("view went away");
				alcove.registerWebviewViewProvider("deps.after", () => {});
			});
		});
	`)
	require.NoError(t, err)

	resolveView(t, host, "h1", "deps.graph", nil)
	require.NoError(t, host.DisposeWebviewView("h1"))
	assert.Empty(t, host.Views())

	// The callback re-enters through the loop; its registration proves it ran.
	require.Eventually(t, func() bool {
		return len(host.Registrations()) == 2
	}, testTimeout, 10*time.Millisecond)
}

func TestDuplicateRegistrationThrows(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", () => {});
	`)
	require.NoError(t, err)

	err = engine.LoadScript(context.Background(), "rival", `
		alcove.registerWebviewViewProvider("deps.graph", () => {});
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps.graph")
}

func TestRegistrationDisposeFromScript(t *testing.T) {
	engine, host, _ := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		const reg = alcove.registerWebviewViewProvider("deps.graph", () => {});
		reg.dispose();
		reg.dispose(); // second dispose is a no-op
	`)
	require.NoError(t, err)
	assert.Empty(t, host.Registrations())
}

func TestResolveCancellationInterruptsScript(t *testing.T) {
	engine, host, proxy := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "spin", `
		alcove.registerWebviewViewProvider("spin.view", (view, state) => {
			for (;;) {}
		});
	`)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = host.ResolveWebviewView(ctx, alcove.ResolveRequest{Handle: "h1", ViewType: "spin.view"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The loop survived the interrupt and keeps serving other scripts.
	err = engine.LoadScript(context.Background(), "after", `
		alcove.registerWebviewViewProvider("after.view", (view) => { view.setTitle("alive"); });
	`)
	require.NoError(t, err)
	resolveView(t, host, "h2", "after.view", nil)
	title := proxy.LastCall("SetTitle")
	require.NotNil(t, title)
	assert.Equal(t, "alive", title.Title)
}

func TestLoadDirHonorsAllowListAndOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	write("b.js", `alcove.registerWebviewViewProvider("b.view", () => {});`)
	write("a.js", `alcove.registerWebviewViewProvider("a.view", () => {});`)
	write("notes.txt", "not a script")

	engine, host, _ := newTestEngine(t)
	loaded, err := engine.LoadDir(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, []string{"a", "b"}, engine.Extensions())
	assert.Len(t, host.Registrations(), 2)
}

func TestLoadDirAllowListFilters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte(`alcove.log("a");`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.js"), []byte(`alcove.log("b");`), 0o644))

	engine, _, _ := newTestEngine(t)
	loaded, err := engine.LoadDir(context.Background(), dir, []string{"b.js"})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, []string{"b"}, engine.Extensions())
}

func TestLoadDirMissingDirectoryLoadsNothing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	loaded, err := engine.LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestLoadDirSkipsBrokenScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.js"), []byte(`this is not javascript`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.js"), []byte(`alcove.log("ok");`), 0o644))

	engine, _, _ := newTestEngine(t)
	loaded, err := engine.LoadDir(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, []string{"good"}, engine.Extensions())
}

func TestCloseDisposesRegistrationsAndRefusesWork(t *testing.T) {
	engine, host, _ := newTestEngine(t)

	err := engine.LoadScript(context.Background(), "deps", `
		alcove.registerWebviewViewProvider("deps.graph", () => {});
	`)
	require.NoError(t, err)
	require.Len(t, host.Registrations(), 1)

	require.NoError(t, engine.Close(context.Background()))
	assert.Empty(t, host.Registrations())

	err = engine.LoadScript(context.Background(), "late", `alcove.log("hi");`)
	assert.ErrorIs(t, err, scripting.ErrEngineClosed)

	// Closing again is a no-op.
	require.NoError(t, engine.Close(context.Background()))
}
