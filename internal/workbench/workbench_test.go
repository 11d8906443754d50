package workbench_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcoveio/alcove/internal/logging"
	"github.com/alcoveio/alcove/internal/relay"
	"github.com/alcoveio/alcove/internal/workbench"
	"github.com/alcoveio/alcove/internal/workbench/store"
	"github.com/alcoveio/alcove/pkg/alcove"
)

const testTimeout = 2 * time.Second

// harness wires a real extension host and a workbench over a websocket.
type harness struct {
	server *relay.Server
	wb     *workbench.Workbench
}

func newHarness(t *testing.T, st *store.Store) *harness {
	t.Helper()

	server, err := relay.NewServer(relay.ServerConfig{CallTimeout: testTimeout}, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	wb := workbench.New(st, zerolog.Nop())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + relay.ChannelPath
	require.NoError(t, wb.Connect(context.Background(), url, "", testTimeout))
	t.Cleanup(func() { _ = wb.Close() })
	go func() { _ = wb.Run(context.Background()) }()

	return &harness{server: server, wb: wb}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := logging.WithContext(context.Background(), zerolog.Nop())
	db, err := store.NewConnection(ctx, filepath.Join(t.TempDir(), "alcove.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })
	return store.New(db)
}

// registerCapturingProvider registers a provider that hands resolved views
// and their state blobs out through channels.
func registerCapturingProvider(t *testing.T, h *harness, viewType string) (<-chan *alcove.WebviewView, <-chan json.RawMessage) {
	t.Helper()

	views := make(chan *alcove.WebviewView, 4)
	states := make(chan json.RawMessage, 4)
	_, err := h.server.ViewHost().RegisterWebviewViewProvider(context.Background(), viewType,
		alcove.WebviewViewProviderFunc(func(ctx context.Context, view *alcove.WebviewView, state json.RawMessage) error {
			views <- view
			states <- state
			return nil
		}), alcove.ProviderOptions{Extension: "test.ext"})
	require.NoError(t, err)

	// The registration travels over the channel before OpenView can see it.
	require.Eventually(t, func() bool {
		return len(h.wb.Descriptors()) > 0
	}, testTimeout, 10*time.Millisecond, "registration never reached the workbench")

	return views, states
}

func recvView(t *testing.T, views <-chan *alcove.WebviewView) *alcove.WebviewView {
	t.Helper()
	select {
	case view := <-views:
		return view
	case <-time.After(testTimeout):
		t.Fatal("provider never resolved a view")
		return nil
	}
}

func TestOpenViewResolvesProvider(t *testing.T) {
	h := newHarness(t, nil)
	views, states := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	require.NotNil(t, session)

	view := recvView(t, views)
	assert.Equal(t, session.Handle(), view.Handle())
	assert.Equal(t, "deps.graph", view.ViewType())
	assert.Equal(t, "test.ext", view.Extension())
	assert.True(t, view.Visible())
	assert.Nil(t, <-states)

	assert.True(t, session.Visible())
	assert.Equal(t, "deps.graph", session.Title())
}

func TestOpenViewUnknownTypeFails(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.wb.OpenView(context.Background(), "nobody.registered")
	require.Error(t, err)
	assert.ErrorIs(t, err, alcove.ErrProviderNotFound)

	// The failed open leaves no session behind.
	assert.Empty(t, h.wb.Sessions())
}

func TestOpenViewTwiceReturnsSameSession(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	first, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	recvView(t, views)

	second, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, h.wb.Sessions(), 1)
}

func TestProviderMutationsReachTheSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.server.ViewHost().RegisterWebviewViewProvider(context.Background(), "deps.graph",
		alcove.WebviewViewProviderFunc(func(ctx context.Context, view *alcove.WebviewView, state json.RawMessage) error {
			if err := view.SetTitle(ctx, "Dependencies"); err != nil {
				return err
			}
			if err := view.SetDescription(ctx, "direct and transitive"); err != nil {
				return err
			}
			if err := view.SetBadge(ctx, &alcove.Badge{Value: 12, Tooltip: "12 updates"}); err != nil {
				return err
			}
			if err := view.Webview().SetOptions(ctx, alcove.WebviewOptions{EnableScripts: true}); err != nil {
				return err
			}
			return view.Webview().SetHTML(ctx, "<h1>deps</h1>")
		}), alcove.ProviderOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.wb.Descriptors()) > 0 }, testTimeout, 10*time.Millisecond)

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)

	// Mutations made during resolve completed before OpenView returned.
	assert.Equal(t, "Dependencies", session.Title())
	assert.Equal(t, "direct and transitive", session.Description())
	require.NotNil(t, session.Badge())
	assert.Equal(t, 12, session.Badge().Value)
	assert.True(t, session.Options().EnableScripts)
	assert.Equal(t, "<h1>deps</h1>", session.HTML())

	// The title also sticks to the descriptor for future opens.
	descs := h.wb.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "Dependencies", descs[0].Title)
}

func TestVisibilityReachesSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)

	changes := make(chan bool, 4)
	view.OnDidChangeVisibility(func(visible bool) { changes <- visible })

	require.NoError(t, session.SetVisible(context.Background(), false))

	select {
	case visible := <-changes:
		assert.False(t, visible)
	case <-time.After(testTimeout):
		t.Fatal("visibility change never reached the subscriber")
	}
	assert.False(t, session.Visible())
	assert.False(t, view.Visible())
}

func TestShowRoundTripsVisibility(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)

	require.NoError(t, session.SetVisible(context.Background(), false))
	require.Eventually(t, func() bool { return !view.Visible() }, testTimeout, 10*time.Millisecond)

	// Show makes the workbench reveal the view and echo the change back.
	require.NoError(t, view.Show(context.Background(), true))

	assert.True(t, session.Visible())
	assert.True(t, session.PreserveFocus())
	require.Eventually(t, func() bool { return view.Visible() }, testTimeout, 10*time.Millisecond)
}

func TestMessagesFlowBothWays(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)

	fromHost := make(chan json.RawMessage, 4)
	view.Webview().OnDidReceiveMessage(func(payload json.RawMessage) { fromHost <- payload })

	// Extension -> workbench.
	require.NoError(t, view.Webview().PostMessage(context.Background(), map[string]string{"kind": "refresh"}))
	select {
	case payload := <-session.Messages():
		assert.JSONEq(t, `{"kind":"refresh"}`, string(payload))
	case <-time.After(testTimeout):
		t.Fatal("message never reached the workbench")
	}

	// Workbench -> extension.
	require.NoError(t, session.Post(context.Background(), map[string]int{"count": 3}))
	select {
	case payload := <-fromHost:
		assert.JSONEq(t, `{"count":3}`, string(payload))
	case <-time.After(testTimeout):
		t.Fatal("message never reached the extension")
	}
}

func TestCloseDisposesTheView(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)

	disposed := make(chan struct{})
	view.OnDidDispose(func() { close(disposed) })

	require.NoError(t, session.Close(context.Background()))

	select {
	case <-disposed:
	case <-time.After(testTimeout):
		t.Fatal("dispose never reached the subscriber")
	}
	assert.True(t, view.Disposed())
	assert.Empty(t, h.server.ViewHost().Views())
	assert.Empty(t, h.wb.Sessions())

	// The messages channel drains closed.
	_, open := <-session.Messages()
	assert.False(t, open)

	// Closing again is a no-op.
	require.NoError(t, session.Close(context.Background()))

	// Wrapper operations now fail locally.
	assert.ErrorIs(t, view.SetTitle(context.Background(), "late"), alcove.ErrViewDisposed)
}

func TestStatePersistsAcrossOpens(t *testing.T) {
	st := openTestStore(t)
	h := newHarness(t, st)
	views, states := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)
	assert.Nil(t, <-states)

	require.NoError(t, view.Webview().SetState(context.Background(), json.RawMessage(`{"zoom":4}`)))
	require.NoError(t, session.Close(context.Background()))

	// A later open of the same type resolves with the persisted blob.
	_, err = h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	recvView(t, views)

	select {
	case state := <-states:
		assert.JSONEq(t, `{"zoom":4}`, string(state))
	case <-time.After(testTimeout):
		t.Fatal("second resolve never happened")
	}

	persisted, err := st.Get(context.Background(), "deps.graph")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.JSONEq(t, `{"zoom":4}`, string(persisted.State))
}

func TestDisconnectDisposesViewsKeepsRegistrations(t *testing.T) {
	h := newHarness(t, nil)
	views, _ := registerCapturingProvider(t, h, "deps.graph")

	session, err := h.wb.OpenView(context.Background(), "deps.graph")
	require.NoError(t, err)
	view := recvView(t, views)

	require.NoError(t, h.wb.Close())

	require.Eventually(t, func() bool { return view.Disposed() }, testTimeout, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !h.server.SessionActive() }, testTimeout, 10*time.Millisecond)

	assert.Empty(t, h.server.ViewHost().Views())
	assert.Len(t, h.server.ViewHost().Registrations(), 1)
	assert.True(t, session.Closed())
}

func TestRegistrationReplayOnConnect(t *testing.T) {
	server, err := relay.NewServer(relay.ServerConfig{CallTimeout: testTimeout}, zerolog.Nop())
	require.NoError(t, err)

	// Register before any workbench exists.
	_, err = server.ViewHost().RegisterWebviewViewProvider(context.Background(), "deps.graph",
		alcove.WebviewViewProviderFunc(func(ctx context.Context, view *alcove.WebviewView, state json.RawMessage) error {
			return nil
		}), alcove.ProviderOptions{Extension: "early.ext"})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	wb := workbench.New(nil, zerolog.Nop())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + relay.ChannelPath
	require.NoError(t, wb.Connect(context.Background(), url, "", testTimeout))
	t.Cleanup(func() { _ = wb.Close() })
	go func() { _ = wb.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		descs := wb.Descriptors()
		return len(descs) == 1 && descs[0].Extension == "early.ext"
	}, testTimeout, 10*time.Millisecond, "replayed registration never arrived")
}
