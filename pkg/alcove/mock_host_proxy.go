package alcove

import (
	"context"
	"encoding/json"
	"sync"
)

// MockProxyCall records one call made to a MockHostProxy. Only the fields
// relevant to the method are set.
type MockProxyCall struct {
	Method        string
	ViewType      string
	Handle        string
	Title         string
	Description   string
	HTML          string
	Badge         *Badge
	PreserveFocus bool
	ProviderOpts  ProviderOptions
	WebviewOpts   WebviewOptions
	Payload       json.RawMessage
	State         json.RawMessage
}

// MockHostProxy is a mock implementation of HostProxy for testing. Behavior
// is overridden per method via the Func fields; unset funcs succeed.
type MockHostProxy struct {
	mu    sync.Mutex
	calls []MockProxyCall

	RegisterFunc    func(ctx context.Context, viewType string, opts ProviderOptions) error
	UnregisterFunc  func(ctx context.Context, viewType string) error
	SetTitleFunc    func(ctx context.Context, handle, title string) error
	SetBadgeFunc    func(ctx context.Context, handle string, badge *Badge) error
	ShowFunc        func(ctx context.Context, handle string, preserveFocus bool) error
	SetHTMLFunc     func(ctx context.Context, handle, html string) error
	PostMessageFunc func(ctx context.Context, handle string, payload json.RawMessage) error
	SetStateFunc    func(ctx context.Context, handle string, state json.RawMessage) error
}

// NewMockHostProxy creates a mock whose calls all succeed.
func NewMockHostProxy() *MockHostProxy {
	return &MockHostProxy{}
}

func (m *MockHostProxy) record(call MockProxyCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns a copy of all recorded calls in order.
func (m *MockHostProxy) Calls() []MockProxyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockProxyCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many times method was called.
func (m *MockHostProxy) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call to method, or nil if none.
func (m *MockHostProxy) LastCall(method string) *MockProxyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].Method == method {
			call := m.calls[i]
			return &call
		}
	}
	return nil
}

// Reset clears all call tracking.
func (m *MockHostProxy) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockHostProxy) RegisterViewProvider(ctx context.Context, viewType string, opts ProviderOptions) error {
	m.record(MockProxyCall{Method: "RegisterViewProvider", ViewType: viewType, ProviderOpts: opts})
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, viewType, opts)
	}
	return nil
}

func (m *MockHostProxy) UnregisterViewProvider(ctx context.Context, viewType string) error {
	m.record(MockProxyCall{Method: "UnregisterViewProvider", ViewType: viewType})
	if m.UnregisterFunc != nil {
		return m.UnregisterFunc(ctx, viewType)
	}
	return nil
}

func (m *MockHostProxy) SetTitle(ctx context.Context, handle, title string) error {
	m.record(MockProxyCall{Method: "SetTitle", Handle: handle, Title: title})
	if m.SetTitleFunc != nil {
		return m.SetTitleFunc(ctx, handle, title)
	}
	return nil
}

func (m *MockHostProxy) SetDescription(ctx context.Context, handle, description string) error {
	m.record(MockProxyCall{Method: "SetDescription", Handle: handle, Description: description})
	return nil
}

func (m *MockHostProxy) SetBadge(ctx context.Context, handle string, badge *Badge) error {
	m.record(MockProxyCall{Method: "SetBadge", Handle: handle, Badge: badge})
	if m.SetBadgeFunc != nil {
		return m.SetBadgeFunc(ctx, handle, badge)
	}
	return nil
}

func (m *MockHostProxy) Show(ctx context.Context, handle string, preserveFocus bool) error {
	m.record(MockProxyCall{Method: "Show", Handle: handle, PreserveFocus: preserveFocus})
	if m.ShowFunc != nil {
		return m.ShowFunc(ctx, handle, preserveFocus)
	}
	return nil
}

func (m *MockHostProxy) SetHTML(ctx context.Context, handle, html string) error {
	m.record(MockProxyCall{Method: "SetHTML", Handle: handle, HTML: html})
	if m.SetHTMLFunc != nil {
		return m.SetHTMLFunc(ctx, handle, html)
	}
	return nil
}

func (m *MockHostProxy) SetWebviewOptions(ctx context.Context, handle string, opts WebviewOptions) error {
	m.record(MockProxyCall{Method: "SetWebviewOptions", Handle: handle, WebviewOpts: opts})
	return nil
}

func (m *MockHostProxy) PostMessage(ctx context.Context, handle string, payload json.RawMessage) error {
	m.record(MockProxyCall{Method: "PostMessage", Handle: handle, Payload: payload})
	if m.PostMessageFunc != nil {
		return m.PostMessageFunc(ctx, handle, payload)
	}
	return nil
}

func (m *MockHostProxy) SetState(ctx context.Context, handle string, state json.RawMessage) error {
	m.record(MockProxyCall{Method: "SetState", Handle: handle, State: state})
	if m.SetStateFunc != nil {
		return m.SetStateFunc(ctx, handle, state)
	}
	return nil
}
