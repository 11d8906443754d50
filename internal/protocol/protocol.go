// Package protocol defines the JSON frames exchanged between the extension
// host and the workbench. A frame is a call (id + method), a reply (id only)
// or an event (method only); params and results stay raw until the receiving
// side knows the method.
package protocol

import "encoding/json"

// Methods called by the workbench on the extension host.
const (
	MethodResolveView    = "view/resolve"
	MethodViewVisibility = "view/visibility"
	MethodDisposeView    = "view/dispose"
	MethodWebviewMessage = "webview/message"
)

// Methods called by the extension host on the workbench.
const (
	MethodRegisterView      = "view/register"
	MethodUnregisterView    = "view/unregister"
	MethodSetTitle          = "view/setTitle"
	MethodSetDescription    = "view/setDescription"
	MethodSetBadge          = "view/setBadge"
	MethodShowView          = "view/show"
	MethodSetHTML           = "webview/setHtml"
	MethodSetWebviewOptions = "webview/setOptions"
	MethodPostMessage       = "webview/postMessage"
	MethodSetState          = "webview/setState"
)

// MethodCancel aborts the in-flight call named by CancelParams.ID. It is an
// event in either direction; the canceled call still gets its reply.
const MethodCancel = "$/cancel"

// Envelope is one frame on the channel.
type Envelope struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// IsCall reports whether the frame expects a reply.
func (e *Envelope) IsCall() bool { return e.ID != 0 && e.Method != "" }

// IsReply reports whether the frame answers an earlier call.
func (e *Envelope) IsReply() bool { return e.ID != 0 && e.Method == "" }

// IsEvent reports whether the frame is fire-and-forget.
func (e *Envelope) IsEvent() bool { return e.ID == 0 && e.Method != "" }

type CancelParams struct {
	ID uint64 `json:"id"`
}

type RegisterViewParams struct {
	ViewType                string `json:"viewType"`
	Extension               string `json:"extension,omitempty"`
	RetainContextWhenHidden bool   `json:"retainContextWhenHidden,omitempty"`
}

type UnregisterViewParams struct {
	ViewType string `json:"viewType"`
}

type ResolveViewParams struct {
	Handle   string          `json:"handle"`
	ViewType string          `json:"viewType"`
	Title    string          `json:"title,omitempty"`
	Visible  bool            `json:"visible"`
	State    json.RawMessage `json:"state,omitempty"`
}

type VisibilityParams struct {
	Handle  string `json:"handle"`
	Visible bool   `json:"visible"`
}

type DisposeViewParams struct {
	Handle string `json:"handle"`
}

type SetTitleParams struct {
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

type SetDescriptionParams struct {
	Handle      string `json:"handle"`
	Description string `json:"description"`
}

type BadgeParams struct {
	Value   int    `json:"value"`
	Tooltip string `json:"tooltip,omitempty"`
}

// SetBadgeParams clears the badge when Badge is nil.
type SetBadgeParams struct {
	Handle string       `json:"handle"`
	Badge  *BadgeParams `json:"badge,omitempty"`
}

type ShowViewParams struct {
	Handle        string `json:"handle"`
	PreserveFocus bool   `json:"preserveFocus,omitempty"`
}

type SetHTMLParams struct {
	Handle string `json:"handle"`
	HTML   string `json:"html"`
}

type WebviewOptionsParams struct {
	EnableScripts      bool     `json:"enableScripts"`
	EnableForms        bool     `json:"enableForms"`
	LocalResourceRoots []string `json:"localResourceRoots,omitempty"`
}

type SetWebviewOptionsParams struct {
	Handle  string               `json:"handle"`
	Options WebviewOptionsParams `json:"options"`
}

// MessageParams carries webview messages in both directions.
type MessageParams struct {
	Handle  string          `json:"handle"`
	Payload json.RawMessage `json:"payload"`
}

type SetStateParams struct {
	Handle string          `json:"handle"`
	State  json.RawMessage `json:"state,omitempty"`
}
