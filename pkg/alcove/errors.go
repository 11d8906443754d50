package alcove

import "errors"

var (
	ErrProviderRegistered = errors.New("alcove: provider already registered for view type")
	ErrProviderNotFound   = errors.New("alcove: no provider registered for view type")
	ErrViewDisposed       = errors.New("alcove: webview view disposed")
	ErrUnknownHandle      = errors.New("alcove: unknown webview view handle")
	ErrHandleInUse        = errors.New("alcove: webview view handle already in use")
)
