package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/alcoveio/alcove/pkg/alcove"
)

// Wire error codes. They survive the boundary so the caller can keep
// matching on the alcove sentinels.
const (
	CodeAlreadyRegistered = "already_registered"
	CodeUnknownViewType   = "unknown_view_type"
	CodeUnknownHandle     = "unknown_handle"
	CodeHandleInUse       = "handle_in_use"
	CodeViewDisposed      = "view_disposed"
	CodeCanceled          = "canceled"
	CodeInternal          = "internal"
)

// WireError is the error half of a reply envelope.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToWireError converts an error into its on-wire form.
func ToWireError(err error) *WireError {
	code := CodeInternal
	switch {
	case errors.Is(err, alcove.ErrProviderRegistered):
		code = CodeAlreadyRegistered
	case errors.Is(err, alcove.ErrProviderNotFound):
		code = CodeUnknownViewType
	case errors.Is(err, alcove.ErrUnknownHandle):
		code = CodeUnknownHandle
	case errors.Is(err, alcove.ErrHandleInUse):
		code = CodeHandleInUse
	case errors.Is(err, alcove.ErrViewDisposed):
		code = CodeViewDisposed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = CodeCanceled
	}
	return &WireError{Code: code, Message: err.Error()}
}

// FromWireError restores a received wire error to an error that matches the
// alcove sentinels under errors.Is.
func FromWireError(we *WireError) error {
	if we == nil {
		return nil
	}
	switch we.Code {
	case CodeAlreadyRegistered:
		return fmt.Errorf("%w: %s", alcove.ErrProviderRegistered, we.Message)
	case CodeUnknownViewType:
		return fmt.Errorf("%w: %s", alcove.ErrProviderNotFound, we.Message)
	case CodeUnknownHandle:
		return fmt.Errorf("%w: %s", alcove.ErrUnknownHandle, we.Message)
	case CodeHandleInUse:
		return fmt.Errorf("%w: %s", alcove.ErrHandleInUse, we.Message)
	case CodeViewDisposed:
		return fmt.Errorf("%w: %s", alcove.ErrViewDisposed, we.Message)
	case CodeCanceled:
		return fmt.Errorf("%w: %s", context.Canceled, we.Message)
	default:
		return we
	}
}
