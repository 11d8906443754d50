package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alcoveio/alcove/pkg/alcove"
)

func TestEnvelopeClassification(t *testing.T) {
	call := Envelope{ID: 7, Method: MethodResolveView}
	assert.True(t, call.IsCall())
	assert.False(t, call.IsReply())
	assert.False(t, call.IsEvent())

	reply := Envelope{ID: 7}
	assert.True(t, reply.IsReply())
	assert.False(t, reply.IsCall())

	event := Envelope{Method: MethodViewVisibility}
	assert.True(t, event.IsEvent())
	assert.False(t, event.IsCall())
}

func TestErrorCodesSurviveTheWire(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		code     string
		sentinel error
	}{
		{"already registered", fmt.Errorf("%w: %q", alcove.ErrProviderRegistered, "deps.graph"), CodeAlreadyRegistered, alcove.ErrProviderRegistered},
		{"unknown view type", alcove.ErrProviderNotFound, CodeUnknownViewType, alcove.ErrProviderNotFound},
		{"unknown handle", alcove.ErrUnknownHandle, CodeUnknownHandle, alcove.ErrUnknownHandle},
		{"handle in use", alcove.ErrHandleInUse, CodeHandleInUse, alcove.ErrHandleInUse},
		{"disposed", alcove.ErrViewDisposed, CodeViewDisposed, alcove.ErrViewDisposed},
		{"canceled", context.Canceled, CodeCanceled, context.Canceled},
		{"deadline", context.DeadlineExceeded, CodeCanceled, context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := ToWireError(tc.err)
			assert.Equal(t, tc.code, wire.Code)
			assert.ErrorIs(t, FromWireError(wire), tc.sentinel)
		})
	}
}

func TestUnknownErrorsBecomeInternal(t *testing.T) {
	wire := ToWireError(errors.New("disk on fire"))
	assert.Equal(t, CodeInternal, wire.Code)

	restored := FromWireError(wire)
	assert.EqualError(t, restored, "internal: disk on fire")
}
