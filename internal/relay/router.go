package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler processes one inbound method. The returned value is marshaled into
// the reply; return nil for an empty reply.
type Handler interface {
	Handle(ctx context.Context, params json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// Router dispatches inbound calls and events to registered handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   zerolog.Logger
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger.With().Str("component", "relay-router").Logger(),
	}
}

// Register binds handler to method. A method can have only one handler.
func (r *Router) Register(method string, handler Handler) error {
	if method == "" {
		return fmt.Errorf("method cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("handler already registered for method %q", method)
	}
	r.handlers[method] = handler

	r.logger.Debug().Str("method", method).Msg("handler registered")
	return nil
}

// RegisterFunc binds fn to method.
func (r *Router) RegisterFunc(method string, fn HandlerFunc) error {
	return r.Register(method, fn)
}

func (r *Router) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[method]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no handler for method %q", method)
	}
	return handler.Handle(ctx, params)
}
