package scripting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/alcoveio/alcove/pkg/alcove"
)

// Extension is one loaded script with its own runtime. The runtime is only
// ever touched from the engine's loop goroutine; Interrupt and ClearInterrupt
// are the exceptions sobek allows.
type Extension struct {
	engine *Engine
	name   string
	rt     *sobek.Runtime
	logger zerolog.Logger

	regMu         sync.Mutex
	registrations []*alcove.Registration
}

func newExtension(e *Engine, name string) *Extension {
	x := &Extension{
		engine: e,
		name:   name,
		rt:     sobek.New(),
		logger: e.logger.With().Str("extension", name).Logger(),
	}
	x.installGlobals()
	return x
}

// eval runs the extension source. Loop goroutine only.
func (x *Extension) eval(src string) error {
	x.rt.ClearInterrupt()
	_, err := x.rt.RunScript(x.name+".js", src)
	return err
}

// dispose withdraws every provider the script registered.
func (x *Extension) dispose(ctx context.Context) error {
	x.regMu.Lock()
	registrations := x.registrations
	x.registrations = nil
	x.regMu.Unlock()

	var errs []error
	for _, reg := range registrations {
		if err := reg.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("extension %s: %w", x.name, err))
		}
	}
	return errors.Join(errs...)
}

// installGlobals wires the alcove module and console into the runtime.
func (x *Extension) installGlobals() {
	rt := x.rt

	mod := rt.NewObject()
	_ = mod.Set("registerWebviewViewProvider", x.registerProvider)
	_ = mod.Set("log", x.logNative(x.logger.Info))
	_ = rt.Set("alcove", mod)

	console := rt.NewObject()
	_ = console.Set("log", x.logNative(x.logger.Info))
	_ = console.Set("info", x.logNative(x.logger.Info))
	_ = console.Set("debug", x.logNative(x.logger.Debug))
	_ = console.Set("warn", x.logNative(x.logger.Warn))
	_ = console.Set("error", x.logNative(x.logger.Error))
	_ = rt.Set("console", console)
}

func (x *Extension) logNative(event func() *zerolog.Event) func(sobek.FunctionCall) sobek.Value {
	return func(call sobek.FunctionCall) sobek.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		event().Msg(strings.Join(parts, " "))
		return sobek.Undefined()
	}
}

// registerProvider is the native behind alcove.registerWebviewViewProvider.
// The provider is either a function or an object exposing resolveWebviewView.
func (x *Extension) registerProvider(call sobek.FunctionCall) sobek.Value {
	viewType := call.Argument(0)
	if sobek.IsUndefined(viewType) || viewType.String() == "" {
		panic(x.rt.NewTypeError("registerWebviewViewProvider expects a view type"))
	}

	resolveFn, this := x.resolveCallable(call.Argument(1))
	opts := x.providerOptions(call.Argument(2))

	bridge := &jsProvider{ext: x, fn: resolveFn, this: this}

	ctx, cancel := x.engine.callCtx()
	defer cancel()
	reg, err := x.engine.host.RegisterWebviewViewProvider(ctx, viewType.String(), bridge, opts)
	if err != nil {
		x.throw(err)
	}

	x.regMu.Lock()
	x.registrations = append(x.registrations, reg)
	x.regMu.Unlock()

	x.logger.Debug().Str("view_type", viewType.String()).Msg("script provider registered")
	return x.registrationObject(reg)
}

func (x *Extension) resolveCallable(v sobek.Value) (sobek.Callable, sobek.Value) {
	if fn, ok := sobek.AssertFunction(v); ok {
		return fn, sobek.Undefined()
	}
	if obj, ok := v.(*sobek.Object); ok {
		if fn, ok := sobek.AssertFunction(obj.Get("resolveWebviewView")); ok {
			return fn, obj
		}
	}
	panic(x.rt.NewTypeError("provider must be a function or expose resolveWebviewView"))
}

func (x *Extension) providerOptions(v sobek.Value) alcove.ProviderOptions {
	opts := alcove.ProviderOptions{Extension: x.name}
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return opts
	}
	obj := v.ToObject(x.rt)
	if ext := obj.Get("extension"); ext != nil && !sobek.IsUndefined(ext) {
		opts.Extension = ext.String()
	}
	if retain := obj.Get("retainContextWhenHidden"); retain != nil {
		opts.RetainContextWhenHidden = retain.ToBoolean()
	}
	return opts
}

func (x *Extension) registrationObject(reg *alcove.Registration) *sobek.Object {
	obj := x.rt.NewObject()
	_ = obj.Set("viewType", reg.ViewType())
	_ = obj.Set("dispose", func(sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := reg.Dispose(ctx); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})
	return obj
}

// throw surfaces a Go error as a catchable JS exception. Loop goroutine only.
func (x *Extension) throw(err error) {
	panic(x.rt.NewGoError(err))
}

// jsonValue parses a JSON blob into a JS value. Loop goroutine only.
func (x *Extension) jsonValue(raw json.RawMessage) sobek.Value {
	if len(raw) == 0 {
		return sobek.Undefined()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		x.logger.Warn().Err(err).Msg("undecodable payload reached the script")
		return sobek.Undefined()
	}
	return x.rt.ToValue(v)
}

// valueJSON encodes a JS value as a JSON blob. Undefined and null map to nil.
func (x *Extension) valueJSON(v sobek.Value) (json.RawMessage, error) {
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return nil, nil
	}
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
	}
	return raw, nil
}

func (x *Extension) badgeValue(v sobek.Value) *alcove.Badge {
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return nil
	}
	obj := v.ToObject(x.rt)
	badge := &alcove.Badge{}
	if val := obj.Get("value"); val != nil && !sobek.IsUndefined(val) {
		badge.Value = int(val.ToInteger())
	}
	if tip := obj.Get("tooltip"); tip != nil && !sobek.IsUndefined(tip) {
		badge.Tooltip = tip.String()
	}
	return badge
}

// interruptOn arranges for the runtime to be interrupted when ctx ends. The
// returned release must run on the loop goroutine right after the JS call
// returns; it stops the watcher and clears any interrupt that already landed.
func (x *Extension) interruptOn(ctx context.Context) (release func()) {
	var mu sync.Mutex
	finished := false
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			if !finished {
				x.rt.Interrupt(context.Cause(ctx))
			}
			mu.Unlock()
		case <-stop:
		}
	}()

	return func() {
		mu.Lock()
		finished = true
		mu.Unlock()
		close(stop)
		x.rt.ClearInterrupt()
	}
}

// jsProvider adapts a script's resolve callback to WebviewViewProvider. The
// resolve arrives on a relay goroutine and re-enters JS through the loop.
type jsProvider struct {
	ext  *Extension
	fn   sobek.Callable
	this sobek.Value
}

func (p *jsProvider) ResolveWebviewView(ctx context.Context, view *alcove.WebviewView, state json.RawMessage) error {
	x := p.ext

	// The watcher arms on the loop goroutine so it can only ever interrupt
	// this call's own JS, not whatever happens to run while we queue.
	var callErr error
	submitted := x.engine.do(ctx, func() {
		release := x.interruptOn(ctx)
		defer release()
		viewObj := x.viewObject(view)
		_, callErr = p.fn(p.this, viewObj, x.jsonValue(state))
	})
	if submitted != nil {
		return submitted
	}

	if callErr != nil {
		var interrupted *sobek.InterruptedError
		if errors.As(callErr, &interrupted) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrEngineClosed
		}
		return fmt.Errorf("extension %s: %w", x.name, callErr)
	}
	return ctx.Err()
}
