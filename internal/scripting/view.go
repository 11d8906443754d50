package scripting

import (
	"encoding/json"

	"github.com/grafana/sobek"

	"github.com/alcoveio/alcove/pkg/alcove"
)

// viewObject builds the JS face of a resolved view. Loop goroutine only.
// Mutators call straight into the wrapper; errors surface as JS exceptions.
func (x *Extension) viewObject(view *alcove.WebviewView) *sobek.Object {
	rt := x.rt
	obj := rt.NewObject()

	_ = obj.Set("handle", view.Handle())
	_ = obj.Set("viewType", view.ViewType())
	_ = obj.Set("extension", view.Extension())
	_ = obj.Set("webview", x.webviewObject(view.Webview()))

	_ = obj.DefineAccessorProperty("visible", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(view.Visible())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	_ = obj.DefineAccessorProperty("title", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(view.Title())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	_ = obj.DefineAccessorProperty("description", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(view.Description())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	_ = obj.Set("setTitle", func(call sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := view.SetTitle(ctx, call.Argument(0).String()); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("setDescription", func(call sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := view.SetDescription(ctx, call.Argument(0).String()); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("setBadge", func(call sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := view.SetBadge(ctx, x.badgeValue(call.Argument(0))); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("show", func(call sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := view.Show(ctx, call.Argument(0).ToBoolean()); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("onDidChangeVisibility", func(call sobek.FunctionCall) sobek.Value {
		fn, ok := sobek.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("onDidChangeVisibility expects a function"))
		}
		remove := view.OnDidChangeVisibility(func(visible bool) {
			x.engine.post(func() {
				if _, err := fn(sobek.Undefined(), rt.ToValue(visible)); err != nil {
					x.logger.Error().Err(err).Msg("visibility callback failed")
				}
			})
		})
		return rt.ToValue(func(sobek.FunctionCall) sobek.Value {
			remove()
			return sobek.Undefined()
		})
	})

	_ = obj.Set("onDidDispose", func(call sobek.FunctionCall) sobek.Value {
		fn, ok := sobek.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("onDidDispose expects a function"))
		}
		remove := view.OnDidDispose(func() {
			x.engine.post(func() {
				if _, err := fn(sobek.Undefined()); err != nil {
					x.logger.Error().Err(err).Msg("dispose callback failed")
				}
			})
		})
		return rt.ToValue(func(sobek.FunctionCall) sobek.Value {
			remove()
			return sobek.Undefined()
		})
	})

	return obj
}

// webviewObject builds the JS face of a view's content surface.
func (x *Extension) webviewObject(web *alcove.Webview) *sobek.Object {
	rt := x.rt
	obj := rt.NewObject()

	_ = obj.DefineAccessorProperty("html", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(web.HTML())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	_ = obj.DefineAccessorProperty("state", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return x.jsonValue(web.State())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	_ = obj.Set("setHtml", func(call sobek.FunctionCall) sobek.Value {
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := web.SetHTML(ctx, call.Argument(0).String()); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("setOptions", func(call sobek.FunctionCall) sobek.Value {
		opts := x.webviewOptions(call.Argument(0))
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := web.SetOptions(ctx, opts); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("postMessage", func(call sobek.FunctionCall) sobek.Value {
		payload, err := x.valueJSON(call.Argument(0))
		if err != nil {
			x.throw(err)
		}
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := web.PostMessage(ctx, payload); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("setState", func(call sobek.FunctionCall) sobek.Value {
		state, err := x.valueJSON(call.Argument(0))
		if err != nil {
			x.throw(err)
		}
		ctx, cancel := x.engine.callCtx()
		defer cancel()
		if err := web.SetState(ctx, state); err != nil {
			x.throw(err)
		}
		return sobek.Undefined()
	})

	_ = obj.Set("onDidReceiveMessage", func(call sobek.FunctionCall) sobek.Value {
		fn, ok := sobek.AssertFunction(call.Argument(0))
		if !ok {
			panic(rt.NewTypeError("onDidReceiveMessage expects a function"))
		}
		remove := web.OnDidReceiveMessage(func(payload json.RawMessage) {
			x.engine.post(func() {
				if _, err := fn(sobek.Undefined(), x.jsonValue(payload)); err != nil {
					x.logger.Error().Err(err).Msg("message callback failed")
				}
			})
		})
		return rt.ToValue(func(sobek.FunctionCall) sobek.Value {
			remove()
			return sobek.Undefined()
		})
	})

	return obj
}

func (x *Extension) webviewOptions(v sobek.Value) alcove.WebviewOptions {
	opts := alcove.WebviewOptions{}
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return opts
	}
	obj := v.ToObject(x.rt)
	if scripts := obj.Get("enableScripts"); scripts != nil {
		opts.EnableScripts = scripts.ToBoolean()
	}
	if forms := obj.Get("enableForms"); forms != nil {
		opts.EnableForms = forms.ToBoolean()
	}
	if roots := obj.Get("localResourceRoots"); roots != nil && !sobek.IsUndefined(roots) && !sobek.IsNull(roots) {
		var paths []string
		if err := x.rt.ExportTo(roots, &paths); err == nil {
			opts.LocalResourceRoots = paths
		}
	}
	return opts
}
