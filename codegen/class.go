package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/pywire/pywire/runtime"
	"github.com/pywire/pywire/validate"
)

// instance is the runtime.PageClass implementation every compiled plan
// produces. One instance exists per live session (spec §4.11); Render is
// re-invoked on every event instead of diffing a previous tree, matching
// the full re-render contract.
type instance struct {
	*runtime.Base
	p *plan
}

func newInstance(p *plan) *instance {
	inst := &instance{Base: runtime.NewBase(), p: p}

	for _, name := range p.initOrder {
		var v interface{}
		if expr, ok := p.initExprs[name]; ok {
			interp := NewInterp(p.fset, inst.State(), inst.callTable())
			val, err := interp.evalExpr(context.Background(), expr, map[string]interface{}{})
			if err == nil {
				v = val
			}
		}
		inst.State().Set(name, v)
	}

	for name, def := range p.handlers {
		def := def
		inst.RegisterHandler(name, func(ctx context.Context, payload map[string]interface{}) error {
			interp := NewInterp(p.fset, inst.State(), inst.callTable())
			locals := map[string]interface{}{}
			for i, param := range def.params {
				if i == len(def.params)-1 {
					locals[param] = payload
					break
				}
				locals[param] = payload[param]
			}
			return interp.Run(ctx, def.body, locals)
		})
	}

	for name, ih := range p.inline {
		ih := ih
		inst.RegisterHandler(name, func(ctx context.Context, payload map[string]interface{}) error {
			interp := NewInterp(ih.fset, inst.State(), inst.callTable())
			locals := map[string]interface{}{"event": payload}
			for k, v := range payload {
				locals[k] = v // lifted arg0, arg1... (spec §4.2) live alongside the raw payload
			}
			if ih.stmt != nil {
				_, _, err := interp.execStmt(ctx, ih.stmt, locals)
				return err
			}
			if ih.expr != nil {
				_, err := interp.evalExpr(ctx, ih.expr, locals)
				return err
			}
			return nil
		})
	}

	for name, fn := range p.nativeHandlers {
		fn := fn
		inst.RegisterHandler(name, func(ctx context.Context, payload map[string]interface{}) error {
			return fn(ctx, inst.State(), payload)
		})
	}

	for _, vw := range p.validationWraps {
		vw := vw
		inst.RegisterHandler(vw.name, func(ctx context.Context, payload map[string]interface{}) error {
			getter := func(expr string) (interface{}, error) {
				return runtime.Eval(expr, inst.State().Env(nil))
			}
			cleaned, errs := validate.ValidateForm(vw.schema, payload, getter)
			if len(errs) > 0 {
				inst.State().Set("errors", errs)
				return nil
			}
			inst.State().Set("errors", map[string]string{})
			for k, v := range cleaned {
				payload[k] = v
			}
			return inst.Base.HandleEvent(ctx, vw.underlying, payload)
		})
	}

	if def, ok := p.handlers["on_load"]; ok {
		def := def
		inst.SetOnLoad(func(ctx context.Context) error {
			interp := NewInterp(p.fset, inst.State(), inst.callTable())
			return interp.Run(ctx, def.body, map[string]interface{}{})
		})
	}
	if def, ok := p.handlers["on_mount"]; ok {
		def := def
		inst.SetMount(func(ctx context.Context) error {
			interp := NewInterp(p.fset, inst.State(), inst.callTable())
			return interp.Run(ctx, def.body, map[string]interface{}{})
		})
	}

	if p.hasProvide {
		for _, key := range p.provide.KeyOrder {
			exprSrc := p.provide.Mapping[key]
			v, err := runtime.Eval(exprSrc, inst.State().Env(nil))
			if err == nil {
				inst.Context()[key] = v
			}
		}
	}

	return inst
}

// callTable exposes every registered handler as a callable function for the
// interpreter, so one handler body can invoke another by name (e.g. a
// "save" handler calling a shared "validate" helper function defined in the
// same code section).
func (inst *instance) callTable() map[string]func(ctx context.Context, args []interface{}) (interface{}, error) {
	table := map[string]func(ctx context.Context, args []interface{}) (interface{}, error){}
	for name, def := range inst.p.handlers {
		def := def
		table[name] = func(ctx context.Context, args []interface{}) (interface{}, error) {
			interp := NewInterp(inst.p.fset, inst.State(), inst.callTable())
			locals := map[string]interface{}{}
			for i, param := range def.params {
				if i < len(args) {
					locals[param] = args[i]
				}
			}
			return nil, interp.Run(ctx, def.body, locals)
		}
	}
	return table
}

// Render executes the compiled tree (and, if present, the resolved layout
// wrapping it) and returns the page's HTML (C10's render procedure).
func (inst *instance) Render(ctx context.Context, init bool) (string, error) {
	if init {
		if err := inst.RunMount(ctx); err != nil {
			return "", err
		}
	}
	var buf strings.Builder
	env := inst.State().Env(nil)
	for _, node := range inst.p.tree {
		if err := runtime.Exec(ctx, node, env, &buf); err != nil {
			return "", err
		}
	}
	body := buf.String()

	if inst.p.styleCSS != "" {
		inst.Styles().Add(inst.p.scopeID, inst.p.styleCSS)
	}

	if inst.p.layout == nil {
		return inst.wrapStyles(body), nil
	}

	layoutInst := inst.p.layout()
	if li, ok := layoutInst.(interface {
		RegisterSlot(layoutID, name string, renderer func() (string, error))
		SlotBase() *runtime.Base
	}); ok {
		li.RegisterSlot("", "default", func() (string, error) { return body, nil })
		ctx = runtime.WithSlotResolver(ctx, li.SlotBase())
	}
	if err := layoutInst.Init(ctx); err != nil {
		return "", err
	}
	out, err := layoutInst.Render(ctx, init)
	if err != nil {
		return "", err
	}
	return inst.wrapStyles(out), nil
}

func (inst *instance) wrapStyles(body string) string {
	css := inst.Styles().Render()
	if css == "" {
		return body
	}
	return css + body
}

// HandleEvent runs the named handler then re-renders (spec §4.7).
func (inst *instance) HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error) {
	if err := inst.Base.HandleEvent(ctx, name, payload); err != nil {
		return "", fmt.Errorf("handling event %q: %w", name, err)
	}
	return inst.Render(ctx, false)
}

func (inst *instance) Routes() map[string]string { return inst.p.routes }
func (inst *instance) FilePath() string          { return inst.p.filePath }
func (inst *instance) Dependencies() []string    { return inst.p.dependencies }
