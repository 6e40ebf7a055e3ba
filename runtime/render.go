package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EscapeAttr entity-escapes a string for use inside a double-quoted HTML
// attribute value (spec §8 "Attribute escaping" universal property: no
// unescaped <, >, ", & survive).
func EscapeAttr(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EscapeText entity-escapes text content (no attribute-only quote
// escaping needed, but < > & still must not leak raw markup).
func EscapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether tag is an HTML void element.
func IsVoidElement(tag string) bool {
	return voidTags[strings.ToLower(tag)]
}

var ariaAttrPrefix = "aria-"

// RenderAttrValue lowers a reactive-attribute value to its canonical text
// form (spec §4.7 Attribute rendering bullet):
//   - true -> `name=""`
//   - false/absent -> attribute omitted entirely
//   - any other truthy value -> its string form, except aria-* attributes
//     which always emit the literal "true"/"false".
//
// Returns (value, emit).
func RenderAttrValue(name string, v interface{}) (string, bool) {
	if b, ok := v.(bool); ok {
		if strings.HasPrefix(name, ariaAttrPrefix) {
			if b {
				return "true", true
			}
			return "false", true
		}
		if b {
			return "", true
		}
		return "", false
	}
	if v == nil {
		return "", false
	}
	if !Truthy(v) {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

// Exec walks a compiled RenderNode tree and appends its HTML to buf,
// evaluating expressions against env (C7's single-pass render procedure).
func Exec(ctx context.Context, node *RenderNode, env Env, buf *strings.Builder) error {
	if node.IfExpr != "" {
		ok, err := EvalBool(node.IfExpr, env)
		if err != nil {
			return fmt.Errorf("$if condition: %w", err)
		}
		if !ok {
			return nil
		}
	}

	if node.ForExpr != "" {
		return execFor(ctx, node, env, buf)
	}

	if node.SlotName != "" {
		defaultRenderer := func() (string, error) {
			var sb strings.Builder
			for _, c := range node.SlotDefault {
				if err := Exec(ctx, c, env, &sb); err != nil {
					return "", err
				}
			}
			return sb.String(), nil
		}
		resolver := slotResolverFrom(ctx)
		if resolver == nil {
			out, err := defaultRenderer()
			if err != nil {
				return err
			}
			buf.WriteString(out)
			return nil
		}
		out, err := resolver.RenderSlot(node.SlotName, "", defaultRenderer, node.SlotName == "$head")
		if err != nil {
			return err
		}
		buf.WriteString(out)
		return nil
	}

	if node.Component != nil {
		return execComponent(ctx, node, env, buf)
	}

	if node.Static != "" {
		buf.WriteString(node.Static)
		return nil
	}

	if node.InterpolationExpr != "" {
		v, err := Eval(node.InterpolationExpr, env)
		if err != nil {
			return fmt.Errorf("interpolation %q: %w", node.InterpolationExpr, err)
		}
		buf.WriteString(EscapeText(stringify(v)))
		return nil
	}

	if node.Tag == "" {
		for _, c := range node.Children {
			if err := Exec(ctx, c, env, buf); err != nil {
				return err
			}
		}
		return nil
	}

	buf.WriteString("<")
	buf.WriteString(node.Tag)

	extraStyle := ""
	if node.ShowExpr != "" {
		ok, err := EvalBool(node.ShowExpr, env)
		if err != nil {
			return fmt.Errorf("$show condition: %w", err)
		}
		if !ok {
			extraStyle = "; display: none"
		}
	}

	if err := renderAttrs(node, env, extraStyle, buf); err != nil {
		return err
	}

	if node.KeyExpr != "" {
		v, err := Eval(node.KeyExpr, env)
		if err != nil {
			return fmt.Errorf("$key: %w", err)
		}
		buf.WriteString(fmt.Sprintf(` id="%s"`, EscapeAttr(stringify(v))))
	}

	buf.WriteString(">")

	if IsVoidElement(node.Tag) {
		return nil
	}

	for _, c := range node.Children {
		if err := Exec(ctx, c, env, buf); err != nil {
			return err
		}
	}

	buf.WriteString("</")
	buf.WriteString(node.Tag)
	buf.WriteString(">")
	return nil
}

func renderAttrs(node *RenderNode, env Env, extraStyle string, buf *strings.Builder) error {
	styleOverride := ""
	emitted := map[string]bool{}

	emit := func(name, value string) {
		if emitted[name] {
			return
		}
		emitted[name] = true
		buf.WriteString(" ")
		buf.WriteString(name)
		buf.WriteString(`="`)
		buf.WriteString(EscapeAttr(value))
		buf.WriteString(`"`)
	}

	for _, a := range node.Attrs {
		switch {
		case a.IsEvent:
			emitEvent(a, env, emit)
		case a.IsReactive:
			v, err := Eval(a.Expr, env)
			if err != nil {
				return fmt.Errorf("attribute %s: %w", a.Name, err)
			}
			val, ok := RenderAttrValue(a.Name, v)
			if !ok {
				continue
			}
			if a.Name == "style" {
				styleOverride = val
				continue
			}
			emit(a.Name, val)
		default:
			if a.Name == "style" {
				styleOverride = a.Literal
				continue
			}
			emit(a.Name, a.Literal)
		}
	}

	if node.ScopeID != "" {
		emit("data-ph-"+node.ScopeID, "")
	}

	if node.SpreadExpr != "" {
		v, err := Eval(node.SpreadExpr, env)
		if err != nil {
			return fmt.Errorf("spread attribute: %w", err)
		}
		if m, ok := v.(map[string]interface{}); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if s, ok := RenderAttrValue(k, m[k]); ok {
					emit(k, s)
				}
			}
		}
	}

	if extraStyle != "" {
		styleOverride += extraStyle
	}
	if styleOverride != "" {
		emit("style", styleOverride)
	}
	return nil
}

func emitEvent(a AttrNode, env Env, emit func(name, value string)) {
	emit("data-on-"+a.Event.EventType, a.Event.HandlerName)
	if len(a.Event.Modifiers) > 0 {
		emit("data-modifiers-"+a.Event.EventType, strings.Join(a.Event.Modifiers, " "))
	}
	for i, argExpr := range a.Event.ArgExprs {
		v, err := Eval(argExpr, env)
		if err != nil {
			continue
		}
		b, _ := json.Marshal(v)
		emit(fmt.Sprintf("data-arg-%d", i), string(b))
	}
}

func execFor(ctx context.Context, node *RenderNode, env Env, buf *strings.Builder) error {
	items, err := Eval(node.ForExpr, env)
	if err != nil {
		return fmt.Errorf("$for iterable: %w", err)
	}
	seq, ok := toSlice(items)
	if !ok {
		return nil
	}
	for _, item := range seq {
		childEnv := make(Env, len(env)+len(node.ForVars))
		for k, v := range env {
			childEnv[k] = v
		}
		bindForVars(node.ForVars, item, childEnv)

		if node.ForIsTemplate {
			for _, c := range node.Children {
				if err := Exec(ctx, c, childEnv, buf); err != nil {
					return err
				}
			}
			continue
		}
		clone := *node
		clone.ForExpr = ""
		if err := Exec(ctx, &clone, childEnv, buf); err != nil {
			return err
		}
	}
	return nil
}

func bindForVars(vars []string, item interface{}, env Env) {
	if len(vars) == 1 {
		env[vars[0]] = item
		return
	}
	if pair, ok := item.([2]interface{}); ok && len(vars) == 2 {
		env[vars[0]] = pair[0]
		env[vars[1]] = pair[1]
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case nil:
		return nil, true
	case map[string]interface{}:
		out := make([]interface{}, 0, len(t))
		for k, val := range t {
			out = append(out, [2]interface{}{k, val})
		}
		return out, true
	default:
		return nil, false
	}
}

func execComponent(ctx context.Context, node *RenderNode, env Env, buf *strings.Builder) error {
	child := node.Component.Factory()
	for propName, propExpr := range node.Component.PropExprs {
		v, err := Eval(propExpr, env)
		if err != nil {
			return fmt.Errorf("component prop %s: %w", propName, err)
		}
		child.State().Set(propName, v)
	}

	childCtx := ctx
	if registrar, ok := child.(interface {
		RegisterSlot(layoutID, name string, renderer func() (string, error))
		SlotBase() *Base
	}); ok {
		for name, nodes := range node.Component.SlotNodes {
			nodes := nodes
			registrar.RegisterSlot("", name, func() (string, error) {
				var sb strings.Builder
				for _, n := range nodes {
					if err := Exec(ctx, n, env, &sb); err != nil {
						return "", err
					}
				}
				return sb.String(), nil
			})
		}
		childCtx = WithSlotResolver(ctx, registrar.SlotBase())
	}

	if err := child.Init(childCtx); err != nil {
		return err
	}
	out, err := child.Render(childCtx, true)
	if err != nil {
		return err
	}
	buf.WriteString(out)
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
