package codegen

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/pywire/pywire/ir"
	"github.com/pywire/pywire/runtime"
)

// ComponentFactory constructs a fresh instance of an imported component.
type ComponentFactory func() runtime.PageClass

// LayoutFactory constructs a fresh instance of a resolved layout page.
type LayoutFactory func() runtime.PageClass

// Options carries everything a page's generation needs that it cannot
// derive from its own source file: resolved !component imports and the
// resolved layout (implicit or explicit), both supplied by the loader (C8)
// which owns path resolution and the dependency graph.
type Options struct {
	Components   map[string]ComponentFactory // local name -> factory
	Layout       LayoutFactory
	Dependencies []string // absolute paths this compiled unit depends on
}

// Generator lowers one parsed page into a page-class factory.
type Generator struct{}

// NewGenerator returns a Generator. Stateless: every Compile call is
// independent, so one Generator can be shared across a loader's cache.
func NewGenerator() *Generator { return &Generator{} }

// plan is the immutable compiled form of one source file, shared by every
// instance the factory produces.
type plan struct {
	filePath     string
	dependencies []string
	routes       map[string]string
	tree         []*runtime.RenderNode
	styleCSS     string
	scopeID      string

	fset      *token.FileSet
	initOrder []string
	initExprs map[string]ast.Expr
	handlers  map[string]*handlerDef // name -> def, top-level code-section funcs
	inline    map[string]inlineHandler

	components map[string]ComponentFactory
	layout     LayoutFactory

	props      []ir.PropArg
	provide    ir.ProvideDirective
	hasProvide bool
	inject     ir.InjectDirective
	hasInject  bool

	// nativeHandlers are handlers synthesized by codegen itself (bind
	// wiring, validation wrappers) rather than lifted from user source.
	nativeHandlers  map[string]func(ctx context.Context, state *runtime.State, payload map[string]interface{}) error
	validationWraps []validationWrap
}

type handlerDef struct {
	params []string
	body   *ast.BlockStmt
}

// inlineHandler is a synthesized handler for a non-identifier event value
// (event lifting, spec §4.2): its body is a single Go statement/expression
// parsed directly from the template's inline source.
type inlineHandler struct {
	stmt ast.Stmt
	expr ast.Expr
	fset *token.FileSet
}

// Compile lowers page into a page-class factory function.
func (g *Generator) Compile(page *ir.ParsedPage, opts Options) (func() runtime.PageClass, error) {
	if page.HasErrors() {
		return nil, fmt.Errorf("page %s has unresolved diagnostics", page.FilePath)
	}

	p := &plan{
		filePath:     page.FilePath,
		dependencies: opts.Dependencies,
		routes:       map[string]string{},
		initExprs:    map[string]ast.Expr{},
		handlers:     map[string]*handlerDef{},
		inline:       map[string]inlineHandler{},
		components:   opts.Components,
		layout:       opts.Layout,
		scopeID:      scopeIDFor(page.FilePath),
	}

	for _, pd := range page.PathDirectives() {
		for _, variant := range pd.RouteOrder {
			p.routes[variant] = pd.Routes[variant]
		}
	}
	if props, ok := page.Props(); ok {
		p.props = props.Args
	}
	if pr, ok := page.Provide(); ok {
		p.provide, p.hasProvide = pr, true
	}
	if inj, ok := page.Inject(); ok {
		p.inject, p.hasInject = inj, true
	}

	if astFile, ok := page.CodeSectionAST.(*ast.File); ok && astFile != nil {
		fset, _ := page.CodeSectionFset.(*token.FileSet)
		p.fset = fset
		if err := lowerCodeSection(astFile, p); err != nil {
			return nil, fmt.Errorf("lowering code section of %s: %w", page.FilePath, err)
		}
	}

	inlineCounter := 0
	tree, css, err := lowerTemplateList(page.Template, p.scopeID, &inlineCounter, p)
	if err != nil {
		return nil, fmt.Errorf("lowering template of %s: %w", page.FilePath, err)
	}
	p.tree = tree
	p.styleCSS = css

	return func() runtime.PageClass { return newInstance(p) }, nil
}

// scopeIDFor derives a short, stable scope id from a file path (used for
// <style scoped> selector rewriting and data-ph-* attributes); stable across
// process restarts and hot reloads, which the migration/diffing-free
// rendering contract depends on (spec §4.11).
func scopeIDFor(filePath string) string {
	sum := sha1.Sum([]byte(filePath))
	return hex.EncodeToString(sum[:])[:8]
}

// lowerCodeSection walks the code section's top-level declarations: var/
// const specs become state-field initializers, func decls become named
// handlers dispatched by HandleEvent.
func lowerCodeSection(file *ast.File, p *plan) error {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.VAR && d.Tok != token.CONST {
				continue
			}
			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for i, name := range vs.Names {
					if name.Name == "_" {
						continue
					}
					p.initOrder = append(p.initOrder, name.Name)
					if i < len(vs.Values) {
						p.initExprs[name.Name] = vs.Values[i]
					}
				}
			}
		case *ast.FuncDecl:
			if d.Recv != nil || d.Body == nil {
				continue // methods aren't lifted; only free functions are handlers
			}
			params := make([]string, 0, d.Type.Params.NumFields())
			for _, field := range d.Type.Params.List {
				for _, name := range field.Names {
					params = append(params, name.Name)
				}
			}
			p.handlers[d.Name.Name] = &handlerDef{params: params, body: d.Body}
		}
	}
	return nil
}

// lowerTemplateList lowers a slice of sibling template nodes, pulling any
// top-level <style scoped> block out into css and returning the remaining
// render tree.
func lowerTemplateList(nodes []*ir.TemplateNode, scopeID string, counter *int, p *plan) ([]*runtime.RenderNode, string, error) {
	hasScoped := false
	for _, n := range nodes {
		if n.Tag == "style" {
			if _, scoped := n.Attributes["scoped"]; scoped {
				hasScoped = true
			}
		}
	}

	var out []*runtime.RenderNode
	var css strings.Builder
	for _, n := range nodes {
		if n.Tag == "style" {
			if _, scoped := n.Attributes["scoped"]; scoped {
				css.WriteString(runtime.RewriteSelectors(n.TextContent, scopeID))
				continue
			}
		}
		scopeTag := ""
		if hasScoped {
			scopeTag = scopeID
		}
		rn, err := lowerNode(n, scopeTag, counter, p)
		if err != nil {
			return nil, "", err
		}
		if rn != nil {
			out = append(out, rn)
		}
	}
	return out, css.String(), nil
}

// lowerNode lowers one template node. scopeTag, when non-empty, is stamped
// onto every element node's ScopeID so the renderer tags it
// data-ph-<scopeTag> for a sibling <style scoped> block to target.
func lowerNode(n *ir.TemplateNode, scopeTag string, counter *int, p *plan) (*runtime.RenderNode, error) {
	if n.IsInterpolation() {
		interp := n.SpecialAttributes[0].(ir.InterpolationNode)
		return &runtime.RenderNode{InterpolationExpr: interp.Expression}, nil
	}
	if n.IsText() {
		return &runtime.RenderNode{Static: runtime.EscapeText(n.TextContent)}, nil
	}

	rn := &runtime.RenderNode{Tag: n.Tag}
	raw := n.Tag == "script" || n.Tag == "style" || n.IsRaw

	for _, sa := range n.SpecialAttributes {
		switch a := sa.(type) {
		case ir.IfAttribute:
			rn.IfExpr = a.Condition
		case ir.ShowAttribute:
			rn.ShowExpr = a.Condition
		case ir.ForAttribute:
			rn.ForExpr = a.Iterable
			rn.ForVars = a.LoopVars
			rn.ForIsTemplate = a.IsTemplateTag
		case ir.KeyAttribute:
			rn.KeyExpr = a.Expr
		case ir.SpreadAttribute:
			rn.SpreadExpr = a.Expr
		case ir.ReactiveAttribute:
			rn.Attrs = append(rn.Attrs, runtime.AttrNode{Name: a.Name, Expr: a.Expr, IsReactive: true})
		case ir.BindAttribute:
			appendBindAttrs(rn, a, p)
		case ir.ModelAttribute:
			// Namespacing of nested $bind fields under a model is left to
			// authors writing fully-qualified variable names; no extra
			// codegen needed beyond what the form's harvested schema
			// already carries.
		case ir.EventAttribute:
			binding, err := lowerEvent(a, counter, p)
			if err != nil {
				return nil, err
			}
			rn.Attrs = append(rn.Attrs, runtime.AttrNode{IsEvent: true, Event: binding})
		}
	}

	if n.Tag != "" {
		rn.ScopeID = scopeTag
	}

	for name, val := range n.Attributes {
		if name == "scoped" && n.Tag == "style" {
			continue
		}
		rn.Attrs = append(rn.Attrs, runtime.AttrNode{Name: name, Literal: val})
	}

	for _, child := range n.Children {
		if raw && child.IsText() {
			rn.Children = append(rn.Children, &runtime.RenderNode{Static: child.TextContent})
			continue
		}
		cn, err := lowerNode(child, scopeTag, counter, p)
		if err != nil {
			return nil, err
		}
		if cn != nil {
			rn.Children = append(rn.Children, cn)
		}
	}

	if comp, ok := p.components[n.Tag]; ok {
		slotNodes := map[string][]*runtime.RenderNode{}
		slotNodes["default"] = rn.Children
		propExprs := map[string]string{}
		for _, a := range rn.Attrs {
			if a.IsReactive {
				propExprs[a.Name] = a.Expr
			} else {
				propExprs[a.Name] = fmt.Sprintf("%q", a.Literal)
			}
		}
		return &runtime.RenderNode{
			IfExpr:    rn.IfExpr,
			ForExpr:   rn.ForExpr,
			ForVars:   rn.ForVars,
			KeyExpr:   rn.KeyExpr,
			Component: &runtime.ComponentRef{Factory: comp, PropExprs: propExprs, SlotNodes: slotNodes},
		}, nil
	}

	if n.Tag == "slot" {
		name := n.Attributes["name"]
		if name == "" {
			name = "default"
		}
		return &runtime.RenderNode{SlotName: name, SlotDefault: rn.Children}, nil
	}

	return rn, nil
}

// appendBindAttrs synthesizes the reactive value attribute plus the
// generated event handler (input for $bind, progress for $bind:progress)
// for a bound field (spec §4.7); no checked attribute is emitted. The
// element stays wired to the variable's current value on every
// render, and a server round-trip on the relevant DOM event writes the new
// value back before the re-render.
func appendBindAttrs(rn *runtime.RenderNode, a ir.BindAttribute, p *plan) {
	switch a.BindingType {
	case ir.BindProgress:
		rn.Attrs = append(rn.Attrs, runtime.AttrNode{Name: "value", Expr: a.Variable, IsReactive: true})
		handlerName := "_bind_progress_" + a.Variable
		rn.Attrs = append(rn.Attrs, runtime.AttrNode{IsEvent: true, Event: runtime.EventBinding{
			EventType: "progress", HandlerName: handlerName, ArgExprs: []string{"value"},
		}})
		registerBindHandler(p, handlerName, a.Variable)
	default:
		rn.Attrs = append(rn.Attrs, runtime.AttrNode{Name: "value", Expr: a.Variable, IsReactive: true})
		handlerName := "_bind_" + a.Variable
		rn.Attrs = append(rn.Attrs, runtime.AttrNode{IsEvent: true, Event: runtime.EventBinding{
			EventType: "input", HandlerName: handlerName, ArgExprs: []string{"value"},
		}})
		registerBindHandler(p, handlerName, a.Variable)
	}
}

// registerBindHandler installs a synthetic, non-AST handler that just
// copies payload["arg0"] onto the bound field. Represented as a Go closure
// rather than an Interp-executed AST since there's no user source for it.
func registerBindHandler(p *plan, name, field string) {
	if p.nativeHandlers == nil {
		p.nativeHandlers = map[string]func(ctx context.Context, state *runtime.State, payload map[string]interface{}) error{}
	}
	p.nativeHandlers[name] = func(ctx context.Context, state *runtime.State, payload map[string]interface{}) error {
		state.Set(field, payload["arg0"])
		return nil
	}
}

// lowerEvent compiles an EventAttribute into a runtime.EventBinding,
// synthesizing a handler name and registering its body when the template
// wrote an inline expression/statement instead of a bare handler reference
// (spec §4.2 event lifting).
func lowerEvent(a ir.EventAttribute, counter *int, p *plan) (runtime.EventBinding, error) {
	name := a.HandlerName
	if name == "" && a.InlineBody != "" {
		name = fmt.Sprintf("_handler_%d", *counter)
		*counter++
		stmt, expr, fset, err := parseInlineBody(a.InlineBody)
		if err != nil {
			return runtime.EventBinding{}, fmt.Errorf("inline handler %q: %w", a.InlineBody, err)
		}
		p.inline[name] = inlineHandler{stmt: stmt, expr: expr, fset: fset}
	}
	binding := runtime.EventBinding{
		EventType:   a.EventType,
		HandlerName: name,
		Modifiers:   a.Modifiers,
		ArgExprs:    a.Args,
	}
	if a.ValidationSchema != nil {
		name = wrapWithValidation(p, name, a.ValidationSchema)
		binding.HandlerName = name
	}
	return binding, nil
}

// wrapWithValidation installs a synthetic handler that runs
// validate.ValidateForm against the event payload, stores any errors onto
// state["errors"], and only calls through to the underlying handler when
// every field is clean (spec §4.7 scenario 5).
func wrapWithValidation(p *plan, underlying string, schema *ir.FormValidationSchema) string {
	wrapped := "_validated_" + underlying
	if p.nativeHandlers == nil {
		p.nativeHandlers = map[string]func(ctx context.Context, state *runtime.State, payload map[string]interface{}) error{}
	}
	p.validationWraps = append(p.validationWraps, validationWrap{name: wrapped, underlying: underlying, schema: schema})
	return wrapped
}

type validationWrap struct {
	name       string
	underlying string
	schema     *ir.FormValidationSchema
}

// parseInlineBody parses a template event's inline source as either a
// single statement (assignment, call, etc.) or, failing that, a bare
// expression — covering both `@click="count += 1"` and `@click="toggle()"`
// written without parens-as-call-only form.
func parseInlineBody(src string) (ast.Stmt, ast.Expr, *token.FileSet, error) {
	wrapped := "package page\nfunc _inline() {\n" + src + "\n}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", wrapped, 0)
	if err == nil {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Name.Name != "_inline" {
				continue
			}
			if len(fd.Body.List) == 1 {
				return fd.Body.List[0], nil, fset, nil
			}
			return nil, nil, nil, &blockBody{fd.Body}
		}
	}
	e, exprErr := parser.ParseExprFrom(fset, "", src, 0)
	if exprErr != nil {
		return nil, nil, nil, fmt.Errorf("not a valid statement or expression: %v / %v", err, exprErr)
	}
	return nil, e, fset, nil
}

// blockBody is used as a sentinel error only when an inline handler body
// has multiple statements; Compile reports this as an error since multi-
// statement inline bodies should be written as named code-section
// functions instead.
type blockBody struct{ body *ast.BlockStmt }

func (b *blockBody) Error() string {
	return "multi-statement inline event handlers are not supported; extract a named handler function"
}
