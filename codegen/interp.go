// Package codegen lowers a parsed page (ir.ParsedPage) into an executable
// page class (C7): a compiled render plan, a handler table built by
// interpreting the code section's function bodies, and the event-dispatch
// wiring that binds DOM payloads to handler arguments.
//
// Handler bodies are themselves Go source (parsed by parser.ParseCodeSection
// via go/parser, C5); Interp executes that AST directly against a page's
// State rather than requiring a separate build step, which is what makes
// in-process hot-reload state migration (spec §4.11) possible without
// shelling out to the Go toolchain at request time. Per-statement control
// flow (assignment, if/for, return) is walked by hand; every expression
// node is reduced to source text via go/printer and evaluated through
// runtime.Eval (expr-lang), so the "language" handler bodies may use is the
// intersection of Go expression syntax and expr-lang's evaluator — covering
// the arithmetic, comparisons, calls, and indexing real handlers need.
package codegen

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"

	"github.com/pywire/pywire/runtime"
)

// Interp executes a Go function body (an *ast.BlockStmt) against a page's
// runtime.State plus a local-scope overlay for parameters and `:=`
// declarations.
type Interp struct {
	fset  *token.FileSet
	state *runtime.State
	calls map[string]func(ctx context.Context, args []interface{}) (interface{}, error)
}

// NewInterp returns an Interp bound to state, with calls available as
// callable handler/helper names (used for cross-handler calls like
// `delete(item.id)` invoking another code-section function).
func NewInterp(fset *token.FileSet, state *runtime.State, calls map[string]func(ctx context.Context, args []interface{}) (interface{}, error)) *Interp {
	return &Interp{fset: fset, state: state, calls: calls}
}

// controlFlow signals non-local exits from nested blocks.
type controlFlow int

const (
	flowNone controlFlow = iota
	flowReturn
	flowBreak
	flowContinue
)

// Run executes body with locals pre-seeded (e.g. function parameters bound
// to their argument values).
func (in *Interp) Run(ctx context.Context, body *ast.BlockStmt, locals map[string]interface{}) error {
	_, _, err := in.execBlock(ctx, body, locals)
	return err
}

func (in *Interp) execBlock(ctx context.Context, block *ast.BlockStmt, locals map[string]interface{}) (controlFlow, interface{}, error) {
	for _, stmt := range block.List {
		flow, val, err := in.execStmt(ctx, stmt, locals)
		if err != nil {
			return flowNone, nil, err
		}
		if flow != flowNone {
			return flow, val, nil
		}
	}
	return flowNone, nil, nil
}

func (in *Interp) execStmt(ctx context.Context, stmt ast.Stmt, locals map[string]interface{}) (controlFlow, interface{}, error) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		_, err := in.evalExpr(ctx, s.X, locals)
		return flowNone, nil, err

	case *ast.AssignStmt:
		return flowNone, nil, in.execAssign(ctx, s, locals)

	case *ast.IncDecStmt:
		cur, err := in.evalExpr(ctx, s.X, locals)
		if err != nil {
			return flowNone, nil, err
		}
		n := toNumber(cur)
		if s.Tok == token.INC {
			n++
		} else {
			n--
		}
		return flowNone, nil, in.assignTo(s.X, n, locals)

	case *ast.IfStmt:
		if s.Init != nil {
			if _, _, err := in.execStmt(ctx, s.Init, locals); err != nil {
				return flowNone, nil, err
			}
		}
		cond, err := in.evalExpr(ctx, s.Cond, locals)
		if err != nil {
			return flowNone, nil, err
		}
		if runtime.Truthy(cond) {
			return in.execBlock(ctx, s.Body, childScope(locals))
		}
		if s.Else != nil {
			switch elseStmt := s.Else.(type) {
			case *ast.BlockStmt:
				return in.execBlock(ctx, elseStmt, childScope(locals))
			default:
				return in.execStmt(ctx, elseStmt, locals)
			}
		}
		return flowNone, nil, nil

	case *ast.ForStmt:
		return in.execFor(ctx, s, locals)

	case *ast.RangeStmt:
		return in.execRange(ctx, s, locals)

	case *ast.ReturnStmt:
		if len(s.Results) == 0 {
			return flowReturn, nil, nil
		}
		v, err := in.evalExpr(ctx, s.Results[0], locals)
		return flowReturn, v, err

	case *ast.BlockStmt:
		return in.execBlock(ctx, s, childScope(locals))

	case *ast.BranchStmt:
		if s.Tok == token.BREAK {
			return flowBreak, nil, nil
		}
		return flowContinue, nil, nil

	case *ast.DeclStmt:
		// var x = expr inside a handler body: bind into locals.
		if gd, ok := s.Decl.(*ast.GenDecl); ok {
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for i, name := range vs.Names {
					var v interface{}
					if i < len(vs.Values) {
						val, err := in.evalExpr(ctx, vs.Values[i], locals)
						if err != nil {
							return flowNone, nil, err
						}
						v = val
					}
					locals[name.Name] = v
				}
			}
		}
		return flowNone, nil, nil

	default:
		return flowNone, nil, fmt.Errorf("unsupported statement %T", stmt)
	}
}

func (in *Interp) execFor(ctx context.Context, s *ast.ForStmt, locals map[string]interface{}) (controlFlow, interface{}, error) {
	scope := childScope(locals)
	if s.Init != nil {
		if _, _, err := in.execStmt(ctx, s.Init, scope); err != nil {
			return flowNone, nil, err
		}
	}
	for {
		if s.Cond != nil {
			cond, err := in.evalExpr(ctx, s.Cond, scope)
			if err != nil {
				return flowNone, nil, err
			}
			if !runtime.Truthy(cond) {
				break
			}
		}
		flow, val, err := in.execBlock(ctx, s.Body, childScope(scope))
		if err != nil {
			return flowNone, nil, err
		}
		if flow == flowReturn {
			return flow, val, nil
		}
		if flow == flowBreak {
			break
		}
		if s.Post != nil {
			if _, _, err := in.execStmt(ctx, s.Post, scope); err != nil {
				return flowNone, nil, err
			}
		}
	}
	return flowNone, nil, nil
}

func (in *Interp) execRange(ctx context.Context, s *ast.RangeStmt, locals map[string]interface{}) (controlFlow, interface{}, error) {
	seqVal, err := in.evalExpr(ctx, s.X, locals)
	if err != nil {
		return flowNone, nil, err
	}
	items, _ := toSlice(seqVal)
	for i, item := range items {
		scope := childScope(locals)
		if keyIdent, ok := s.Key.(*ast.Ident); ok && keyIdent.Name != "_" {
			scope[keyIdent.Name] = i
		}
		if s.Value != nil {
			if valIdent, ok := s.Value.(*ast.Ident); ok && valIdent.Name != "_" {
				scope[valIdent.Name] = item
			}
		}
		flow, val, err := in.execBlock(ctx, s.Body, scope)
		if err != nil {
			return flowNone, nil, err
		}
		if flow == flowReturn {
			return flow, val, nil
		}
		if flow == flowBreak {
			break
		}
	}
	return flowNone, nil, nil
}

func (in *Interp) execAssign(ctx context.Context, s *ast.AssignStmt, locals map[string]interface{}) error {
	for i, lhs := range s.Lhs {
		var rhs ast.Expr
		if len(s.Rhs) == len(s.Lhs) {
			rhs = s.Rhs[i]
		} else {
			rhs = s.Rhs[0]
		}
		v, err := in.evalExpr(ctx, rhs, locals)
		if err != nil {
			return err
		}
		switch s.Tok {
		case token.DEFINE:
			if id, ok := lhs.(*ast.Ident); ok {
				locals[id.Name] = v
			}
		case token.ASSIGN:
			if err := in.assignTo(lhs, v, locals); err != nil {
				return err
			}
		case token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.QUO_ASSIGN:
			cur, err := in.evalExpr(ctx, lhs, locals)
			if err != nil {
				return err
			}
			combined := combine(s.Tok, cur, v)
			if err := in.assignTo(lhs, combined, locals); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported assignment operator %v", s.Tok)
		}
	}
	return nil
}

func combine(tok token.Token, cur, v interface{}) interface{} {
	a, aok := toFloatOK(cur)
	b, bok := toFloatOK(v)
	if aok && bok {
		switch tok {
		case token.ADD_ASSIGN:
			return a + b
		case token.SUB_ASSIGN:
			return a - b
		case token.MUL_ASSIGN:
			return a * b
		case token.QUO_ASSIGN:
			return a / b
		}
	}
	if tok == token.ADD_ASSIGN {
		if as, ok := cur.(string); ok {
			return as + fmt.Sprintf("%v", v)
		}
		if aslice, ok := cur.([]interface{}); ok {
			return append(append([]interface{}{}, aslice...), v)
		}
	}
	return v
}

// assignTo writes v to an identifier, a selector (locals["state"].Field),
// or an index expression (locals["items"][i]) on either the local scope or
// page state.
func (in *Interp) assignTo(lhs ast.Expr, v interface{}, locals map[string]interface{}) error {
	switch e := lhs.(type) {
	case *ast.Ident:
		if _, isLocal := locals[e.Name]; isLocal {
			locals[e.Name] = v
			return nil
		}
		in.state.Set(e.Name, v)
		return nil
	case *ast.IndexExpr:
		base, err := in.evalExpr(context.Background(), e.X, locals)
		if err != nil {
			return err
		}
		idx, err := in.evalExpr(context.Background(), e.Index, locals)
		if err != nil {
			return err
		}
		if m, ok := base.(map[string]interface{}); ok {
			if key, ok := idx.(string); ok {
				m[key] = v
				return nil
			}
		}
		if s, ok := base.([]interface{}); ok {
			if i, ok := idx.(int); ok && i >= 0 && i < len(s) {
				s[i] = v
				return nil
			}
		}
		return fmt.Errorf("unsupported index assignment target")
	case *ast.SelectorExpr:
		base, err := in.evalExpr(context.Background(), e.X, locals)
		if err != nil {
			return err
		}
		if m, ok := base.(map[string]interface{}); ok {
			m[e.Sel.Name] = v
			return nil
		}
		return fmt.Errorf("unsupported selector assignment target")
	default:
		return fmt.Errorf("unsupported assignment target %T", lhs)
	}
}

// evalExpr renders e back to Go source text and evaluates it via expr-lang
// against locals overlaid on page state.
func (in *Interp) evalExpr(ctx context.Context, e ast.Expr, locals map[string]interface{}) (interface{}, error) {
	if call, ok := e.(*ast.CallExpr); ok {
		if ident, ok := call.Fun.(*ast.Ident); ok {
			if fn, ok := in.calls[ident.Name]; ok {
				args := make([]interface{}, len(call.Args))
				for i, a := range call.Args {
					v, err := in.evalExpr(ctx, a, locals)
					if err != nil {
						return nil, err
					}
					args[i] = v
				}
				return fn(ctx, args)
			}
		}
	}

	src, err := exprSource(in.fset, e)
	if err != nil {
		return nil, err
	}
	env := in.state.Env(locals)
	return runtime.Eval(src, env)
}

func exprSource(fset *token.FileSet, e ast.Expr) (string, error) {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, e); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func childScope(parent map[string]interface{}) map[string]interface{} {
	child := make(map[string]interface{}, len(parent))
	for k, v := range parent {
		child[k] = v
	}
	return child
}

func toNumber(v interface{}) float64 {
	f, _ := toFloatOK(v)
	return f
}

func toFloatOK(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	default:
		return nil, false
	}
}
