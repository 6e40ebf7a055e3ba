package parser

import (
	"bytes"
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/printer"
	"go/token"
	"strings"

	"github.com/pywire/pywire/ir"
)

// eventModifiers is the fixed allow-list of event modifiers (extensible via
// RegisterModifier so embedders can add modifiers without recompiling the
// core — see spec §9 Open Questions).
var eventModifiers = map[string]bool{
	"prevent":  true,
	"stop":     true,
	"self":     true,
	"once":     true,
	"enter":    true,
	"debounce": true,
	"throttle": true,
}

// RegisterModifier extends the event-modifier allow-list.
func RegisterModifier(name string) {
	eventModifiers[name] = true
}

// ClassifyAttribute decides what an attribute name/value pair means (C2).
// Classification is driven by name prefix, never by value shape alone,
// except for the reactive-attribute case, which is detected by the value
// being exactly "{expr}". Spreads arrive under the reserved __spread__ name.
func ClassifyAttribute(name, value string, line, col int) (ir.SpecialAttribute, *ir.Diagnostic, bool) {
	switch {
	case strings.HasPrefix(name, "@"):
		return classifyEvent(name, value, line, col)
	case name == "$if":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		return ir.IfAttribute{Condition: expr}, nil, true
	case name == "$show":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		return ir.ShowAttribute{Condition: expr}, nil, true
	case name == "$for":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		vars, iterable, ok := splitForExpr(expr)
		if !ok {
			return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: "$for expects 'var in iterable' or 'k, v in iterable'", Line: line, Column: col}, true
		}
		return ir.ForAttribute{LoopVars: vars, Iterable: iterable}, nil, true
	case name == "$key":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		return ir.KeyAttribute{Expr: expr}, nil, true
	case name == "$bind":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		return ir.BindAttribute{Variable: expr, BindingType: ir.BindProperty}, nil, true
	case name == "$bind:progress":
		expr, diag := requireBraced(name, value, line, col)
		if diag != nil {
			return nil, diag, true
		}
		return ir.BindAttribute{Variable: expr, BindingType: ir.BindProgress}, nil, true
	case name == "$model":
		return ir.ModelAttribute{ModelName: strings.Trim(value, "{}")}, nil, true
	case name == "__spread__":
		expr := strings.TrimSpace(value)
		expr = strings.TrimPrefix(expr, "{")
		expr = strings.TrimSuffix(expr, "}")
		expr = strings.TrimPrefix(expr, "**")
		return ir.SpreadAttribute{Expr: expr}, nil, true
	case isBracedValue(value):
		return ir.ReactiveAttribute{Name: name, Expr: unbrace(value)}, nil, true
	default:
		return nil, nil, false
	}
}

func requireBraced(name, value string, line, col int) (string, *ir.Diagnostic) {
	if !isBracedValue(value) {
		return "", &ir.Diagnostic{Severity: ir.SeverityError, Message: fmt.Sprintf("%s value must be {expression}", name), Line: line, Column: col}
	}
	return unbrace(value), nil
}

func isBracedValue(v string) bool {
	return strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") && len(v) >= 2
}

func unbrace(v string) string {
	return strings.TrimSpace(v[1 : len(v)-1])
}

// splitForExpr parses "var in iterable" or "k, v in iterable".
func splitForExpr(expr string) ([]string, string, bool) {
	idx := strings.Index(expr, " in ")
	if idx < 0 {
		return nil, "", false
	}
	varsPart := strings.TrimSpace(expr[:idx])
	iterable := strings.TrimSpace(expr[idx+4:])
	if varsPart == "" || iterable == "" {
		return nil, "", false
	}
	var vars []string
	for _, v := range strings.Split(varsPart, ",") {
		vars = append(vars, strings.TrimSpace(v))
	}
	return vars, iterable, true
}

func classifyEvent(name, value string, line, col int) (ir.SpecialAttribute, *ir.Diagnostic, bool) {
	rest := name[1:] // strip '@'
	parts := strings.Split(rest, ".")
	eventType := parts[0]
	var modifiers []string
	var diag *ir.Diagnostic
	for _, m := range parts[1:] {
		if !eventModifiers[m] {
			diag = &ir.Diagnostic{Severity: ir.SeverityError, Message: fmt.Sprintf("unknown event modifier %q", m), Line: line, Column: col}
			continue
		}
		modifiers = append(modifiers, m)
	}
	if !isBracedValue(value) {
		return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: fmt.Sprintf("@%s value must be {expression}", eventType), Line: line, Column: col}, true
	}
	body := unbrace(value)
	attr := ir.EventAttribute{
		EventType:  eventType,
		Modifiers:  modifiers,
		InlineBody: body,
		Line:       line,
		Column:     col,
	}
	if name, ok := bareIdentifier(body); ok {
		attr.HandlerName = name
	}
	return attr, diag, true
}

// liftEventArgs rewrites an inline event's call-expression arguments that
// reference a name in scope (typically a $for loop variable, spec §4.2
// "Argument lifting for events"): such a name won't exist by the time the
// synthesized handler actually runs, since loop variables are bound only
// while rendering. Each affected argument's source expression is recorded
// in Args (evaluated once per render, while the name is still in scope) and
// the call site is rewritten to reference it positionally as arg0, arg1...
// A handler body with no call expression, or whose arguments reference
// nothing in scope, is returned unchanged.
func liftEventArgs(attr ir.EventAttribute, scope []string) ir.EventAttribute {
	if attr.HandlerName != "" || attr.InlineBody == "" || len(scope) == 0 {
		return attr
	}
	fset := token.NewFileSet()
	expr, err := goparser.ParseExprFrom(fset, "", attr.InlineBody, 0)
	if err != nil {
		return attr
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return attr
	}
	bound := make(map[string]bool, len(scope))
	for _, v := range scope {
		bound[v] = true
	}

	rewritten := make([]string, len(call.Args))
	var lifted []string
	changed := false
	for i, argExpr := range call.Args {
		if exprReferencesAny(argExpr, bound) {
			rewritten[i] = fmt.Sprintf("arg%d", len(lifted))
			lifted = append(lifted, exprSource(fset, argExpr))
			changed = true
			continue
		}
		rewritten[i] = exprSource(fset, argExpr)
	}
	if !changed {
		return attr
	}
	attr.Args = lifted
	attr.InlineBody = fmt.Sprintf("%s(%s)", exprSource(fset, call.Fun), strings.Join(rewritten, ", "))
	return attr
}

// exprReferencesAny reports whether e contains an identifier named in names.
func exprReferencesAny(e ast.Expr, names map[string]bool) bool {
	found := false
	ast.Inspect(e, func(n ast.Node) bool {
		if found {
			return false
		}
		if id, ok := n.(*ast.Ident); ok && names[id.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}

// exprSource re-prints e as Go source text.
func exprSource(fset *token.FileSet, e ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, e); err != nil {
		return ""
	}
	return buf.String()
}

// bareIdentifier reports whether body is a plain identifier (no call, no
// operators) — in which case it names an existing handler method directly
// rather than requiring inline-body lifting.
func bareIdentifier(body string) (string, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	for i, r := range body {
		if i == 0 && !isIdentStart(r) {
			return "", false
		}
		if i > 0 && !isIdentPart(r) {
			return "", false
		}
	}
	return body, true
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
