package parser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pywire/pywire/ir"
)

// headPseudoTag is substituted for <head> so the fragment parser preserves
// it verbatim instead of hoisting it (x/net/html's fragment mode otherwise
// drops document-head-only elements when the fragment context is "body").
const headPseudoTag = "pywire-head"

var (
	attrEqExprRe = regexp.MustCompile(`([a-zA-Z_:][-a-zA-Z0-9_:.$@]*)=\{([^{}]*)\}`)
	bareSpreadRe = regexp.MustCompile(`\{\*\*([^{}]*)\}`)
)

// ParseTemplate parses a template section into a forest of TemplateNode
// (C4). rawTags (normally {"script", "style"}) suppress interpolation
// scanning and are parsed with IsRaw=true.
func ParseTemplate(source string, startLine int) ([]*ir.TemplateNode, []ir.Diagnostic) {
	normalized := normalizeTemplateSource(source)

	nodes, err := html.ParseFragment(strings.NewReader(normalized), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, []ir.Diagnostic{{Severity: ir.SeverityError, Message: fmt.Sprintf("template parse error: %v", err), Line: startLine}}
	}

	var diags []ir.Diagnostic
	var out []*ir.TemplateNode
	for _, n := range nodes {
		built := buildNodes(n, false, &diags, nil)
		out = append(out, built...)
	}
	return out, diags
}

// normalizeTemplateSource applies the three textual rewrites C4 requires
// before handing the source to the HTML fragment parser:
//  1. <head>...</head> -> <pywire-head>...</pywire-head>
//  2. attr={expr} (single brace, no nesting) -> attr="{expr}"
//  3. bare {**expr} attribute position -> __spread__="{**expr}"
func normalizeTemplateSource(source string) string {
	s := source
	s = regexp.MustCompile(`<head([\s>/])`).ReplaceAllString(s, "<"+headPseudoTag+"${1}")
	s = strings.ReplaceAll(s, "</head>", "</"+headPseudoTag+">")
	s = attrEqExprRe.ReplaceAllString(s, `$1="{$2}"`)
	s = bareSpreadRe.ReplaceAllString(s, `__spread__="{**$1}"`)
	return s
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether tag is an HTML void element that the
// renderer must not emit a closing tag for.
func IsVoidElement(tag string) bool {
	return voidTags[strings.ToLower(tag)]
}

// buildNodes lowers one html.Node (and its subtree) into TemplateNodes.
// scope carries the $for loop variables bound by every ancestor (and this
// node's own $for, if any) so event arguments can be checked for argument
// lifting (spec §4.2) without the classifier needing tree context itself.
func buildNodes(n *html.Node, parentRaw bool, diags *[]ir.Diagnostic, scope []string) []*ir.TemplateNode {
	switch n.Type {
	case html.ElementNode:
		tag := n.Data
		if tag == headPseudoTag {
			tag = "head"
		}
		isRaw := parentRaw || tag == "script" || tag == "style"

		node := &ir.TemplateNode{
			Tag:        tag,
			Attributes: map[string]string{},
			Line:       n.Line(),
			IsRaw:      isRaw,
		}

		childScope := scope
		if vars, ok := forVarsOf(n); ok {
			childScope = append(append([]string{}, scope...), vars...)
		}

		var spreadExpr string
		for _, a := range n.Attr {
			name := a.Key
			if name == "__spread__" {
				spreadExpr = strings.TrimPrefix(strings.TrimSuffix(a.Val, "}"), "{")
				spreadExpr = strings.TrimSpace(strings.TrimPrefix(spreadExpr, "**"))
				continue
			}
			special, diag, classified := ClassifyAttribute(name, a.Val, node.Line, 0)
			if diag != nil {
				*diags = append(*diags, *diag)
			}
			if classified && special != nil {
				if ev, ok := special.(ir.EventAttribute); ok {
					special = liftEventArgs(ev, childScope)
				}
				node.SpecialAttributes = append(node.SpecialAttributes, special)
				continue
			}
			if classified {
				continue // diagnostic-only, e.g. malformed event value
			}
			node.Attributes[name] = a.Val
		}
		if spreadExpr != "" {
			node.SpecialAttributes = append(node.SpecialAttributes, ir.SpreadAttribute{Expr: spreadExpr})
		}

		if formSchema := harvestFormSchema(n); formSchema != nil {
			attachSchemaToSubmit(node, formSchema)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			node.Children = append(node.Children, buildChild(c, isRaw, diags, childScope)...)
		}
		return []*ir.TemplateNode{node}

	case html.TextNode:
		return textToNodes(n.Data, n.Line(), parentRaw)

	default:
		var out []*ir.TemplateNode
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			out = append(out, buildChild(c, parentRaw, diags, scope)...)
		}
		return out
	}
}

func buildChild(n *html.Node, parentRaw bool, diags *[]ir.Diagnostic, scope []string) []*ir.TemplateNode {
	return buildNodes(n, parentRaw, diags, scope)
}

// forVarsOf reports the loop variables a node's own $for attribute binds,
// if it carries one.
func forVarsOf(n *html.Node) ([]string, bool) {
	for _, a := range n.Attr {
		if a.Key != "$for" || !isBracedValue(a.Val) {
			continue
		}
		vars, _, ok := splitForExpr(unbrace(a.Val))
		return vars, ok
	}
	return nil, false
}

// textToNodes converts text content to an alternation of literal and
// interpolation-carrier TemplateNode, per C4 step 2. Raw (script/style)
// text is never scanned for interpolations.
func textToNodes(text string, line int, isRaw bool) []*ir.TemplateNode {
	if isRaw {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []*ir.TemplateNode{{TextContent: text, Line: line, IsRaw: true}}
	}
	chunks := ScanInterpolations(text, line, 0)
	var out []*ir.TemplateNode
	for _, c := range chunks {
		if c.IsExpr {
			out = append(out, &ir.TemplateNode{
				Line: c.Line,
				SpecialAttributes: []ir.SpecialAttribute{
					ir.InterpolationNode{Expression: c.Text, Line: c.Line, Column: c.Column},
				},
			})
		} else {
			if c.Text == "" {
				continue
			}
			out = append(out, &ir.TemplateNode{TextContent: c.Text, Line: c.Line})
		}
	}
	return out
}

// harvestFormSchema collects FieldValidationRules from every named
// input/textarea/select descendant of a <form> that carries @submit, per
// C4 step 1.
func harvestFormSchema(n *html.Node) *ir.FormValidationSchema {
	if n.Data != "form" {
		return nil
	}
	hasSubmit := false
	for _, a := range n.Attr {
		if a.Key == "@submit" {
			hasSubmit = true
		}
	}
	if !hasSubmit {
		return nil
	}
	schema := &ir.FormValidationSchema{Fields: map[string]*ir.FieldValidationRules{}}
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "input" || node.Data == "textarea" || node.Data == "select") {
			if rules := fieldRulesFromNode(node); rules != nil {
				schema.Fields[rules.Name] = rules
				schema.FieldOrder = append(schema.FieldOrder, rules.Name)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if len(schema.Fields) == 0 {
		return nil
	}
	return schema
}

func fieldRulesFromNode(n *html.Node) *ir.FieldValidationRules {
	attrs := map[string]string{}
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	name, ok := attrs["name"]
	if !ok || name == "" {
		return nil
	}
	rules := &ir.FieldValidationRules{Name: name, InputType: "text"}
	if t, ok := attrs["type"]; ok {
		rules.InputType = t
	}
	if n.Data == "textarea" {
		rules.InputType = "textarea"
	}
	if n.Data == "select" {
		rules.InputType = "select"
	}
	if _, ok := attrs["required"]; ok {
		rules.Required = true
	}
	if v, ok := attrs["required"]; ok && isBracedValue(v) {
		rules.RequiredExpr = unbrace(v)
		rules.Required = false
	}
	if v, ok := attrs["pattern"]; ok {
		rules.Pattern = v
	}
	if v, ok := attrs["minlength"]; ok {
		if iv, ok := atoi(v); ok {
			rules.MinLength = &iv
		}
	}
	if v, ok := attrs["maxlength"]; ok {
		if iv, ok := atoi(v); ok {
			rules.MaxLength = &iv
		}
	}
	if v, ok := attrs["min"]; ok {
		if isBracedValue(v) {
			rules.MinExpr = unbrace(v)
		} else {
			rules.MinValue = v
		}
	}
	if v, ok := attrs["max"]; ok {
		if isBracedValue(v) {
			rules.MaxExpr = unbrace(v)
		} else {
			rules.MaxValue = v
		}
	}
	if v, ok := attrs["step"]; ok {
		rules.Step = v
	}
	if v, ok := attrs["title"]; ok {
		rules.Title = v
	}
	if v, ok := attrs["max-size"]; ok {
		if bytes, ok := parseMaxSize(v); ok {
			rules.MaxSize = &bytes
		}
	}
	if v, ok := attrs["accept"]; ok {
		for _, t := range strings.Split(v, ",") {
			rules.AllowedTypes = append(rules.AllowedTypes, strings.TrimSpace(t))
		}
	}
	return rules
}

func atoi(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// parseMaxSize parses a suffixed size literal such as "1.5mb" into bytes,
// e.g. max-size="1.5mb" -> 1572864.
func parseMaxSize(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	units := []struct {
		suffix string
		mult   float64
	}{
		{"kb", 1024}, {"mb", 1024 * 1024}, {"gb", 1024 * 1024 * 1024}, {"b", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numStr := strings.TrimSuffix(s, u.suffix)
			var f float64
			if _, err := fmt.Sscanf(numStr, "%g", &f); err != nil {
				return 0, false
			}
			return int64(f * u.mult), true
		}
	}
	return 0, false
}

// attachSchemaToSubmit attaches the harvested schema to the @submit
// EventAttribute classified earlier on this node.
func attachSchemaToSubmit(node *ir.TemplateNode, schema *ir.FormValidationSchema) {
	for i, sa := range node.SpecialAttributes {
		if ev, ok := sa.(ir.EventAttribute); ok && ev.EventType == "submit" {
			ev.ValidationSchema = schema
			node.SpecialAttributes[i] = ev
		}
	}
}
