package parser

import (
	"fmt"
	"strings"

	"github.com/pywire/pywire/ir"
)

// ParseDirectives consumes directive lines from the head of a source file
// (C3). Each directive occupies one logical line but may span several
// physical lines while bracket counters ({, [, () are non-zero. Parsing
// stops at the first non-directive, non-blank line, which the caller treats
// as the start of the template section.
//
// Returns the parsed directives, the byte offset where the template section
// begins, and any diagnostics.
func ParseDirectives(source string, filePath string) ([]ir.Directive, int, []ir.Diagnostic) {
	var directives []ir.Directive
	var diags []ir.Diagnostic

	lines := splitLinesKeepEnds(source)
	offset := 0
	line := 1
	seenTemplate := false

	i := 0
	for i < len(lines) {
		raw := lines[i]
		trimmed := strings.TrimRight(strings.TrimLeft(raw, " \t"), "\r\n")

		if strings.TrimSpace(trimmed) == "" {
			offset += len(raw)
			line++
			i++
			continue
		}

		if strings.TrimSpace(trimmed) == "---" {
			// Start of code section with no template: stop here, leave the
			// "---" for the caller (IR assembler) to find.
			break
		}

		if !strings.HasPrefix(strings.TrimSpace(trimmed), "!") {
			// First non-directive line: template begins here.
			if looksLikeCode(trimmed) && !seenTemplate {
				diags = append(diags, ir.Diagnostic{
					Severity: ir.SeverityError,
					Message:  "missing `---` separator before code section",
					File:     filePath,
					Line:     line,
				})
			}
			break
		}

		// Accumulate physical lines until brackets balance.
		text := trimmed
		consumedLines := 1
		for bracketBalance(text) != 0 && i+consumedLines < len(lines) {
			text += "\n" + strings.TrimRight(lines[i+consumedLines], "\r\n")
			consumedLines++
		}

		d, diag := parseOneDirective(text, filePath, line)
		if diag != nil {
			diags = append(diags, *diag)
		}
		if d != nil {
			directives = append(directives, d)
		}

		for k := 0; k < consumedLines; k++ {
			offset += len(lines[i+k])
			line++
		}
		i += consumedLines
	}

	_ = seenTemplate
	return directives, offset, diags
}

func splitLinesKeepEnds(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func bracketBalance(s string) int {
	bal := 0
	var quote rune
	for _, r := range s {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '{', '[', '(':
			bal++
		case '}', ']', ')':
			bal--
		}
	}
	return bal
}

// looksLikeCode reports whether a line, taken on its own, looks like Go code:
// it starts with "func " or contains a ":=" assignment. Used to tell authors
// they forgot the `---` separator.
func looksLikeCode(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "func ") {
		return true
	}
	if idx := strings.Index(trimmed, ":="); idx > 0 {
		return true
	}
	return false
}

func parseOneDirective(text, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "!")

	name, rest := splitDirectiveName(trimmed)
	rest = strings.TrimSpace(rest)

	switch name {
	case "path":
		return parsePathDirective(rest, filePath, line)
	case "no-spa":
		return ir.NoSpaDirective{}, nil
	case "layout":
		return ir.LayoutDirective{LayoutPath: unquote(rest)}, nil
	case "component":
		return parseComponentDirective(rest, filePath, line)
	case "props":
		return parsePropsDirective(rest, filePath, line)
	case "provide":
		return parseProvideDirective(rest, filePath, line)
	case "inject":
		return parseInjectDirective(rest, filePath, line)
	default:
		return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: fmt.Sprintf("unknown directive !%s", name), File: filePath, Line: line}
	}
}

func splitDirectiveName(s string) (string, string) {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '(' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func parsePathDirective(rest, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: "!path requires a pattern or mapping", File: filePath, Line: line}
	}
	if strings.HasPrefix(rest, "{") {
		mapping, order, err := parseStringMapping(rest)
		if err != nil {
			return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: err.Error(), File: filePath, Line: line}
		}
		return ir.PathDirective{Routes: mapping, RouteOrder: order, IsSimpleString: false}, nil
	}
	return ir.PathDirective{
		Routes:         map[string]string{"main": unquote(rest)},
		RouteOrder:     []string{"main"},
		IsSimpleString: true,
	}, nil
}

// parseStringMapping parses a minimal `{a: '/a', b: '/b'}` mapping literal.
func parseStringMapping(s string) (map[string]string, []string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, nil, fmt.Errorf("expected mapping literal")
	}
	body := s[1 : len(s)-1]
	mapping := map[string]string{}
	var order []string
	for _, entry := range splitTopLevelCommas(body) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.Index(entry, ":")
		if idx < 0 {
			return nil, nil, fmt.Errorf("malformed mapping entry %q", entry)
		}
		key := strings.Trim(strings.TrimSpace(entry[:idx]), "'\"")
		val := unquote(entry[idx+1:])
		mapping[key] = val
		order = append(order, key)
	}
	return mapping, order, nil
}

func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	var quote rune
	start := 0
	for i, r := range s {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseComponentDirective(rest, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	parts := splitTopLevelCommas(rest)
	if len(parts) == 0 {
		return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: "!component requires a path", File: filePath, Line: line}
	}
	path := unquote(parts[0])
	name := componentNameFromPath(path)
	if len(parts) > 1 {
		name = strings.TrimSpace(parts[1])
	}
	return ir.ComponentDirective{Path: path, ComponentName: name}, nil
}

func componentNameFromPath(path string) string {
	base := path
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".pyw")
	return base
}

func parsePropsDirective(rest, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	var args []ir.PropArg
	for _, part := range splitTopLevelCommas(rest) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		def := ""
		hasDefault := false
		if idx := strings.Index(part, "="); idx >= 0 {
			def = strings.TrimSpace(part[idx+1:])
			part = strings.TrimSpace(part[:idx])
			hasDefault = true
		}
		typ := ""
		name := part
		if idx := strings.Index(part, ":"); idx >= 0 {
			name = strings.TrimSpace(part[:idx])
			typ = strings.TrimSpace(part[idx+1:])
		}
		args = append(args, ir.PropArg{Name: name, Type: typ, Default: def, HasDefault: hasDefault})
	}
	_ = filePath
	_ = line
	return ir.PropsDirective{Args: args}, nil
}

func parseProvideDirective(rest, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "{")
	rest = strings.TrimSuffix(rest, "}")
	mapping := map[string]string{}
	var order []string
	for _, part := range splitTopLevelCommas(rest) {
		idx := strings.Index(part, ":")
		if idx < 0 {
			return nil, &ir.Diagnostic{Severity: ir.SeverityError, Message: "malformed !provide entry", File: filePath, Line: line}
		}
		key := strings.Trim(strings.TrimSpace(part[:idx]), "'\"")
		expr := strings.TrimSpace(part[idx+1:])
		mapping[key] = expr
		order = append(order, key)
	}
	return ir.ProvideDirective{Mapping: mapping, KeyOrder: order}, nil
}

func parseInjectDirective(rest, filePath string, line int) (ir.Directive, *ir.Diagnostic) {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "{")
	rest = strings.TrimSuffix(rest, "}")
	mapping := map[string]string{}
	var order []string
	for _, part := range splitTopLevelCommas(rest) {
		idx := strings.Index(part, ":")
		var local, key string
		if idx < 0 {
			local = strings.TrimSpace(part)
			key = local
		} else {
			local = strings.TrimSpace(part[:idx])
			key = strings.Trim(strings.TrimSpace(part[idx+1:]), "'\"")
		}
		if local == "" {
			continue
		}
		mapping[local] = key
		order = append(order, local)
	}
	return ir.InjectDirective{Mapping: mapping, NameOrder: order}, nil
}
