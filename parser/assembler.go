package parser

import (
	"strings"

	"github.com/pywire/pywire/ir"
)

// codeSeparator is the exact line that opens and closes the code block.
const codeSeparator = "---"

// ParsePage runs the full C3+C4+C5 pipeline via C6 and produces a
// ParsedPage IR plus diagnostics (C6).
//
// Source file grammar (per spec §6): directives, optionally followed by
// template content, optionally followed by a code block delimited by lines
// containing exactly "---" (open and close).
func ParsePage(source string, filePath string) *ir.ParsedPage {
	page := &ir.ParsedPage{FilePath: filePath}

	directives, afterDirectivesOffset, dDiags := ParseDirectives(source, filePath)
	page.Directives = directives
	page.Diagnostics = append(page.Diagnostics, dDiags...)

	rest := source[afterDirectivesOffset:]
	lineOffset := countLines(source[:afterDirectivesOffset])

	templateSrc, codeSrc, codeFirstLine, diag := splitTemplateAndCode(rest, lineOffset+1)
	if diag != nil {
		page.Diagnostics = append(page.Diagnostics, *diag)
	}

	if strings.TrimSpace(templateSrc) != "" {
		nodes, tDiags := ParseTemplate(templateSrc, lineOffset+1)
		page.Template = nodes
		page.Diagnostics = append(page.Diagnostics, tDiags...)
	}

	page.CodeSectionText = codeSrc
	if strings.TrimSpace(codeSrc) != "" {
		astFile, fset, cDiags := ParseCodeSection(codeSrc, filePath, codeFirstLine)
		page.CodeSectionAST = astFile
		if fset != nil {
			page.CodeSectionFset = fset
		}
		page.Diagnostics = append(page.Diagnostics, cDiags...)
	}

	return page
}

func countLines(s string) int {
	return strings.Count(s, "\n")
}

// splitTemplateAndCode finds the opening and closing "---" lines and splits
// the remainder of the source into template text and code text. If no
// "---" is found, everything is template. A line consisting only of dashes
// that is not exactly "---" is a diagnostic.
func splitTemplateAndCode(source string, baseLine int) (templateSrc, codeSrc string, codeFirstLine int, diag *ir.Diagnostic) {
	lines := splitLinesKeepEnds(source)

	openIdx := -1
	for i, l := range lines {
		trimmed := strings.TrimSpace(strings.TrimRight(l, "\r\n"))
		if trimmed == codeSeparator {
			openIdx = i
			break
		}
		if isDashesOnly(trimmed) && trimmed != codeSeparator {
			diag = &ir.Diagnostic{
				Severity: ir.SeverityError,
				Message:  "expected exactly '---' as the code-block separator",
				Line:     baseLine + i,
			}
		}
	}
	if openIdx < 0 {
		return source, "", 0, diag
	}

	closeIdx := -1
	for i := openIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(strings.TrimRight(lines[i], "\r\n"))
		if trimmed == codeSeparator {
			closeIdx = i
			break
		}
	}

	var tmplBuilder, codeBuilder strings.Builder
	for i := 0; i < openIdx; i++ {
		tmplBuilder.WriteString(lines[i])
	}
	end := len(lines)
	if closeIdx >= 0 {
		end = closeIdx
	}
	for i := openIdx + 1; i < end; i++ {
		codeBuilder.WriteString(lines[i])
	}
	if closeIdx >= 0 {
		for i := closeIdx + 1; i < len(lines); i++ {
			tmplBuilder.WriteString(lines[i])
		}
	}

	return tmplBuilder.String(), codeBuilder.String(), baseLine + openIdx + 1, diag
}

func isDashesOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '-' {
			return false
		}
	}
	return true
}
