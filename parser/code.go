package parser

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/pywire/pywire/ir"
)

// codeWrapperLines is the number of lines the "package page\n\n" wrapper
// prepends to a code section before it is handed to go/parser.
const codeWrapperLines = 2

// ParseCodeSection parses the code block as a Go source file's declaration
// list (C5), wrapping it in a synthetic "package page" so it parses
// standalone, then shifts every diagnostic position to reference filePath
// at firstLine (the original line the code section's first line occupies).
func ParseCodeSection(code string, filePath string, firstLine int) (*ast.File, *token.FileSet, []ir.Diagnostic) {
	if strings.TrimSpace(code) == "" {
		return nil, nil, nil
	}

	wrapped := "package page\n\n" + code
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, wrapped, parser.ParseComments|parser.AllErrors)
	if err != nil {
		return nil, nil, syntaxDiagnostics(err, filePath, firstLine)
	}
	return file, fset, nil
}

// syntaxDiagnostics converts a go/parser error (or error list) into
// structured Diagnostics with lines shifted to the original file.
func syntaxDiagnostics(err error, filePath string, firstLine int) []ir.Diagnostic {
	var diags []ir.Diagnostic
	if list, ok := err.(scanner.ErrorList); ok {
		for _, e := range list {
			diags = append(diags, ir.Diagnostic{
				Severity: ir.SeverityError,
				Message:  e.Msg,
				File:     filePath,
				Line:     firstLine + e.Pos.Line - codeWrapperLines - 1,
				Column:   e.Pos.Column,
			})
		}
		return diags
	}
	diags = append(diags, ir.Diagnostic{
		Severity: ir.SeverityError,
		Message:  err.Error(),
		File:     filePath,
		Line:     firstLine,
	})
	return diags
}
