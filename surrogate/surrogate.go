// Package surrogate provides the compile-error stand-in page (C12):
// when a source file fails to parse or lower, a request for one of its
// routes is served this page instead of a raw 500, with a full
// file/line/context rendering in development mode, ported from the
// original implementation's CompileErrorPage (runtime/compile_error_page.py),
// and a generic status page in production.
package surrogate

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"strings"

	"github.com/pywire/pywire/ir"
	"github.com/pywire/pywire/runtime"
)

// Page stands in for a page class that failed to compile, satisfying
// runtime.PageClass so the loader and registry can treat it like any
// other route target.
type Page struct {
	*runtime.Base
	filePath    string
	diagnostics []ir.Diagnostic
	dev         bool
}

// New returns a Page for filePath's compile failure. dev controls whether
// Render emits the detailed development error page or a generic one.
func New(filePath string, diagnostics []ir.Diagnostic, dev bool) *Page {
	return &Page{
		Base:        runtime.NewBase(),
		filePath:    filePath,
		diagnostics: diagnostics,
		dev:         dev,
	}
}

func (p *Page) Init(ctx context.Context) error { return nil }

// Render produces the error page HTML (always init-independent: the
// surrogate has no live state to migrate).
func (p *Page) Render(ctx context.Context, init bool) (string, error) {
	if !p.dev {
		return genericErrorHTML, nil
	}
	return p.devErrorHTML(), nil
}

// HandleEvent is a no-op: the surrogate page never wires any handlers.
func (p *Page) HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error) {
	return p.Render(ctx, false)
}

func (p *Page) Routes() map[string]string { return nil }
func (p *Page) FilePath() string          { return p.filePath }
func (p *Page) Dependencies() []string    { return nil }

// ServeHTTP lets a surrogate double as a direct http.Handler for routes
// the registry never managed to register at all (e.g. the file failed to
// compile before its !path directive could even be read).
func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	html, err := p.Render(r.Context(), true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !p.dev {
		w.WriteHeader(http.StatusInternalServerError)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

const genericErrorHTML = `<!DOCTYPE html>
<html><head><title>500 Internal Server Error</title></head>
<body><h1>Something went wrong</h1><p>An unexpected error occurred while rendering this page.</p></body>
</html>`

func (p *Page) devErrorHTML() string {
	var b strings.Builder
	title := "Compile Error"
	b.WriteString("<!DOCTYPE html><html><head><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</title><style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#1a1a1a;color:#e0e0e0;margin:0;padding:20px}
h1{color:#ff6b6b;font-size:24px;margin-bottom:5px}
h3{color:#aaa;font-size:16px;margin-top:30px;margin-bottom:10px}
.container{max-width:1000px;margin:0 auto}
.error-location{background:#2d2d2d;border-radius:8px;padding:15px;margin-bottom:20px;border-left:4px solid #ff6b6b}
.file-info{color:#ffd43b;font-family:monospace;font-size:14px;margin-bottom:10px}
.exc-msg{font-size:16px;color:#fff;margin-bottom:20px;white-space:pre-wrap;font-family:monospace;line-height:1.6}
.code-context{padding:10px 0;background:#222;font-family:"Fira Code",monospace;font-size:13px;overflow-x:auto;border-radius:4px}
.line{padding:2px 15px;color:#888;display:flex}
.line-current{padding:2px 15px;background:#3c1e1e;color:#ffcccc;display:flex;border-left:3px solid #ff6b6b}
.line-num{width:40px;text-align:right;margin-right:15px;opacity:.5;user-select:none}
.code{white-space:pre}
</style></head><body><div class="container"><h1>`)
	b.WriteString(html.EscapeString(title))
	b.WriteString("</h1>")

	for _, d := range p.diagnostics {
		b.WriteString(`<div class="error-location"><div class="file-info">`)
		b.WriteString(html.EscapeString(p.filePath))
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d", d.Line)
		}
		b.WriteString(`</div><div class="exc-msg">`)
		b.WriteString(html.EscapeString(d.Message))
		b.WriteString("</div>")

		if ctx := sourceContext(p.filePath, d.Line); ctx != "" {
			b.WriteString(`<div class="code-context">`)
			b.WriteString(ctx)
			b.WriteString("</div>")
		}
		b.WriteString("</div>")
	}

	if len(p.diagnostics) == 0 {
		b.WriteString(`<div class="error-location"><div class="exc-msg">compilation failed with no diagnostics recorded</div></div>`)
	}

	b.WriteString(`<script src="/_pywire/static/pywire.dev.min.js"></script></body></html>`)
	return b.String()
}

// sourceContext reads +/-5 lines of filePath around line and renders them
// as highlighted HTML, matching compile_error_page.py's context window.
func sourceContext(filePath string, line int) string {
	if line <= 0 {
		return ""
	}
	f, err := os.Open(filePath)
	if err != nil {
		return ""
	}
	defer f.Close()

	start, end := line-5, line+5
	if start < 1 {
		start = 1
	}

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		if n < start {
			continue
		}
		if n > end {
			break
		}
		cls := "line"
		if n == line {
			cls = "line-current"
		}
		fmt.Fprintf(&b, `<div class="%s"><span class="line-num">%d</span> <span class="code">%s</span></div>`,
			cls, n, html.EscapeString(scanner.Text()))
	}
	return b.String()
}

// FromError builds a Page from an error that may carry structured
// diagnostics (the loader's compileDiagnosticError shape), falling back to
// a single synthetic diagnostic for any other error type.
func FromError(filePath string, err error, dev bool) *Page {
	if withDiags, ok := err.(interface{ Diagnostics() []ir.Diagnostic }); ok {
		return New(filePath, withDiags.Diagnostics(), dev)
	}
	return New(filePath, []ir.Diagnostic{{Severity: ir.SeverityError, Message: err.Error()}}, dev)
}
