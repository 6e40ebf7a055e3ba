// Package loader implements compile-on-demand page loading (C8): reading a
// source file, parsing it, resolving its layout and component imports, and
// handing the result to codegen, with a cache keyed by absolute path and a
// reverse-dependency graph so editing one file invalidates every page that
// transitively depends on it.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pywire/pywire/codegen"
	"github.com/pywire/pywire/ir"
	"github.com/pywire/pywire/parser"
	"github.com/pywire/pywire/registry"
	"github.com/pywire/pywire/runtime"
)

// layoutFileName is the implicit layout file looked for in a page's
// directory and its ancestors, matching the original implementation's
// directory-based layout discovery.
const layoutFileName = "__layout__.pyw"

// compiled is one cache entry: the page's factory plus the full set of
// files it depends on (its own parse plus every resolved layout/component).
type compiled struct {
	factory      func() runtime.PageClass
	dependencies []string
	routes       map[string]string
}

// Loader owns the compiled-page cache, the reverse-dependency graph, and
// the route registry kept in sync with whatever is currently loaded.
type Loader struct {
	mu         sync.Mutex
	root       string
	gen        *codegen.Generator
	reg        *registry.Registry
	cache      map[string]*compiled
	dependents map[string]map[string]bool // file -> set of files that depend on it
}

// New returns a Loader rooted at root (the project's pages directory),
// publishing routes into reg as pages compile.
func New(root string, reg *registry.Registry) *Loader {
	return &Loader{
		root:       root,
		gen:        codegen.NewGenerator(),
		reg:        reg,
		cache:      map[string]*compiled{},
		dependents: map[string]map[string]bool{},
	}
}

// Load compiles filePath if not already cached, registers its routes, and
// returns a factory for fresh page instances.
func (l *Loader) Load(filePath string) (func() runtime.PageClass, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if c, ok := l.cache[abs]; ok {
		l.mu.Unlock()
		return c.factory, nil
	}
	l.mu.Unlock()

	return l.compile(abs, map[string]bool{})
}

// compile parses and lowers abs, recursively resolving its layout and
// component dependencies. visiting guards against import cycles.
func (l *Loader) compile(abs string, visiting map[string]bool) (func() runtime.PageClass, error) {
	if visiting[abs] {
		return nil, fmt.Errorf("import cycle detected at %s", abs)
	}
	visiting[abs] = true

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}

	page := parser.ParsePage(string(src), abs)
	if page.HasErrors() {
		return nil, &compileDiagnosticError{file: abs, diagnostics: page.Diagnostics}
	}

	deps := []string{}

	components := map[string]codegen.ComponentFactory{}
	for _, cd := range page.Components() {
		compPath := resolveImportPath(abs, cd.Path)
		factory, err := l.compile(compPath, visiting)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cd.ComponentName, err)
		}
		components[cd.ComponentName] = codegen.ComponentFactory(factory)
		deps = append(deps, compPath)
		l.addDependent(compPath, abs)
	}

	var layoutFactory codegen.LayoutFactory
	if ld, ok := page.LayoutDirective(); ok {
		layoutPath := resolveImportPath(abs, ld.LayoutPath)
		factory, err := l.compile(layoutPath, visiting)
		if err != nil {
			return nil, fmt.Errorf("layout %q: %w", ld.LayoutPath, err)
		}
		layoutFactory = codegen.LayoutFactory(factory)
		deps = append(deps, layoutPath)
		l.addDependent(layoutPath, abs)
	} else if layoutPath, found := l.findImplicitLayout(filepath.Dir(abs)); found && layoutPath != abs {
		factory, err := l.compile(layoutPath, visiting)
		if err != nil {
			return nil, fmt.Errorf("implicit layout %q: %w", layoutPath, err)
		}
		layoutFactory = codegen.LayoutFactory(factory)
		deps = append(deps, layoutPath)
		l.addDependent(layoutPath, abs)
	}

	factory, err := l.gen.Compile(page, codegen.Options{
		Components:   components,
		Layout:       layoutFactory,
		Dependencies: deps,
	})
	if err != nil {
		return nil, err
	}

	routes := routesOf(page)

	l.mu.Lock()
	l.cache[abs] = &compiled{factory: factory, dependencies: deps, routes: routes}
	l.mu.Unlock()

	if len(routes) > 0 && l.reg != nil {
		if err := l.reg.AddPage(abs, routes, factory); err != nil {
			return nil, err
		}
	}

	return factory, nil
}

func routesOf(page *ir.ParsedPage) map[string]string {
	routes := map[string]string{}
	for _, pd := range page.PathDirectives() {
		for variant, pattern := range pd.Routes {
			routes[variant] = pattern
		}
	}
	return routes
}

// findImplicitLayout walks dir and its ancestors (stopping at l.root)
// looking for a __layout__ file.
func (l *Loader) findImplicitLayout(dir string) (string, bool) {
	root := l.root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	for {
		candidate := filepath.Join(dir, layoutFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		if dir == root || dir == string(filepath.Separator) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func resolveImportPath(fromFile, importPath string) string {
	if filepath.IsAbs(importPath) {
		return importPath
	}
	return filepath.Join(filepath.Dir(fromFile), importPath)
}

func (l *Loader) addDependent(dep, dependent string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dependents[dep] == nil {
		l.dependents[dep] = map[string]bool{}
	}
	l.dependents[dep][dependent] = true
}

// Invalidate evicts path and every file that transitively depends on it
// (BFS over the reverse-dependency graph), returning the full set of
// evicted absolute paths so the caller (the watcher, spec §4.9) can decide
// which live sessions need a hot-reload broadcast.
func (l *Loader) Invalidate(path string) []string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	l.mu.Lock()
	queue := []string{abs}
	seen := map[string]bool{}
	var evicted []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		evicted = append(evicted, cur)
		delete(l.cache, cur)
		for dependent := range l.dependents[cur] {
			queue = append(queue, dependent)
		}
	}
	l.mu.Unlock()

	if l.reg != nil {
		for _, p := range evicted {
			l.reg.RemoveRoutesForFile(p)
		}
	}
	return evicted
}

// compileDiagnosticError surfaces unresolved parse/compile diagnostics to
// callers that need structured access (e.g. the surrogate package's
// dev-mode error page).
type compileDiagnosticError struct {
	file        string
	diagnostics []ir.Diagnostic
}

func (e *compileDiagnosticError) Error() string {
	if len(e.diagnostics) == 0 {
		return fmt.Sprintf("%s: compile failed", e.file)
	}
	d := e.diagnostics[0]
	return fmt.Sprintf("%s:%d: %s", e.file, d.Line, d.Message)
}

// Diagnostics returns every diagnostic produced while compiling the
// failing file.
func (e *compileDiagnosticError) Diagnostics() []ir.Diagnostic { return e.diagnostics }
