// Package registry implements route registration and matching (C9):
// compiling a page's !path patterns into anchored regular expressions and
// resolving an incoming request path to a page class, its route
// parameters, and the matched path variant name.
//
// Pattern compilation is ported from the original implementation's
// router (pyhtml/runtime/router.py): segments are tokenized one at a
// time, literal segments are regexp-escaped, and parameter segments come
// in two equivalent spellings (":name", ":name:type" and "{name}",
// "{name:type}") with "int" constraining to digits and every other type
// (including the default, unspecified type) matching anything but a
// slash.
package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pywire/pywire/runtime"
)

// Route is one compiled path pattern bound to a page factory.
type Route struct {
	Pattern     string
	Variant     string
	FilePath    string
	ParamNames  []string
	regex       *regexp.Regexp
	NewInstance func() runtime.PageClass
}

// Registry is the thread-safe route table the server consults on every
// request (grounded on the teacher's page.Registry locking discipline,
// adapted from a page-instance store with TTL cleanup to a route table —
// pywire's page instances live in the session package instead).
type Registry struct {
	mu     sync.RWMutex
	routes []*Route
	byFile map[string][]*Route
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byFile: map[string][]*Route{}}
}

// AddPage compiles and registers every route pattern belonging to one
// compiled page.
func (r *Registry) AddPage(filePath string, patterns map[string]string, factory func() runtime.PageClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var compiled []*Route
	for variant, pattern := range patterns {
		re, names, err := CompilePattern(pattern)
		if err != nil {
			return fmt.Errorf("compiling route %q (%s): %w", pattern, filePath, err)
		}
		compiled = append(compiled, &Route{
			Pattern: pattern, Variant: variant, FilePath: filePath,
			ParamNames: names, regex: re, NewInstance: factory,
		})
	}
	r.routes = append(r.routes, compiled...)
	r.byFile[filePath] = append(r.byFile[filePath], compiled...)
	return nil
}

// RemoveRoutesForFile drops every route previously registered from
// filePath (used by the loader when a source file is recompiled or
// deleted; spec §4.9 hot reload keeps routing consistent with the
// currently-loaded page set).
func (r *Registry) RemoveRoutesForFile(filePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stale := r.byFile[filePath]
	if len(stale) == 0 {
		return
	}
	delete(r.byFile, filePath)
	staleSet := make(map[*Route]bool, len(stale))
	for _, rt := range stale {
		staleSet[rt] = true
	}
	kept := r.routes[:0]
	for _, rt := range r.routes {
		if !staleSet[rt] {
			kept = append(kept, rt)
		}
	}
	r.routes = kept
}

// Match finds the first registered route whose pattern matches path, in
// registration order, returning the matched route, its extracted
// parameters, and ok=false if nothing matches (spec: RouteMissError at
// the call site, not here).
func (r *Registry) Match(path string) (route *Route, params map[string]string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		m := rt.regex.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params = make(map[string]string, len(rt.ParamNames))
		for i, name := range rt.ParamNames {
			params[name] = m[i+1]
		}
		return rt, params, true
	}
	return nil, nil, false
}

// CompilePattern compiles one !path pattern into an anchored regular
// expression plus the ordered list of parameter names it captures.
func CompilePattern(pattern string) (*regexp.Regexp, []string, error) {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	var names []string
	var sb strings.Builder
	sb.WriteString("^")
	for _, seg := range segments {
		sb.WriteString("/")
		if seg == "" {
			continue
		}
		name, typ, isParam := parseSegment(seg)
		if !isParam {
			sb.WriteString(regexp.QuoteMeta(seg))
			continue
		}
		names = append(names, name)
		switch typ {
		case "int":
			sb.WriteString(`(\d+)`)
		default:
			sb.WriteString(`([^/]+)`)
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, nil, err
	}
	return re, names, nil
}

// parseSegment recognizes ":name", ":name:type", "{name}", "{name:type}"
// parameter segments; any other segment is literal.
func parseSegment(seg string) (name, typ string, isParam bool) {
	switch {
	case strings.HasPrefix(seg, ":"):
		body := seg[1:]
		parts := strings.SplitN(body, ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
		return body, "", true
	case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
		body := seg[1 : len(seg)-1]
		parts := strings.SplitN(body, ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
		return body, "", true
	default:
		return "", "", false
	}
}
