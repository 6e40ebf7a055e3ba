package runtime

import (
	"strings"
	"sync"
)

// scopedRule is one rewritten <style scoped> selector/body pair.
type scopedRule struct {
	scopeID string
	css     string
}

// StyleCollector accumulates scoped CSS across a request's component tree.
// A request's root page owns one collector and passes it by reference into
// every child component's render (spec §5 Shared resources); it is never
// shared across requests.
type StyleCollector struct {
	mu    sync.Mutex
	seen  map[string]bool
	rules []scopedRule
}

// NewStyleCollector returns an empty collector.
func NewStyleCollector() *StyleCollector {
	return &StyleCollector{seen: map[string]bool{}}
}

// Add registers a scoped stylesheet, deduplicating by (scopeID, css).
func (c *StyleCollector) Add(scopeID, css string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := scopeID + "\x00" + css
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.rules = append(c.rules, scopedRule{scopeID: scopeID, css: css})
}

// Render returns a single <style> block containing every collected rule, in
// registration order, or "" if nothing was collected.
func (c *StyleCollector) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rules) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<style>")
	for _, r := range c.rules {
		sb.WriteString(r.css)
	}
	sb.WriteString("</style>")
	return sb.String()
}

// RewriteSelectors rewrites every top-level selector in css so it targets
// elements tagged with data-ph-<scopeID>, per spec §4.7's <style scoped>
// handling. Selectors are split on top-level commas; each gets the
// attribute selector appended to its last simple-selector segment.
func RewriteSelectors(css, scopeID string) string {
	var out strings.Builder
	depth := 0
	start := 0
	flushSelectorList := func(selectors string, body string) {
		rest := strings.TrimLeft(selectors, " \t\r\n")
		trimmed := strings.TrimRight(rest, " \t\r\n")
		out.WriteString(selectors[:len(selectors)-len(rest)])
		parts := strings.Split(trimmed, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p) + "[data-ph-" + scopeID + "]"
		}
		out.WriteString(strings.Join(parts, ", "))
		out.WriteString(rest[len(trimmed):])
		out.WriteString(body)
	}
	i := 0
	for i < len(css) {
		r := css[i]
		switch r {
		case '{':
			if depth == 0 {
				selector := css[start:i]
				end := strings.IndexByte(css[i:], '}')
				if end < 0 {
					out.WriteString(css[start:])
					return out.String()
				}
				body := css[i : i+end+1]
				flushSelectorList(selector, body)
				i = i + end + 1
				start = i
				continue
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		i++
	}
	out.WriteString(css[start:])
	return out.String()
}
