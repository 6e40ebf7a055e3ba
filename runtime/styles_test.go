package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyleCollectorAddAndRender(t *testing.T) {
	c := NewStyleCollector()
	assert.Equal(t, "", c.Render())

	c.Add("abc123", ".btn[data-ph-abc123] { color: red; }")
	rendered := c.Render()
	assert.Contains(t, rendered, "<style>")
	assert.Contains(t, rendered, ".btn[data-ph-abc123]")
	assert.Contains(t, rendered, "</style>")
}

func TestStyleCollectorDeduplicates(t *testing.T) {
	c := NewStyleCollector()
	c.Add("abc123", ".btn {}")
	c.Add("abc123", ".btn {}")
	c.Add("def456", ".btn {}")

	rendered := c.Render()
	assert.Equal(t, 2, countOccurrences(rendered, ".btn {}"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}

func TestRewriteSelectorsSingleSelector(t *testing.T) {
	out := RewriteSelectors(".btn { color: red; }", "abc123")
	assert.Equal(t, ".btn[data-ph-abc123] { color: red; }", out)
}

func TestRewriteSelectorsMultipleCommaSeparated(t *testing.T) {
	out := RewriteSelectors(".a, .b { color: red; }", "xyz")
	assert.Equal(t, ".a[data-ph-xyz], .b[data-ph-xyz] { color: red; }", out)
}

func TestRewriteSelectorsMultipleRules(t *testing.T) {
	out := RewriteSelectors(".a { color: red; } .b { color: blue; }", "xyz")
	assert.Contains(t, out, ".a[data-ph-xyz] { color: red; }")
	assert.Contains(t, out, ".b[data-ph-xyz] { color: blue; }")
}
