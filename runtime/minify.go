package runtime

import (
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier     *minify.M
	minifierOnce sync.Once
)

func getMinifier() *minify.M {
	minifierOnce.Do(func() {
		minifier = minify.New()
		minifier.AddFunc("text/html", html.Minify)
	})
	return minifier
}

// MinifyHTML collapses insignificant whitespace in a rendered page's HTML,
// used in production mode (config.Config.Minify) to shrink the initial
// render and every subsequent update frame.
func MinifyHTML(htmlContent string) string {
	if !strings.Contains(htmlContent, "<") {
		return normalizeWhitespace(htmlContent)
	}
	minified, err := getMinifier().String("text/html", htmlContent)
	if err != nil {
		return htmlContent
	}
	return minified
}

func normalizeWhitespace(text string) string {
	text = strings.TrimSpace(text)
	words := strings.Fields(text)
	return strings.Join(words, " ")
}
