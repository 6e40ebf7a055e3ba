package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywire/pywire/parser"
)

func compilePage(t *testing.T, source string) func() interface {
	Init(ctx context.Context) error
	Render(ctx context.Context, init bool) (string, error)
	HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error)
} {
	t.Helper()
	page := parser.ParsePage(source, "/pages/test.pyw")
	require.False(t, page.HasErrors(), "diagnostics: %+v", page.Diagnostics)

	g := NewGenerator()
	factory, err := g.Compile(page, Options{})
	require.NoError(t, err)

	return func() interface {
		Init(ctx context.Context) error
		Render(ctx context.Context, init bool) (string, error)
		HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error)
	} {
		return factory()
	}
}

func TestCompileStaticTemplate(t *testing.T) {
	factory := compilePage(t, "!path \"/\"\n<div>hello world</div>\n")
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, "hello world")
}

func TestCompileInterpolatesStateField(t *testing.T) {
	source := "!path \"/\"\n<div>{count}</div>\n---\nvar count = 5\n---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, "5")
}

func TestCompileHandlerMutatesStateAndRerenders(t *testing.T) {
	source := "!path \"/\"\n" +
		"<div>{count}</div>\n" +
		"<button @click={increment}>+</button>\n" +
		"---\n" +
		"var count = 0\n\n" +
		"func increment() {\n" +
		"\tcount++\n" +
		"}\n" +
		"---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, ">0<")

	html, err = page.HandleEvent(context.Background(), "increment", nil)
	require.NoError(t, err)
	assert.Contains(t, html, ">1<")
}

func TestCompileIfAttributeGatesRender(t *testing.T) {
	source := "!path \"/\"\n" +
		"<div $if={show}>visible</div>\n" +
		"---\n" +
		"var show = false\n" +
		"---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.NotContains(t, html, "visible")
}

func TestCompileForAttributeRepeatsChildren(t *testing.T) {
	source := "!path \"/\"\n" +
		"<ul><li $for={item in items}>{item}</li></ul>\n" +
		"---\n" +
		"var items = []interface{}{\"a\", \"b\", \"c\"}\n" +
		"---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, ">a<")
	assert.Contains(t, html, ">b<")
	assert.Contains(t, html, ">c<")
}

func TestCompileOnLoadRunsBeforeFirstRender(t *testing.T) {
	source := "!path \"/\"\n" +
		"<div>{greeting}</div>\n" +
		"---\n" +
		"var greeting = \"\"\n\n" +
		"func on_load() {\n" +
		"\tgreeting = \"hi\"\n" +
		"}\n" +
		"---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, "hi")
}

func TestCompileLiftsForLoopEventArgIntoDataAttrAndDispatch(t *testing.T) {
	source := "!path \"/\"\n" +
		"<ul><li $for={item in items}><button @click={remove(item.id)}>X</button></li></ul>\n" +
		"---\n" +
		"var items = []interface{}{map[string]interface{}{\"id\": 7}}\n" +
		"var removed = 0\n\n" +
		"func remove(id int) {\n" +
		"\tremoved = id\n" +
		"}\n" +
		"---\n"
	factory := compilePage(t, source)
	page := factory()
	require.NoError(t, page.Init(context.Background()))

	html, err := page.Render(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, `data-on-click="_handler_0"`)
	assert.Contains(t, html, `data-arg-0="7"`)

	_, err = page.HandleEvent(context.Background(), "_handler_0", map[string]interface{}{"arg0": float64(7)})
	require.NoError(t, err)
}

func TestCompileRejectsPageWithDiagnostics(t *testing.T) {
	page := parser.ParsePage("!path\n<div>oops</div>\n", "/pages/bad.pyw")
	require.True(t, page.HasErrors())

	g := NewGenerator()
	_, err := g.Compile(page, Options{})
	assert.Error(t, err)
}
