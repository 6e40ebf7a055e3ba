package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exec(t *testing.T, node *RenderNode, env Env) string {
	t.Helper()
	var buf strings.Builder
	require.NoError(t, Exec(context.Background(), node, env, &buf))
	return buf.String()
}

func TestEscapeAttrEscapesAllSpecials(t *testing.T) {
	assert.Equal(t, "&amp;&lt;&gt;&quot;", EscapeAttr(`&<>"`))
}

func TestEscapeTextLeavesQuotesAlone(t *testing.T) {
	assert.Equal(t, `&amp;&lt;&gt;"`, EscapeText(`&<>"`))
}

func TestIsVoidElementCaseInsensitive(t *testing.T) {
	assert.True(t, IsVoidElement("br"))
	assert.True(t, IsVoidElement("INPUT"))
	assert.False(t, IsVoidElement("div"))
}

func TestRenderAttrValueBooleanTrue(t *testing.T) {
	v, emit := RenderAttrValue("disabled", true)
	assert.True(t, emit)
	assert.Equal(t, "", v)
}

func TestRenderAttrValueBooleanFalseOmitted(t *testing.T) {
	_, emit := RenderAttrValue("disabled", false)
	assert.False(t, emit)
}

func TestRenderAttrValueAriaAlwaysEmitsStringBool(t *testing.T) {
	v, emit := RenderAttrValue("aria-expanded", false)
	assert.True(t, emit)
	assert.Equal(t, "false", v)

	v, emit = RenderAttrValue("aria-expanded", true)
	assert.True(t, emit)
	assert.Equal(t, "true", v)
}

func TestRenderAttrValueNilOmitted(t *testing.T) {
	_, emit := RenderAttrValue("title", nil)
	assert.False(t, emit)
}

func TestRenderAttrValueStringPassesThrough(t *testing.T) {
	v, emit := RenderAttrValue("title", "hello")
	assert.True(t, emit)
	assert.Equal(t, "hello", v)
}

func TestExecStaticText(t *testing.T) {
	node := &RenderNode{Static: "hello"}
	assert.Equal(t, "hello", exec(t, node, Env{}))
}

func TestExecInterpolationEscapesMarkup(t *testing.T) {
	node := &RenderNode{InterpolationExpr: "value"}
	out := exec(t, node, Env{"value": "<script>"})
	assert.Equal(t, "&lt;script&gt;", out)
}

func TestExecIfFalseOmitsNode(t *testing.T) {
	node := &RenderNode{IfExpr: "show", Tag: "div", Children: []*RenderNode{{Static: "secret"}}}
	out := exec(t, node, Env{"show": false})
	assert.Equal(t, "", out)
}

func TestExecIfTrueRendersNode(t *testing.T) {
	node := &RenderNode{IfExpr: "show", Tag: "div", Children: []*RenderNode{{Static: "visible"}}}
	out := exec(t, node, Env{"show": true})
	assert.Equal(t, "<div>visible</div>", out)
}

func TestExecShowFalseHidesViaStyleNotOmission(t *testing.T) {
	node := &RenderNode{ShowExpr: "show", Tag: "div", Children: []*RenderNode{{Static: "x"}}}
	out := exec(t, node, Env{"show": false})
	assert.Contains(t, out, "display: none")
	assert.Contains(t, out, ">x<")
}

func TestExecVoidElementHasNoClosingTag(t *testing.T) {
	node := &RenderNode{Tag: "br"}
	assert.Equal(t, "<br>", exec(t, node, Env{}))
}

func TestExecForRepeatsChildrenPerItem(t *testing.T) {
	node := &RenderNode{
		Tag:     "li",
		ForExpr: "items",
		ForVars: []string{"item"},
		Children: []*RenderNode{
			{InterpolationExpr: "item"},
		},
	}
	out := exec(t, node, Env{"items": []interface{}{"a", "b", "c"}})
	assert.Equal(t, "<li>a</li><li>b</li><li>c</li>", out)
}

func TestExecForTemplateTagDoesNotRepeatWrapper(t *testing.T) {
	node := &RenderNode{
		ForExpr:       "items",
		ForVars:       []string{"item"},
		ForIsTemplate: true,
		Children: []*RenderNode{
			{Tag: "li", Children: []*RenderNode{{InterpolationExpr: "item"}}},
		},
	}
	out := exec(t, node, Env{"items": []interface{}{"x", "y"}})
	assert.Equal(t, "<li>x</li><li>y</li>", out)
}

func TestExecKeyExprEmitsIDAttribute(t *testing.T) {
	node := &RenderNode{Tag: "li", KeyExpr: "id"}
	out := exec(t, node, Env{"id": 42})
	assert.Contains(t, out, `id="42"`)
}

func TestExecReactiveAttribute(t *testing.T) {
	node := &RenderNode{
		Tag: "div",
		Attrs: []AttrNode{
			{Name: "class", IsReactive: true, Expr: "cls"},
		},
	}
	out := exec(t, node, Env{"cls": "active"})
	assert.Contains(t, out, `class="active"`)
}

func TestExecSpreadAttributeEmitsKeysInSortedOrder(t *testing.T) {
	node := &RenderNode{Tag: "div", SpreadExpr: "attrs"}
	env := Env{"attrs": map[string]interface{}{
		"title": "t",
		"id":    "x",
		"class": "c",
	}}
	out := exec(t, node, env)

	idIdx := strings.Index(out, "id=")
	classIdx := strings.Index(out, "class=")
	titleIdx := strings.Index(out, "title=")
	require.True(t, idIdx >= 0 && classIdx >= 0 && titleIdx >= 0)
	assert.True(t, classIdx < idIdx, "class should come before id alphabetically")
	assert.True(t, idIdx < titleIdx, "id should come before title alphabetically")
}

func TestExecSlotFallsBackToDefaultWithoutResolver(t *testing.T) {
	node := &RenderNode{SlotName: "content", SlotDefault: []*RenderNode{{Static: "fallback"}}}
	out := exec(t, node, Env{})
	assert.Equal(t, "fallback", out)
}

func TestExecSlotResolvesViaRegisteredSlot(t *testing.T) {
	base := NewBase()
	base.RegisterSlot("", "content", func() (string, error) { return "filled", nil })
	ctx := WithSlotResolver(context.Background(), base)

	node := &RenderNode{SlotName: "content", SlotDefault: []*RenderNode{{Static: "fallback"}}}
	var buf strings.Builder
	require.NoError(t, Exec(ctx, node, Env{}, &buf))
	assert.Equal(t, "filled", buf.String())
}
