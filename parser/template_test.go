package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywire/pywire/ir"
)

func TestParseTemplateStaticElement(t *testing.T) {
	nodes, diags := ParseTemplate("<div>hello</div>", 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	assert.Equal(t, "div", nodes[0].Tag)
	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, "hello", nodes[0].Children[0].TextContent)
}

func TestParseTemplateInterpolation(t *testing.T) {
	nodes, diags := ParseTemplate("<div>{count}</div>", 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 1)
	child := nodes[0].Children[0]
	require.Len(t, child.SpecialAttributes, 1)
	interp, ok := child.SpecialAttributes[0].(ir.InterpolationNode)
	require.True(t, ok)
	assert.Equal(t, "count", interp.Expression)
}

func TestParseTemplateEqualsBraceAttributeNormalizesToReactive(t *testing.T) {
	nodes, diags := ParseTemplate(`<div class={cls}>x</div>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].SpecialAttributes, 1)
	reactive, ok := nodes[0].SpecialAttributes[0].(ir.ReactiveAttribute)
	require.True(t, ok)
	assert.Equal(t, "class", reactive.Name)
	assert.Equal(t, "cls", reactive.Expr)
}

func TestParseTemplateIfAttribute(t *testing.T) {
	nodes, diags := ParseTemplate(`<div $if={show}>visible</div>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].SpecialAttributes, 1)
	ifa, ok := nodes[0].SpecialAttributes[0].(ir.IfAttribute)
	require.True(t, ok)
	assert.Equal(t, "show", ifa.Condition)
}

func TestParseTemplateBareSpreadAttribute(t *testing.T) {
	nodes, diags := ParseTemplate(`<div {**props}>x</div>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].SpecialAttributes, 1)
	spread, ok := nodes[0].SpecialAttributes[0].(ir.SpreadAttribute)
	require.True(t, ok)
	assert.Equal(t, "props", spread.Expr)
}

func TestParseTemplateLiftsEventArgReferencingForLoopVar(t *testing.T) {
	nodes, diags := ParseTemplate(`<ul><li $for={item in items}><button @click={delete(item.id)}>X</button></li></ul>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)

	li := nodes[0].Children[0]
	require.Equal(t, "li", li.Tag)
	button := li.Children[0]
	require.Equal(t, "button", button.Tag)

	var ev ir.EventAttribute
	found := false
	for _, sa := range button.SpecialAttributes {
		if e, ok := sa.(ir.EventAttribute); ok {
			ev = e
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, []string{"item.id"}, ev.Args)
	assert.Equal(t, "delete(arg0)", ev.InlineBody)
}

func TestParseTemplateHeadElementPreserved(t *testing.T) {
	nodes, diags := ParseTemplate(`<head><title>hi</title></head>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	assert.Equal(t, "head", nodes[0].Tag)
}

func TestParseTemplateScriptIsRawNotScanned(t *testing.T) {
	nodes, diags := ParseTemplate(`<script>if (x) { y() }</script>`, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].IsRaw)
	require.Len(t, nodes[0].Children, 1)
	assert.Contains(t, nodes[0].Children[0].TextContent, "if (x)")
}

func TestParseTemplateFormHarvestsValidationSchema(t *testing.T) {
	source := `<form @submit={save}><input name="email" type="email" required></form>`
	nodes, diags := ParseTemplate(source, 1)
	require.Empty(t, diags)
	require.Len(t, nodes, 1)

	var submitAttr *ir.EventAttribute
	for _, sa := range nodes[0].SpecialAttributes {
		if ev, ok := sa.(ir.EventAttribute); ok && ev.EventType == "submit" {
			submitAttr = &ev
		}
	}
	require.NotNil(t, submitAttr)
	require.NotNil(t, submitAttr.ValidationSchema)
	rules, ok := submitAttr.ValidationSchema.Fields["email"]
	require.True(t, ok)
	assert.True(t, rules.Required)
	assert.Equal(t, "email", rules.InputType)
}

func TestIsVoidElement(t *testing.T) {
	assert.True(t, IsVoidElement("br"))
	assert.True(t, IsVoidElement("IMG"))
	assert.False(t, IsVoidElement("div"))
}
