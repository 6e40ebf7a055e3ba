package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HandlerFunc is a bound event handler: it receives the page instance's
// environment-style keyword payload (already normalized from dataset keys,
// spec §4.7) and may mutate the page before returning.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) error

// RenderNode is the compiled render plan for one TemplateNode (C7's
// "render procedure", represented as data rather than emitted source, per
// the closures-at-compile-time strategy in spec.md §9).
type RenderNode struct {
	// Static text/markup to emit verbatim.
	Static string

	// Tag, when non-empty, marks this node as an element.
	Tag        string
	Attrs      []AttrNode
	SpreadExpr string
	Children   []*RenderNode

	// InterpolationExpr renders an evaluated expression's string form.
	InterpolationExpr string

	// IfExpr/ShowExpr gate or hide this node.
	IfExpr   string
	ShowExpr string

	// ForExpr/ForVars iterate Children once per element of ForExpr.
	ForExpr       string
	ForVars       []string
	ForIsTemplate bool
	KeyExpr       string

	// ScopeID is non-empty for an element inside (or carrying) a <style
	// scoped> block; the renderer adds data-ph-<ScopeID>.
	ScopeID string

	// Component, when non-nil, delegates rendering to a child PageClass.
	Component *ComponentRef

	// SlotName marks this node as a <slot name="..."> hole.
	SlotName    string
	SlotDefault []*RenderNode
}

// AttrNode is one attribute in a render plan.
type AttrNode struct {
	Name       string
	Literal    string
	IsReactive bool
	Expr       string
	IsEvent    bool
	Event      EventBinding
}

// EventBinding is the compiled form of an ir.EventAttribute.
type EventBinding struct {
	EventType   string
	HandlerName string
	Modifiers   []string
	ArgExprs    []string // evaluated per-render into data-arg-N
}

// ComponentRef describes a child-component instantiation site.
type ComponentRef struct {
	Factory   func() PageClass
	PropExprs map[string]string
	SlotNodes map[string][]*RenderNode // slot name -> filler nodes
}

// PageClass is the contract every generated page obeys (C10).
type PageClass interface {
	// Init runs on_load and any other construction-time hooks. Called once
	// per instance before the first Render.
	Init(ctx context.Context) error

	// Render produces the page's HTML. init=true on the first render of a
	// fresh instance (runs @mount-annotated methods); subsequent live
	// re-renders pass init=false.
	Render(ctx context.Context, init bool) (string, error)

	// HandleEvent invokes the named handler with a normalized payload and
	// returns the re-rendered HTML.
	HandleEvent(ctx context.Context, name string, payload map[string]interface{}) (string, error)

	// State exposes the instance's field storage, used by hot-reload
	// migration and by dev tooling.
	State() *State

	// Routes returns the page's __routes__ mapping (nil if the page uses
	// path-based routing instead of an explicit !path directive).
	Routes() map[string]string

	// FilePath returns the absolute source file this class was compiled
	// from.
	FilePath() string

	// Dependencies returns every layout/component/import file this class's
	// generation depended on, for the loader's invalidation graph.
	Dependencies() []string
}

// Base is the concrete struct every generated page embeds, implementing
// slot storage, style collection, context propagation, and event dispatch
// (spec §4.10).
type Base struct {
	state    *State
	slots    map[string]map[string]func() (string, error) // layoutID -> name -> renderer
	styles   *StyleCollector
	ctx      map[string]interface{}
	mounted  bool
	handlers map[string]HandlerFunc
	onLoad   func(ctx context.Context) error
	mount    func(ctx context.Context) error
}

// NewBase constructs an empty Base.
func NewBase() *Base {
	return &Base{
		state:    NewState(),
		slots:    map[string]map[string]func() (string, error){},
		styles:   NewStyleCollector(),
		ctx:      map[string]interface{}{},
		handlers: map[string]HandlerFunc{},
	}
}

// State returns the instance's field storage.
func (b *Base) State() *State { return b.state }

// Styles returns the shared style collector (passed by reference into
// child components, per spec §5 Shared resources).
func (b *Base) Styles() *StyleCollector { return b.styles }

// Context returns the provide/inject map (spec §4.10 last bullet).
func (b *Base) Context() map[string]interface{} { return b.ctx }

// SetOnLoad registers the on_load lifecycle hook.
func (b *Base) SetOnLoad(fn func(ctx context.Context) error) { b.onLoad = fn }

// SetMount registers the @mount-annotated method, run only on init=true.
func (b *Base) SetMount(fn func(ctx context.Context) error) { b.mount = fn }

// RegisterHandler adds a named handler to the dispatch table.
func (b *Base) RegisterHandler(name string, fn HandlerFunc) { b.handlers[name] = fn }

// Init runs on_load before the first render.
func (b *Base) Init(ctx context.Context) error {
	if b.onLoad != nil {
		return b.onLoad(ctx)
	}
	return nil
}

// RunMount runs the registered mount hook, if any, and is idempotent: it
// fires at most once per instance regardless of how many init=true renders
// occur (a fresh instance should only ever see one).
func (b *Base) RunMount(ctx context.Context) error {
	if b.mounted || b.mount == nil {
		b.mounted = true
		return nil
	}
	b.mounted = true
	return b.mount(ctx)
}

// SlotBase returns b itself, letting generic code that only holds a
// PageClass reach the concrete Base for slot-resolver propagation (e.g.
// Exec threading a child component's Base through context before rendering
// its subtree).
func (b *Base) SlotBase() *Base { return b }

// RegisterSlot stores a renderer under a layout id and slot name (spec
// §4.10).
func (b *Base) RegisterSlot(layoutID, name string, renderer func() (string, error)) {
	if b.slots[layoutID] == nil {
		b.slots[layoutID] = map[string]func() (string, error){}
	}
	b.slots[layoutID][name] = renderer
}

// RenderSlot resolves a slot's output, falling back to defaultRenderer if
// nothing was registered. With append=true (used for "$head"), every
// renderer registered for that name across all layout ids is concatenated.
func (b *Base) RenderSlot(name, layoutID string, defaultRenderer func() (string, error), appendAll bool) (string, error) {
	if appendAll {
		var sb strings.Builder
		// Deterministic order: sort layout ids.
		ids := make([]string, 0, len(b.slots))
		for id := range b.slots {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if r, ok := b.slots[id][name]; ok {
				out, err := r()
				if err != nil {
					return "", err
				}
				sb.WriteString(out)
			}
		}
		return sb.String(), nil
	}
	if layout, ok := b.slots[layoutID]; ok {
		if r, ok := layout[name]; ok {
			return r()
		}
	}
	if defaultRenderer != nil {
		return defaultRenderer()
	}
	return "", nil
}

// titleCaser title-cases a single kebab segment for dataset-key
// normalization ("field" -> "Field"), Unicode-aware rather than the
// byte-oriented strings.Title.
var titleCaser = cases.Title(language.Und, cases.NoLower)

// normalizeDatasetKey converts a dataset key collected from the DOM into
// the handler-argument name. Spec §4.7's restricted rule, "arg-N" ->
// "argN", is handled first since it never title-cases the numeric
// suffix; any other hyphenated key falls back to general kebab-to-camel
// conversion ("my-field" -> "myField"), matching how the browser's
// dataset API itself exposes "data-my-field".
func normalizeDatasetKey(key string) string {
	if strings.HasPrefix(key, "arg-") {
		return "arg" + key[len("arg-"):]
	}
	if !strings.Contains(key, "-") {
		return key
	}
	parts := strings.Split(key, "-")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(titleCaser.String(p))
	}
	return b.String()
}

// HandleEvent implements the event-dispatch method (spec §4.7): normalizes
// payload keys and runs the named handler. It does not re-render; callers
// typically follow it with their generated Render(ctx, false) call.
func (b *Base) HandleEvent(ctx context.Context, name string, rawPayload map[string]interface{}) error {
	handler, ok := b.handlers[name]
	if !ok {
		return fmt.Errorf("no handler registered for %q", name)
	}
	payload := make(map[string]interface{}, len(rawPayload))
	for k, v := range rawPayload {
		payload[normalizeDatasetKey(k)] = v
	}
	return handler(ctx, payload)
}

type slotResolverKey struct{}

// WithSlotResolver attaches base as the active slot resolver for the
// render currently in progress, so a <slot> node deep in base's own
// template can look up content registered by whatever instance is
// rendering it as a layout (spec §4.10).
func WithSlotResolver(ctx context.Context, base *Base) context.Context {
	return context.WithValue(ctx, slotResolverKey{}, base)
}

// slotResolverFrom returns the active slot resolver, if any.
func slotResolverFrom(ctx context.Context) *Base {
	b, _ := ctx.Value(slotResolverKey{}).(*Base)
	return b
}

// FieldValue reads a named field off an arbitrary struct via reflection,
// used by hot-reload migration to copy non-reserved fields between page
// generations without each generated page needing bespoke copy code.
func FieldValue(v interface{}, name string) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return nil, false
	}
	return f.Interface(), true
}
