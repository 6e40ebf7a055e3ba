package ir

// Directive is the tagged union of top-of-file declarations (C3).
type Directive interface {
	isDirective()
}

// PathDirective declares one or more routes for the page.
//
// A single-string form (`!path '/x'`) yields one entry named "main"; a
// mapping form yields one route per key.
type PathDirective struct {
	Routes         map[string]string // variant name -> pattern
	RouteOrder     []string          // deterministic iteration order
	IsSimpleString bool
}

func (PathDirective) isDirective() {}

// NoSpaDirective disables client-side SPA navigation for this page.
type NoSpaDirective struct{}

func (NoSpaDirective) isDirective() {}

// LayoutDirective names an explicit layout file, overriding implicit
// __layout__ discovery.
type LayoutDirective struct{ LayoutPath string }

func (LayoutDirective) isDirective() {}

// ComponentDirective imports a child component under a local name.
type ComponentDirective struct {
	Path          string
	ComponentName string
}

func (ComponentDirective) isDirective() {}

// PropArg is one declared prop: name, type annotation, optional default
// expression source.
type PropArg struct {
	Name       string
	Type       string
	Default    string
	HasDefault bool
}

// PropsDirective declares the page/component's incoming props.
type PropsDirective struct{ Args []PropArg }

func (PropsDirective) isDirective() {}

// ProvideDirective publishes values into the context map for descendants.
type ProvideDirective struct {
	Mapping  map[string]string // key -> expression source
	KeyOrder []string
}

func (ProvideDirective) isDirective() {}

// InjectDirective consumes context values published by an ancestor.
type InjectDirective struct {
	Mapping   map[string]string // local name -> key
	NameOrder []string
}

func (InjectDirective) isDirective() {}
