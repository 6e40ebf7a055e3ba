package ir

// FieldValidationRules is the compile-time record of HTML5-style constraints
// harvested from a form field by the template parser. The validate package
// checks submitted values against it directly.
type FieldValidationRules struct {
	Name         string
	Required     bool
	RequiredExpr string
	Pattern      string
	MinLength    *int
	MaxLength    *int
	MinValue     string
	MinExpr      string
	MaxValue     string
	MaxExpr      string
	Step         string
	InputType    string
	Title        string
	MaxSize      *int64
	AllowedTypes []string
}

// FormValidationSchema collects every named field's rules under one <form>.
type FormValidationSchema struct {
	Fields     map[string]*FieldValidationRules
	FieldOrder []string // insertion order, for deterministic error iteration
	ModelName  string
}
