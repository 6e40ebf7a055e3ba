package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pywire/pywire/ir"
)

func rules(mods func(*ir.FieldValidationRules)) *ir.FieldValidationRules {
	r := &ir.FieldValidationRules{Name: "field"}
	if mods != nil {
		mods(r)
	}
	return r
}

func TestValidateFieldRequired(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.Required = true })

	assert.Equal(t, "This field is required", v.ValidateField("email", "", r, nil))
	assert.Equal(t, "", v.ValidateField("email", "present", r, nil))
}

func TestValidateFieldRequiredExprOverridesStaticFlag(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.RequiredExpr = "needsIt" })
	getter := func(expr string) (interface{}, error) { return true, nil }

	assert.Equal(t, "This field is required", v.ValidateField("f", "", r, getter))
}

func TestValidateFieldCustomTitle(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) {
		r.Required = true
		r.Title = "Email is mandatory"
	})
	assert.Equal(t, "Email is mandatory", v.ValidateField("email", "", r, nil))
}

func TestValidateFieldPattern(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.Pattern = `[a-z]+` })
	assert.Equal(t, "", v.ValidateField("f", "abc", r, nil))
	assert.NotEqual(t, "", v.ValidateField("f", "ABC123", r, nil))
}

func TestValidateFieldMinMaxLength(t *testing.T) {
	v := New()
	min, max := 3, 5
	r := rules(func(r *ir.FieldValidationRules) { r.MinLength = &min; r.MaxLength = &max })

	assert.Contains(t, v.ValidateField("f", "ab", r, nil), "at least")
	assert.Contains(t, v.ValidateField("f", "toolong", r, nil), "at most")
	assert.Equal(t, "", v.ValidateField("f", "okay", r, nil))
}

func TestValidateFieldEmail(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.InputType = "email" })
	assert.Equal(t, "", v.ValidateField("f", "a@b.com", r, nil))
	assert.NotEqual(t, "", v.ValidateField("f", "not-an-email", r, nil))
}

func TestValidateFieldURL(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.InputType = "url" })
	assert.Equal(t, "", v.ValidateField("f", "https://example.com/page", r, nil))
	assert.NotEqual(t, "", v.ValidateField("f", "not a url", r, nil))
}

func TestValidateFieldColorUsesValidatorV10(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.InputType = "color" })
	assert.Equal(t, "", v.ValidateField("f", "#ff00aa", r, nil))
	assert.Equal(t, "Please enter a valid color", v.ValidateField("f", "notacolor", r, nil))
}

func TestValidateFieldTelUsesValidatorV10(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) { r.InputType = "tel" })
	assert.Equal(t, "", v.ValidateField("f", "+14155552671", r, nil))
	assert.Equal(t, "Please enter a valid phone number", v.ValidateField("f", "notaphone", r, nil))
}

func TestValidateFieldNumberRange(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) {
		r.InputType = "number"
		r.MinValue = "1"
		r.MaxValue = "10"
	})
	assert.Equal(t, "", v.ValidateField("f", "5", r, nil))
	assert.Contains(t, v.ValidateField("f", "0", r, nil), "at least")
	assert.Contains(t, v.ValidateField("f", "11", r, nil), "at most")
	assert.Contains(t, v.ValidateField("f", "notanumber", r, nil), "valid number")
}

func TestValidateFieldDateRange(t *testing.T) {
	v := New()
	r := rules(func(r *ir.FieldValidationRules) {
		r.InputType = "date"
		r.MinValue = "2020-01-01"
		r.MaxValue = "2020-12-31"
	})
	assert.Equal(t, "", v.ValidateField("f", "2020-06-15", r, nil))
	assert.Contains(t, v.ValidateField("f", "2019-12-31", r, nil), "on or after")
	assert.Contains(t, v.ValidateField("f", "2021-01-01", r, nil), "on or before")
	assert.Contains(t, v.ValidateField("f", "not-a-date", r, nil), "valid date")
}

func TestValidateFieldFileSizeAndType(t *testing.T) {
	v := New()
	maxSize := int64(10)
	r := rules(func(r *ir.FieldValidationRules) {
		r.InputType = "file"
		r.MaxSize = &maxSize
		r.AllowedTypes = []string{".png", "image/*"}
	})

	ok := &FileUpload{Filename: "a.png", ContentType: "image/png", Size: 5}
	assert.Equal(t, "", v.ValidateField("f", ok, r, nil))

	tooBig := &FileUpload{Filename: "a.png", ContentType: "image/png", Size: 50}
	assert.Contains(t, v.ValidateField("f", tooBig, r, nil), "too large")

	wrongType := &FileUpload{Filename: "a.exe", ContentType: "application/octet-stream", Size: 1}
	assert.Contains(t, v.ValidateField("f", wrongType, r, nil), "not allowed")
}

func TestValidateForm(t *testing.T) {
	schema := &ir.FormValidationSchema{
		Fields: map[string]*ir.FieldValidationRules{
			"email": {Name: "email", Required: true, InputType: "email"},
			"bio":   {Name: "bio"},
		},
		FieldOrder: []string{"email", "bio"},
	}
	values := map[string]interface{}{"bio": "hello"}

	cleaned, errs := ValidateForm(schema, values, nil)
	assert.Equal(t, "This field is required", errs["email"])
	assert.Equal(t, "hello", cleaned["bio"])
	_, hasEmail := cleaned["email"]
	assert.False(t, hasEmail)
}
