// Package validate implements server-side form validation matching HTML5
// constraints, ported from the original project's FormValidator so that
// the generated submit wrapper (codegen's form-validation wrapper, spec
// §4.7) produces byte-identical error strings.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pywire/pywire/ir"
)

// tagValidator supplies struct-tag style checks for the HTML5 input types
// the hand-rolled rules above don't special-case (color, tel), layered on
// top of the ported email/url/number/date/file validation rather than
// replacing it.
var tagValidator = validator.New()

// StateGetter evaluates a page-state expression (e.g. a dynamic min/max
// bound) against the current handler's environment.
type StateGetter func(expr string) (interface{}, error)

// FileUpload is the minimal file-record shape the validator needs; the
// upload manager (external collaborator, spec §6) is the only producer.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	urlPattern   = regexp.MustCompile(`(?i)^https?://[^\s/$.?#].[^\s]*$`)
)

// Validator validates a single field's raw value against its rules.
type Validator struct{}

// New returns a Validator.
func New() *Validator { return &Validator{} }

// ValidateField validates one field. value may be a string, a *FileUpload,
// or nil. Returns an error message, or "" if valid.
func (v *Validator) ValidateField(name string, value interface{}, rules *ir.FieldValidationRules, getter StateGetter) string {
	isRequired := rules.Required
	if rules.RequiredExpr != "" && getter != nil {
		if res, err := getter(rules.RequiredExpr); err == nil {
			isRequired = truthy(res)
		}
	}

	strValue, isFile := asString(value)

	if isRequired && isEmptyValue(value, strValue) {
		return title(rules, "This field is required")
	}
	if isEmptyValue(value, strValue) {
		return ""
	}
	trimmed := strings.TrimSpace(strValue)

	if rules.Pattern != "" {
		if re, err := regexp.Compile("^(?:" + rules.Pattern + ")$"); err == nil {
			if !re.MatchString(trimmed) {
				return title(rules, "Value does not match the required pattern")
			}
		}
	}

	if rules.MinLength != nil && len(trimmed) < *rules.MinLength {
		return title(rules, fmt.Sprintf("Must be at least %d characters", *rules.MinLength))
	}
	if rules.MaxLength != nil && len(trimmed) > *rules.MaxLength {
		return title(rules, fmt.Sprintf("Must be at most %d characters", *rules.MaxLength))
	}

	switch rules.InputType {
	case "email":
		if !emailPattern.MatchString(trimmed) {
			return title(rules, "Please enter a valid email address")
		}
	case "url":
		if !urlPattern.MatchString(trimmed) {
			return title(rules, "Please enter a valid URL")
		}
	case "number":
		return v.validateNumber(trimmed, rules, getter)
	case "date":
		return v.validateDate(trimmed, rules, getter)
	case "file":
		if fu, ok := value.(*FileUpload); ok && isFile {
			return v.validateFile(fu, rules)
		}
	case "color":
		if err := tagValidator.Var(trimmed, "hexcolor"); err != nil {
			return title(rules, "Please enter a valid color")
		}
	case "tel":
		if err := tagValidator.Var(trimmed, "e164"); err != nil {
			return title(rules, "Please enter a valid phone number")
		}
	}

	if rules.InputType == "text" || rules.InputType == "" {
		if rules.MinValue != "" || rules.MaxValue != "" || rules.MinExpr != "" || rules.MaxExpr != "" {
			if num, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return v.validateNumericRange(num, rules, getter)
			}
		}
	}

	return ""
}

func (v *Validator) validateFile(fu *FileUpload, rules *ir.FieldValidationRules) string {
	if rules.MaxSize != nil && fu.Size > *rules.MaxSize {
		mb := float64(*rules.MaxSize) / (1024 * 1024)
		return title(rules, fmt.Sprintf("File is too large (max %.1fMB)", mb))
	}
	if len(rules.AllowedTypes) > 0 {
		allowed := false
		for _, pattern := range rules.AllowedTypes {
			pattern = strings.TrimSpace(pattern)
			switch {
			case strings.HasPrefix(pattern, "."):
				if strings.HasSuffix(strings.ToLower(fu.Filename), strings.ToLower(pattern)) {
					allowed = true
				}
			case strings.HasSuffix(pattern, "/*"):
				base := strings.TrimSuffix(pattern, "/*")
				if strings.HasPrefix(fu.ContentType, base) {
					allowed = true
				}
			default:
				if fu.ContentType == pattern {
					allowed = true
				}
			}
			if allowed {
				break
			}
		}
		if !allowed {
			return title(rules, fmt.Sprintf("File type not allowed. Accepted: %s", strings.Join(rules.AllowedTypes, ", ")))
		}
	}
	return ""
}

func (v *Validator) validateNumber(strValue string, rules *ir.FieldValidationRules, getter StateGetter) string {
	num, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return title(rules, "Please enter a valid number")
	}
	return v.validateNumericRange(num, rules, getter)
}

func (v *Validator) validateNumericRange(num float64, rules *ir.FieldValidationRules, getter StateGetter) string {
	var minVal, maxVal *float64

	if rules.MinExpr != "" && getter != nil {
		if res, err := getter(rules.MinExpr); err == nil {
			if f, ok := toFloat(res); ok {
				minVal = &f
			}
		}
	} else if rules.MinValue != "" {
		if f, err := strconv.ParseFloat(rules.MinValue, 64); err == nil {
			minVal = &f
		}
	}
	if minVal != nil && num < *minVal {
		return title(rules, fmt.Sprintf("Value must be at least %v", *minVal))
	}

	if rules.MaxExpr != "" && getter != nil {
		if res, err := getter(rules.MaxExpr); err == nil {
			if f, ok := toFloat(res); ok {
				maxVal = &f
			}
		}
	} else if rules.MaxValue != "" {
		if f, err := strconv.ParseFloat(rules.MaxValue, 64); err == nil {
			maxVal = &f
		}
	}
	if maxVal != nil && num > *maxVal {
		return title(rules, fmt.Sprintf("Value must be at most %v", *maxVal))
	}

	if rules.Step != "" {
		if step, err := strconv.ParseFloat(rules.Step, 64); err == nil && step > 0 {
			base := 0.0
			if minVal != nil {
				base = *minVal
			}
			diff := num - base
			remainder := mod(diff, step)
			if remainder != 0 {
				return title(rules, fmt.Sprintf("Value must be a multiple of %v", step))
			}
		}
	}
	return ""
}

func (v *Validator) validateDate(strValue string, rules *ir.FieldValidationRules, getter StateGetter) string {
	dateValue, err := time.Parse("2006-01-02", strValue)
	if err != nil {
		return title(rules, "Please enter a valid date (YYYY-MM-DD)")
	}

	if rules.MinExpr != "" && getter != nil {
		if res, err := getter(rules.MinExpr); err == nil {
			if s, ok := res.(string); ok {
				if minDate, err := time.Parse("2006-01-02", s); err == nil && dateValue.Before(minDate) {
					return title(rules, fmt.Sprintf("Date must be on or after %s", minDate.Format("2006-01-02")))
				}
			}
		}
	} else if rules.MinValue != "" {
		if minDate, err := time.Parse("2006-01-02", rules.MinValue); err == nil && dateValue.Before(minDate) {
			return title(rules, fmt.Sprintf("Date must be on or after %s", minDate.Format("2006-01-02")))
		}
	}

	if rules.MaxExpr != "" && getter != nil {
		if res, err := getter(rules.MaxExpr); err == nil {
			if s, ok := res.(string); ok {
				if maxDate, err := time.Parse("2006-01-02", s); err == nil && dateValue.After(maxDate) {
					return title(rules, fmt.Sprintf("Date must be on or before %s", maxDate.Format("2006-01-02")))
				}
			}
		}
	} else if rules.MaxValue != "" {
		if maxDate, err := time.Parse("2006-01-02", rules.MaxValue); err == nil && dateValue.After(maxDate) {
			return title(rules, fmt.Sprintf("Date must be on or before %s", maxDate.Format("2006-01-02")))
		}
	}
	return ""
}

// ValidateForm validates every field in schema against values (raw form
// data) and returns the cleaned values plus a field->message error map.
// Matches spec §8 scenario 5: missing required "email" yields
// {"email": "This field is required"}.
func ValidateForm(schema *ir.FormValidationSchema, values map[string]interface{}, getter StateGetter) (map[string]interface{}, map[string]string) {
	v := New()
	cleaned := map[string]interface{}{}
	errs := map[string]string{}
	for _, name := range schema.FieldOrder {
		rules := schema.Fields[name]
		val := values[name]
		if msg := v.ValidateField(name, val, rules, getter); msg != "" {
			errs[name] = msg
			continue
		}
		cleaned[name] = val
	}
	return cleaned, errs
}

func title(rules *ir.FieldValidationRules, fallback string) string {
	if rules.Title != "" {
		return rules.Title
	}
	return fallback
}

func isEmptyValue(value interface{}, strValue string) bool {
	if value == nil {
		return true
	}
	if _, ok := value.(*FileUpload); ok {
		return false
	}
	return strings.TrimSpace(strValue) == ""
}

func asString(value interface{}) (string, bool) {
	switch t := value.(type) {
	case nil:
		return "", false
	case string:
		return t, false
	case *FileUpload:
		return t.Filename, true
	default:
		return fmt.Sprintf("%v", t), false
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func mod(a, b float64) float64 {
	for a < 0 {
		a += b
	}
	r := a
	for r >= b {
		r -= b
	}
	return r
}
