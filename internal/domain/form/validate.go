package form

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDefinition checks that a list of field definitions is well formed:
// struct rules hold, names are unique, patterns compile and conditions
// reference a field defined in the same schema.
func ValidateDefinition(fields []Field) error {
	names := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if err := validate.Struct(f); err != nil {
			return fmt.Errorf("field %d (%s): %w", i, f.Name, err)
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		names[f.Name] = true

		if f.Text != nil {
			if err := validate.Struct(f.Text); err != nil {
				return fmt.Errorf("field %s text rules: %w", f.Name, err)
			}
			if f.Text.Pattern != "" {
				if _, err := regexp.Compile(f.Text.Pattern); err != nil {
					return fmt.Errorf("field %s: invalid pattern: %w", f.Name, err)
				}
			}
		}
		if f.Date != nil {
			if err := validate.Struct(f.Date); err != nil {
				return fmt.Errorf("field %s date rules: %w", f.Name, err)
			}
		}
	}

	for _, f := range fields {
		if f.Condition == nil {
			continue
		}
		if err := validate.Struct(f.Condition); err != nil {
			return fmt.Errorf("field %s condition: %w", f.Name, err)
		}
		if !names[f.Condition.Field] || f.Condition.Field == f.Name {
			return fmt.Errorf("field %s: condition references unknown field %q", f.Name, f.Condition.Field)
		}
	}

	return nil
}

// Validate checks submitted values against field definitions and returns a
// mapping of field name to error message. An empty map means the submission
// is valid. Fields hidden by their visibility condition are skipped; values
// for names not in the schema are ignored.
func Validate(fields []Field, values map[string]interface{}) map[string]string {
	errs := make(map[string]string)

	for _, f := range fields {
		if f.Condition != nil && !f.Condition.matches(values) {
			continue
		}

		v, present := values[f.Name]
		if !present || isEmpty(v) {
			if f.Required {
				errs[f.Name] = "is required"
			}
			continue
		}

		if msg := validateValue(f, v); msg != "" {
			errs[f.Name] = msg
		}
	}

	return errs
}

func validateValue(f Field, v interface{}) string {
	switch f.Kind {
	case KindText, KindTextarea:
		return validateText(f.Text, v)
	case KindNumber:
		return validateNumber(f.Number, v, false)
	case KindCurrency:
		return validateNumber(f.Number, v, true)
	case KindDate:
		return validateDate(f.Date, v)
	case KindDropdown:
		return validateDropdown(f.Options, v)
	case KindFile:
		return validateFile(f.File, v)
	default:
		return fmt.Sprintf("unsupported field type %q", f.Kind)
	}
}

func validateText(rules *TextRules, v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return "must be text"
	}
	if rules == nil {
		return ""
	}

	n := utf8.RuneCountInString(s)
	if rules.MinLength != nil && n < *rules.MinLength {
		return fmt.Sprintf("must be at least %d characters", *rules.MinLength)
	}
	if rules.MaxLength != nil && n > *rules.MaxLength {
		return fmt.Sprintf("must be at most %d characters", *rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil || !re.MatchString(s) {
			return "has an invalid format"
		}
	}
	if rules.Format != "" {
		if err := validate.Var(s, rules.Format); err != nil {
			return fmt.Sprintf("must be a valid %s", rules.Format)
		}
	}
	return ""
}

func validateNumber(rules *NumberRules, v interface{}, currency bool) string {
	n, ok := toFloat(v)
	if !ok {
		if currency {
			return "must be a valid amount"
		}
		return "must be a number"
	}
	if currency && math.Abs(n*100-math.Round(n*100)) > 1e-6 {
		return "must have at most 2 decimal places"
	}
	if rules == nil {
		return ""
	}
	if rules.Integer && !currency && n != math.Trunc(n) {
		return "must be a whole number"
	}
	if rules.Min != nil && n < *rules.Min {
		return fmt.Sprintf("must be at least %s", formatFloat(*rules.Min))
	}
	if rules.Max != nil && n > *rules.Max {
		return fmt.Sprintf("must be at most %s", formatFloat(*rules.Max))
	}
	return ""
}

func validateDate(rules *DateRules, v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return "must be a date (YYYY-MM-DD)"
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "must be a date (YYYY-MM-DD)"
	}
	if rules == nil {
		return ""
	}
	if rules.Min != "" {
		if lo, err := time.Parse(DateLayout, rules.Min); err == nil && d.Before(lo) {
			return fmt.Sprintf("must be on or after %s", rules.Min)
		}
	}
	if rules.Max != "" {
		if hi, err := time.Parse(DateLayout, rules.Max); err == nil && d.After(hi) {
			return fmt.Sprintf("must be on or before %s", rules.Max)
		}
	}
	return ""
}

func validateDropdown(options []string, v interface{}) string {
	s := fmt.Sprint(v)
	for _, opt := range options {
		if opt == s {
			return ""
		}
	}
	return "must be one of the available options"
}

func validateFile(rules *FileRules, v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return "must be a file reference"
	}
	if rules == nil || len(rules.AllowedExtensions) == 0 {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(s)), ".")
	for _, allowed := range rules.AllowedExtensions {
		if strings.TrimPrefix(strings.ToLower(allowed), ".") == ext {
			return ""
		}
	}
	return fmt.Sprintf("file type must be one of: %s", strings.Join(rules.AllowedExtensions, ", "))
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// toFloat reads a numeric value. NaN and infinities are not numbers a form
// can hold.
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(t), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
