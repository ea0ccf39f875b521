// Package form models the typed field definitions of a template's form schema
// and validates submitted form data against them.
package form

import "fmt"

// Kind identifies the type of a form field
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindNumber   Kind = "number"
	KindCurrency Kind = "currency"
	KindDate     Kind = "date"
	KindDropdown Kind = "dropdown"
	KindFile     Kind = "file"
)

// DateLayout is the wire format of date field values and date rule bounds
const DateLayout = "2006-01-02"

// IsValid returns true if the kind is a known field kind
func (k Kind) IsValid() bool {
	switch k {
	case KindText, KindTextarea, KindNumber, KindCurrency, KindDate, KindDropdown, KindFile:
		return true
	default:
		return false
	}
}

// Field is one field definition of a form schema.
//
// The rule set that applies depends on Kind: Text for text and textarea,
// Number for number and currency, Date for date, File for file. Dropdown
// fields are constrained by Options. Rule sets that do not match the kind
// are ignored.
type Field struct {
	ID        string       `json:"id"`
	Name      string       `json:"name" validate:"required,max=100"`
	Label     string       `json:"label" validate:"max=200"`
	Kind      Kind         `json:"type" validate:"required,oneof=text textarea number currency date dropdown file"`
	Required  bool         `json:"required"`
	Text      *TextRules   `json:"text_rules,omitempty"`
	Number    *NumberRules `json:"number_rules,omitempty"`
	Date      *DateRules   `json:"date_rules,omitempty"`
	File      *FileRules   `json:"file_rules,omitempty"`
	Options   []string     `json:"options,omitempty" validate:"required_if=Kind dropdown,dive,required"`
	Condition *Condition   `json:"condition,omitempty"`
}

// TextRules constrain text and textarea values
type TextRules struct {
	MinLength *int   `json:"min_length,omitempty" validate:"omitempty,min=0"`
	MaxLength *int   `json:"max_length,omitempty" validate:"omitempty,min=1"`
	Pattern   string `json:"pattern,omitempty"`
	// Format is an optional well-known format: "email" or "url"
	Format string `json:"format,omitempty" validate:"omitempty,oneof=email url"`
}

// NumberRules constrain number and currency values
type NumberRules struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Integer bool     `json:"integer,omitempty"`
}

// DateRules constrain date values, bounds use DateLayout
type DateRules struct {
	Min string `json:"min,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Max string `json:"max,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// FileRules constrain file-reference values
type FileRules struct {
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

// Condition makes a field visible only when another field holds a given value
type Condition struct {
	Field  string      `json:"field" validate:"required"`
	Equals interface{} `json:"equals"`
}

// matches reports whether the referenced value satisfies the condition
func (c *Condition) matches(values map[string]interface{}) bool {
	v, ok := values[c.Field]
	if !ok || v == nil {
		return c.Equals == nil
	}
	return fmt.Sprint(v) == fmt.Sprint(c.Equals)
}
