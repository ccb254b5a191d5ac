// internal/dom/field.go
package dom

import "strings"

// FieldKind is the closed set of form control variants the form filler distinguishes.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldSelect
	FieldCheckbox
	FieldRadio
)

func (k FieldKind) String() string {
	switch k {
	case FieldSelect:
		return "select"
	case FieldCheckbox:
		return "checkbox"
	case FieldRadio:
		return "radio"
	default:
		return "text"
	}
}

// MarshalText encodes the kind by name.
func (k FieldKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ClassifyField maps an element's tag and type attribute onto a FieldKind.
// Textareas and every other input type are filled as text.
func ClassifyField(el Element) FieldKind {
	if el == nil {
		return FieldText
	}
	if strings.EqualFold(el.TagName(), "select") {
		return FieldSelect
	}
	inputType, _ := el.Attribute("type")
	switch strings.ToLower(strings.TrimSpace(inputType)) {
	case "checkbox":
		return FieldCheckbox
	case "radio":
		return FieldRadio
	}
	return FieldText
}
