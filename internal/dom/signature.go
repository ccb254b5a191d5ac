// internal/dom/signature.go
package dom

import (
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

const maxSignatureText = 100

// KeyAttributes is the fixed attribute set captured in a signature.
var KeyAttributes = []string{"data-testid", "role", "type", "name", "aria-label", "title", "placeholder"}

// ExtractSignature converts an element into a comparable signature.
// It returns nil for a nil element. Geometry failures degrade to a zero box.
func ExtractSignature(el Element) *schemas.ElementSignature {
	if el == nil {
		return nil
	}

	sig := &schemas.ElementSignature{
		Tag:        strings.ToLower(el.TagName()),
		ID:         el.ID(),
		Classes:    dedupe(el.Classes()),
		Text:       truncateRunes(strings.TrimSpace(el.Text()), maxSignatureText),
		Attributes: make(map[string]string),
		Path:       el.Path(),
	}

	for _, key := range KeyAttributes {
		if val, ok := el.Attribute(key); ok {
			sig.Attributes[key] = val
		}
	}

	if rect, err := el.Box(); err == nil {
		sig.Box = schemas.BoundingBox{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
	}
	return sig
}

func dedupe(classes []string) []string {
	out := make([]string, 0, len(classes))
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
