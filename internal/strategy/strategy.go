// internal/strategy/strategy.go
//
// Package strategy derives alternative selectors from a selector that stopped matching.
// Generation is a pure function of the selector text; it never touches a document.
package strategy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// Strategy names emitted by the generator.
const (
	NamePartialTestID = "partial-testid"
	NameBaseTestID    = "base-testid"
	NameTestIDWords   = "testid-words"
	NameButtonRole    = "button-role"
	NameLinkRole      = "link-role"
)

// DefaultTestIDAttribute is the attribute the generator mines for stable ids.
const DefaultTestIDAttribute = "data-testid"

const (
	buttonRoleSelector = `button, [role="button"], input[type="submit"], input[type="button"]`
	linkRoleSelector   = `a, [role="link"]`
)

var (
	trailingNumber = regexp.MustCompile(`-\d+$`)
	containsText   = regexp.MustCompile(`contains?\(["']([^"']+)["']\)`)
)

// Generator derives fallback strategies for one test-id attribute name.
type Generator struct {
	attr    string
	matcher *regexp.Regexp
}

// NewGenerator returns a Generator mining attr, or DefaultTestIDAttribute when attr is empty.
func NewGenerator(attr string) *Generator {
	if attr == "" {
		attr = DefaultTestIDAttribute
	}
	return &Generator{
		attr:    attr,
		matcher: regexp.MustCompile(regexp.QuoteMeta(attr) + `[*~|^$]?=["']([^"']+)["']`),
	}
}

var defaultGenerator = NewGenerator(DefaultTestIDAttribute)

// Generate derives strategies from original using the default test-id attribute.
func Generate(original string) []schemas.Strategy {
	return defaultGenerator.Generate(original)
}

// Generate returns the fallback strategies for original, ordered by confidence descending.
// Strategies of equal confidence keep their generation order.
func (g *Generator) Generate(original string) []schemas.Strategy {
	var out []schemas.Strategy

	if m := g.matcher.FindStringSubmatch(original); m != nil {
		value := m[1]
		out = append(out, schemas.Strategy{
			Name:       NamePartialTestID,
			Selector:   g.attrContains(value),
			Confidence: 0.9,
		})

		if words := strings.Split(value, "-"); len(words) > 1 {
			out = append(out, schemas.Strategy{
				Name:       NameTestIDWords,
				Selector:   g.attrContains(words[0]),
				Confidence: 0.7,
			})
			if base := trailingNumber.ReplaceAllString(value, ""); base != value && base != "" {
				out = append(out, schemas.Strategy{
					Name:       NameBaseTestID,
					Selector:   g.attrContains(base),
					Confidence: 0.8,
				})
			}
		}
	}

	if strings.Contains(original, "button") || strings.Contains(original, "btn") {
		out = append(out, schemas.Strategy{Name: NameButtonRole, Selector: buttonRoleSelector, Confidence: 0.6})
	}
	if strings.Contains(original, "link") {
		out = append(out, schemas.Strategy{Name: NameLinkRole, Selector: linkRoleSelector, Confidence: 0.6})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (g *Generator) attrContains(value string) string {
	return fmt.Sprintf(`[%s*="%s"]`, g.attr, value)
}

// ContainsText extracts the literal of a contains("...") or :contains('...') predicate.
func ContainsText(selector string) (string, bool) {
	m := containsText.FindStringSubmatch(selector)
	if m == nil {
		return "", false
	}
	return m[1], true
}
