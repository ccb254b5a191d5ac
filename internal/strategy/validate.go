// internal/strategy/validate.go
package strategy

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

// MaxSelectorLength bounds the selectors Validate accepts.
const MaxSelectorLength = 1000

var dangerousPatterns = []string{"javascript:", "<script", "onerror=", "onload="}

// Validate rejects selectors that should never reach a document: empty, overlong, or
// carrying script injection patterns. Errors wrap dom.ErrInvalidSelector.
func Validate(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return fmt.Errorf("%w: selector is empty", dom.ErrInvalidSelector)
	}
	if len(selector) > MaxSelectorLength {
		return fmt.Errorf("%w: selector exceeds %d characters", dom.ErrInvalidSelector, MaxSelectorLength)
	}

	lower := strings.ToLower(selector)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: selector contains dangerous pattern %q", dom.ErrInvalidSelector, pattern)
		}
	}

	first := strings.TrimSpace(selector)[0]
	valid := (first >= 'a' && first <= 'z') ||
		(first >= 'A' && first <= 'Z') ||
		first == '#' ||
		first == '.' ||
		first == '[' ||
		first == '*' ||
		first == ':'
	if !valid {
		return fmt.Errorf("%w: selector must start with a valid CSS selector character", dom.ErrInvalidSelector)
	}
	return nil
}
