// internal/dom/dom.go
package dom

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSelector is returned by a Document when a selector cannot be parsed.
// Callers iterating over candidate selectors treat it as "no match".
var ErrInvalidSelector = errors.New("invalid selector")

// Rect is the rendered bounding rectangle of an element.
type Rect struct {
	X, Y, Width, Height float64
}

// Style holds the subset of computed style consulted by the interactability check.
type Style struct {
	Display       string
	Visibility    string
	Opacity       string
	PointerEvents string
}

// Element is a handle to a node of the current document.
// Implementations snapshot or read through to the underlying engine; either way a handle
// goes stale as soon as the document mutates.
type Element interface {
	// TagName is the lower-case tag name.
	TagName() string
	ID() string
	Classes() []string
	Attribute(name string) (string, bool)
	// Text is the element's text content, untrimmed.
	Text() string
	// Path is an XPath locator for the element, anchored at the nearest ID when possible.
	Path() string
	Disabled() bool
	Box() (Rect, error)
	Style() (Style, error)
}

// Document is the query capability the resolver runs against.
type Document interface {
	// QuerySelector returns the first element matching a CSS selector, or nil when nothing
	// matches. A syntactically unusable selector yields an error wrapping ErrInvalidSelector.
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	// FindByText returns the innermost element whose text contains text (case-sensitive),
	// or nil.
	FindByText(ctx context.Context, text string) (Element, error)
}

// Page is a Document that can also be acted upon.
type Page interface {
	Document
	Click(ctx context.Context, el Element) error
	// Type clears the element's current value and types text into it.
	Type(ctx context.Context, el Element, text string) error
	Select(ctx context.Context, el Element, value string) error
	SetChecked(ctx context.Context, el Element, checked bool) error
}

// Clock supplies monotonic timestamps for response time measurement.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (which carries Go's monotonic reading).
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ElapsedMs returns the milliseconds elapsed between start and c.Now().
func ElapsedMs(c Clock, start time.Time) float64 {
	return float64(c.Now().Sub(start)) / float64(time.Millisecond)
}
