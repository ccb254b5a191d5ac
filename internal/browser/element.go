// internal/browser/element.go
package browser

import (
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

// snapshot is the JSON shape produced by the in-page snap function.
type snapshot struct {
	Ref      string            `json:"ref"`
	Tag      string            `json:"tag"`
	ID       string            `json:"id"`
	Classes  []string          `json:"classes"`
	Attrs    map[string]string `json:"attrs"`
	Text     string            `json:"text"`
	Path     string            `json:"path"`
	Disabled bool              `json:"disabled"`
	Box      struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"box"`
	Style struct {
		Display       string `json:"display"`
		Visibility    string `json:"visibility"`
		Opacity       string `json:"opacity"`
		PointerEvents string `json:"pointerEvents"`
	} `json:"style"`
}

// queryResult is what the query and text scripts return.
type queryResult struct {
	Invalid  bool       `json:"invalid"`
	Message  string     `json:"message"`
	Elements []snapshot `json:"elements"`
}

// Element is a snapshot of a live element taken when it was queried. Actions address the
// live node through its ref attribute.
type Element struct {
	snap snapshot
}

var _ dom.Element = (*Element)(nil)

// Ref is the value of the element's data-heal-ref attribute.
func (e *Element) Ref() string { return e.snap.Ref }

func (e *Element) TagName() string   { return e.snap.Tag }
func (e *Element) ID() string        { return e.snap.ID }
func (e *Element) Text() string      { return e.snap.Text }
func (e *Element) Path() string      { return e.snap.Path }
func (e *Element) Disabled() bool    { return e.snap.Disabled }
func (e *Element) Classes() []string { return append([]string(nil), e.snap.Classes...) }

func (e *Element) Attribute(name string) (string, bool) {
	v, ok := e.snap.Attrs[name]
	return v, ok
}

func (e *Element) Box() (dom.Rect, error) {
	b := e.snap.Box
	return dom.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}, nil
}

func (e *Element) Style() (dom.Style, error) {
	s := e.snap.Style
	return dom.Style{
		Display:       s.Display,
		Visibility:    s.Visibility,
		Opacity:       s.Opacity,
		PointerEvents: s.PointerEvents,
	}, nil
}
