// internal/dom/dom_test.go
package dom

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElement is a hand-configured Element for exercising the pure checks.
type fakeElement struct {
	tag      string
	id       string
	classes  []string
	attrs    map[string]string
	text     string
	path     string
	disabled bool
	rect     Rect
	style    Style
	boxErr   error
	styleErr error
}

func (f *fakeElement) TagName() string   { return f.tag }
func (f *fakeElement) ID() string        { return f.id }
func (f *fakeElement) Classes() []string { return f.classes }
func (f *fakeElement) Attribute(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}
func (f *fakeElement) Text() string          { return f.text }
func (f *fakeElement) Path() string          { return f.path }
func (f *fakeElement) Disabled() bool        { return f.disabled }
func (f *fakeElement) Box() (Rect, error)    { return f.rect, f.boxErr }
func (f *fakeElement) Style() (Style, error) { return f.style, f.styleErr }

func visibleButton() *fakeElement {
	return &fakeElement{
		tag:   "button",
		rect:  Rect{X: 10, Y: 10, Width: 120, Height: 32},
		style: Style{Display: "inline-block", Visibility: "visible", Opacity: "1", PointerEvents: "auto"},
	}
}

func TestIsInteractable(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*fakeElement)
		expected bool
	}{
		{"Rendered Enabled Visible", func(*fakeElement) {}, true},
		{"Zero Height", func(f *fakeElement) { f.rect.Height = 0 }, false},
		{"Zero Width", func(f *fakeElement) { f.rect.Width = 0 }, false},
		{"Visibility Hidden", func(f *fakeElement) { f.style.Visibility = "hidden" }, false},
		{"Display None", func(f *fakeElement) { f.style.Display = "none" }, false},
		{"Opacity Zero", func(f *fakeElement) { f.style.Opacity = "0" }, false},
		{"Opacity Fractional", func(f *fakeElement) { f.style.Opacity = "0.4" }, true},
		{"Disabled", func(f *fakeElement) { f.disabled = true }, false},
		{"Pointer Events None", func(f *fakeElement) { f.style.PointerEvents = "none" }, false},
		{"Style Error Fails Open", func(f *fakeElement) {
			f.rect.Height = 0
			f.styleErr = errors.New("getComputedStyle threw")
		}, true},
		{"Box Error Fails Open", func(f *fakeElement) {
			f.style.Display = "none"
			f.boxErr = errors.New("detached node")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := visibleButton()
			tt.mutate(el)
			assert.Equal(t, tt.expected, IsInteractable(el))
		})
	}

	t.Run("Nil Element", func(t *testing.T) {
		assert.False(t, IsInteractable(nil))
	})
}

func TestCheckCondition(t *testing.T) {
	hidden := visibleButton()
	hidden.style.Display = "none"

	assert.True(t, CheckCondition(hidden, ConditionExists))
	assert.False(t, CheckCondition(hidden, ConditionVisible))
	assert.False(t, CheckCondition(hidden, ConditionEnabled))
	assert.False(t, CheckCondition(hidden, "unknown-condition"))
	assert.True(t, CheckCondition(visibleButton(), ConditionEnabled))
	assert.False(t, CheckCondition(nil, ConditionExists))
}

func TestExtractSignature(t *testing.T) {
	el := &fakeElement{
		tag:     "BUTTON",
		id:      "checkout",
		classes: []string{"btn", "primary", "btn", ""},
		attrs: map[string]string{
			"data-testid": "checkout-button",
			"type":        "submit",
			"onclick":     "ignored()",
		},
		text: "   " + strings.Repeat("é", 150) + "  ",
		path: `//*[@id='checkout']`,
		rect: Rect{X: 1, Y: 2, Width: 3, Height: 4},
	}

	sig := ExtractSignature(el)
	require.NotNil(t, sig)

	assert.Equal(t, "button", sig.Tag)
	assert.Equal(t, "checkout", sig.ID)
	assert.Equal(t, []string{"btn", "primary"}, sig.Classes, "classes should be a set in first-seen order")
	assert.Equal(t, 100, len([]rune(sig.Text)), "text is truncated to 100 runes after trimming")
	assert.Equal(t, map[string]string{"data-testid": "checkout-button", "type": "submit"}, sig.Attributes)
	assert.Equal(t, 3.0, sig.Box.Width)
	assert.Equal(t, `//*[@id='checkout']`, sig.Path)

	t.Run("Box Failure Degrades", func(t *testing.T) {
		el.boxErr = errors.New("boom")
		sig := ExtractSignature(el)
		require.NotNil(t, sig)
		assert.Zero(t, sig.Box)
		assert.Equal(t, "button", sig.Tag)
	})

	t.Run("Nil Element", func(t *testing.T) {
		assert.Nil(t, ExtractSignature(nil))
	})
}

func TestClassifyField(t *testing.T) {
	tests := []struct {
		name     string
		el       *fakeElement
		expected FieldKind
	}{
		{"Select", &fakeElement{tag: "SELECT"}, FieldSelect},
		{"Checkbox", &fakeElement{tag: "input", attrs: map[string]string{"type": "Checkbox"}}, FieldCheckbox},
		{"Radio", &fakeElement{tag: "input", attrs: map[string]string{"type": "radio"}}, FieldRadio},
		{"Email", &fakeElement{tag: "input", attrs: map[string]string{"type": "email"}}, FieldText},
		{"Textarea", &fakeElement{tag: "textarea"}, FieldText},
		{"Untyped Input", &fakeElement{tag: "input"}, FieldText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyField(tt.el))
		})
	}
	assert.Equal(t, "checkbox", FieldCheckbox.String())
	assert.Equal(t, "text", FieldText.String())
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestElapsedMs(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &stepClock{now: start.Add(1500 * time.Microsecond)}
	assert.InDelta(t, 1.5, ElapsedMs(c, start), 1e-9)
}
