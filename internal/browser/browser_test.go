// internal/browser/browser_test.go
package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-heal/internal/config"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

func TestExecOptions(t *testing.T) {
	base := len(ExecOptions(config.BrowserConfig{}))

	t.Run("Headless", func(t *testing.T) {
		assert.Len(t, ExecOptions(config.BrowserConfig{Headless: true}), base+1)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		opts := ExecOptions(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Len(t, opts, base+1)
	})

	t.Run("Viewport", func(t *testing.T) {
		opts := ExecOptions(config.BrowserConfig{Viewport: map[string]int{"width": 1024, "height": 768}})
		assert.Len(t, opts, base+1)
		opts = ExecOptions(config.BrowserConfig{Viewport: map[string]int{"width": 1024}})
		assert.Len(t, opts, base, "a viewport needs both dimensions")
	})

	t.Run("CustomArgs", func(t *testing.T) {
		opts := ExecOptions(config.BrowserConfig{Args: []string{"--disable-dev-shm-usage", "--lang=de-DE", "--"}})
		assert.Len(t, opts, base+2, "empty flags are dropped")
	})
}

func TestCombine(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "tab-1")
		ctx, cancel := combine(primary, context.Background())
		defer cancel()

		assert.Equal(t, "tab-1", ctx.Value(key))
		assert.NoError(t, ctx.Err())
	})

	t.Run("CancelledByOperation", func(t *testing.T) {
		op, opCancel := context.WithCancel(context.Background())
		ctx, cancel := combine(context.Background(), op)
		defer cancel()

		opCancel()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, primaryCancel := context.WithCancel(context.Background())
		ctx, cancel := combine(primary, context.Background())
		defer cancel()

		primaryCancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("CancelLeavesPrimaryAlive", func(t *testing.T) {
		primary, primaryCancel := context.WithCancel(context.Background())
		defer primaryCancel()
		ctx, cancel := combine(primary, context.Background())

		cancel()
		assert.Error(t, ctx.Err())
		assert.NoError(t, primary.Err())
	})
}

func TestDecodeElements(t *testing.T) {
	t.Run("Snapshot", func(t *testing.T) {
		raw := `{"elements":[{
			"ref":"abc-0","tag":"button","id":"buy","classes":["btn","primary"],
			"attrs":{"id":"buy","class":"btn primary","data-testid":"buy-button"},
			"text":" Buy now ","path":"//*[@id=\"buy\"]","disabled":false,
			"box":{"x":10,"y":20,"width":80,"height":30},
			"style":{"display":"inline-block","visibility":"visible","opacity":"1","pointerEvents":"auto"}
		}]}`
		els, err := decodeElements(raw, "#buy")
		require.NoError(t, err)
		require.Len(t, els, 1)

		el := els[0]
		assert.Equal(t, "button", el.TagName())
		assert.Equal(t, "buy", el.ID())
		assert.Equal(t, []string{"btn", "primary"}, el.Classes())
		v, ok := el.Attribute("data-testid")
		assert.True(t, ok)
		assert.Equal(t, "buy-button", v)
		_, ok = el.Attribute(RefAttribute)
		assert.False(t, ok)
		assert.Equal(t, " Buy now ", el.Text())
		assert.Equal(t, `//*[@id="buy"]`, el.Path())
		assert.Equal(t, "abc-0", el.(*Element).Ref())

		box, err := el.Box()
		require.NoError(t, err)
		assert.Equal(t, dom.Rect{X: 10, Y: 20, Width: 80, Height: 30}, box)
		assert.True(t, dom.IsInteractable(el))
	})

	t.Run("HiddenElementIsNotInteractable", func(t *testing.T) {
		raw := `{"elements":[{"ref":"r-0","tag":"a","box":{"width":0,"height":0},
			"style":{"display":"none","visibility":"visible","opacity":"1","pointerEvents":"auto"}}]}`
		els, err := decodeElements(raw, "a")
		require.NoError(t, err)
		assert.False(t, dom.IsInteractable(els[0]))
	})

	t.Run("InvalidSelector", func(t *testing.T) {
		raw := `{"invalid":true,"message":"'##' is not a valid selector"}`
		els, err := decodeElements(raw, "##")
		assert.Nil(t, els)
		assert.True(t, errors.Is(err, dom.ErrInvalidSelector))
		assert.Contains(t, err.Error(), "not a valid selector")
	})

	t.Run("NoMatch", func(t *testing.T) {
		els, err := decodeElements(`{"elements":[]}`, "#missing")
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := decodeElements(`not json`, "a")
		require.Error(t, err)
		assert.False(t, errors.Is(err, dom.ErrInvalidSelector))
	})
}

func TestScripts(t *testing.T) {
	sel := `[data-testid="it's"]`
	script := queryScript(sel, true, "p1")
	assert.Contains(t, script, `"[data-testid=\"it's\"]", true, "p1"`)
	assert.Contains(t, script, "function snap(el, ref)")

	text := textScript("Sign up", "p2")
	assert.Contains(t, text, `"Sign up", "p2"`)
	assert.Contains(t, text, "el.closest('script, style, noscript, template')", "unrendered text is never a match")
	assert.Contains(t, selectScript("#country", "CA"), `"#country", "CA"`)
	assert.Contains(t, checkScript("#terms", true), `"#terms", true`)
	assert.Equal(t, `[data-heal-ref="abc-1"]`, refSelector("abc-1"))
	assert.Equal(t, `"line\nbreak"`, jsString("line\nbreak"))
}

func TestForeignElement(t *testing.T) {
	p := newPage(context.Background(), func() {}, zapNop(), time.Second)
	err := p.Click(context.Background(), nil)
	assert.ErrorIs(t, err, ErrForeignElement)
	err = p.Type(context.Background(), &fakeElement{}, "x")
	assert.ErrorIs(t, err, ErrForeignElement)
}

type fakeElement struct{ dom.Element }
