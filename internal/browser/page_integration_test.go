// internal/browser/page_integration_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-heal/internal/config"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/healing"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
	"github.com/xkilldash9x/scalpel-heal/internal/telemetry"
)

const liveFixture = `<!DOCTYPE html>
<html><body>
  <nav id="main-nav"><a href="#products" class="nav-link">Products</a></nav>
  <button data-testid="add-to-cart-button-v2" onclick="this.textContent='Added'">Add to cart</button>
  <div style="display:none"><button id="ghost">Ghost</button></div>
  <form id="signup">
    <input id="email" name="email" type="email">
    <select id="country"><option value="us">United States</option><option value="ca">Canada</option></select>
    <input id="terms" type="checkbox">
  </form>
  <p>Need <b>help</b>?</p>
</body></html>`

func zapNop() *zap.Logger { return zap.NewNop() }

func findChrome() bool {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func openFixture(t *testing.T) *Page {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if !findChrome() {
		t.Skip("no Chrome binary on PATH")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, liveFixture)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	cfg := config.NewDefaultConfig().Browser()
	cfg.Args = []string{"--disable-dev-shm-usage"}
	b, err := Launch(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	page, err := b.Open(ctx, server.URL)
	require.NoError(t, err)
	t.Cleanup(page.Close)
	return page
}

func TestLivePage(t *testing.T) {
	page := openFixture(t)
	ctx := context.Background()

	t.Run("QuerySelector", func(t *testing.T) {
		el, err := page.QuerySelector(ctx, "#main-nav a")
		require.NoError(t, err)
		require.NotNil(t, el)
		assert.Equal(t, "a", el.TagName())
		assert.Equal(t, `//*[@id="main-nav"]/a[1]`, el.Path())
		assert.True(t, dom.IsInteractable(el))

		missing, err := page.QuerySelector(ctx, "#nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = page.QuerySelector(ctx, "a[")
		assert.ErrorIs(t, err, dom.ErrInvalidSelector)
	})

	t.Run("HiddenElement", func(t *testing.T) {
		el, err := page.QuerySelector(ctx, "#ghost")
		require.NoError(t, err)
		require.NotNil(t, el)
		assert.False(t, dom.IsInteractable(el))
	})

	t.Run("FindByText", func(t *testing.T) {
		el, err := page.FindByText(ctx, "Need help")
		require.NoError(t, err)
		require.NotNil(t, el)
		assert.Equal(t, "p", el.TagName())
	})

	t.Run("FormActions", func(t *testing.T) {
		email, err := page.QuerySelector(ctx, "#email")
		require.NoError(t, err)
		require.NoError(t, page.Type(ctx, email, "a@b.co"))

		country, err := page.QuerySelector(ctx, "#country")
		require.NoError(t, err)
		require.NoError(t, page.Select(ctx, country, "Canada"))
		assert.Error(t, page.Select(ctx, country, "Narnia"))

		terms, err := page.QuerySelector(ctx, "#terms")
		require.NoError(t, err)
		require.NoError(t, page.SetChecked(ctx, terms, true))

		raw, err := page.evaluate(ctx, `JSON.stringify([document.querySelector('#email').value, document.querySelector('#country').value, document.querySelector('#terms').checked])`)
		require.NoError(t, err)
		assert.JSONEq(t, `["a@b.co","ca",true]`, raw)
	})

	t.Run("HealedClick", func(t *testing.T) {
		store := learning.NewStore(dom.SystemClock{}, zapNop())
		rec := telemetry.NewRecorder()
		h := healing.New(store, rec, dom.SystemClock{}, zapNop(), healing.DefaultOptions())

		res, err := h.Click(ctx, page, `[data-testid="add-to-cart-button"]`, healing.ClickOptions{})
		require.NoError(t, err)
		assert.True(t, res.Healed)
		assert.Equal(t, "partial-testid", res.Strategy)

		assert.Eventually(t, func() bool {
			btn, _ := page.QuerySelector(ctx, `[data-testid="add-to-cart-button-v2"]`)
			return btn != nil && btn.Text() == "Added"
		}, 5*time.Second, 50*time.Millisecond)
	})
}
