// internal/healing/navigate.go
package healing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
)

// NavigationSelector matches the elements searched for navigation labels.
const NavigationSelector = `a, button, [role="button"], .nav-link`

// NavigateOptions tunes a navigation.
type NavigateOptions struct {
	Context learning.Context
}

type navProbe struct {
	name string
	find func(ctx context.Context) (dom.Element, string, error)
}

// Navigate clicks the navigation element for label. The configured mapping is tried first,
// then elements of NavigationSelector by exact text, then a test id containing the
// lower-cased label, then elements by case-insensitive partial text, and finally any
// element in the document whose text contains label.
func (h *Healer) Navigate(ctx context.Context, page dom.Page, label string, opts NavigateOptions) (*ActionResult, error) {
	start := h.clock.Now()
	lctx := opts.Context
	mapped, hasMapping := h.opts.NavigationMap[label]

	original := label
	if hasMapping {
		original = mapped
	}
	ev := schemas.HealingEvent{Action: schemas.ActionNavigate, OriginalSelector: original, Page: lctx.Page}

	lower := strings.ToLower(label)
	testIDSelector := fmt.Sprintf(`[%s*="%s"]`, h.opts.TestIDAttribute, lower)

	var probes []navProbe
	if hasMapping {
		probes = append(probes, navProbe{schemas.StrategyDirectMapping, func(ctx context.Context) (dom.Element, string, error) {
			el, err := h.lookup(ctx, page, mapped)
			if el == nil || !dom.IsInteractable(el) {
				return nil, "", err
			}
			return el, mapped, nil
		}})
	}
	probes = append(probes,
		navProbe{schemas.StrategyExactText, func(ctx context.Context) (dom.Element, string, error) {
			return h.scan(ctx, page, NavigationSelector, func(text string) bool {
				return strings.TrimSpace(text) == label
			})
		}},
		navProbe{schemas.StrategyNavTestID, func(ctx context.Context) (dom.Element, string, error) {
			el, err := h.lookup(ctx, page, testIDSelector)
			if el == nil || !dom.IsInteractable(el) {
				return nil, "", err
			}
			return el, testIDSelector, nil
		}},
		navProbe{schemas.StrategyPartialText, func(ctx context.Context) (dom.Element, string, error) {
			return h.scan(ctx, page, NavigationSelector, func(text string) bool {
				return strings.Contains(strings.ToLower(text), lower)
			})
		}},
		navProbe{schemas.StrategyTextFallback, func(ctx context.Context) (dom.Element, string, error) {
			el, err := page.FindByText(ctx, label)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, "", ctxErr
				}
				return nil, "", nil
			}
			if el == nil || !dom.IsInteractable(el) {
				return nil, "", nil
			}
			return el, el.Path(), nil
		}},
	)

	for _, p := range probes {
		ev.Attempts++
		ev.Strategy = p.name
		el, used, err := p.find(ctx)
		if err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "lookup aborted", err)
		}
		if el == nil {
			continue
		}

		healed := p.name != schemas.StrategyDirectMapping
		if healed {
			ev.HealedSelector = used
		}
		if err := page.Click(ctx, el); err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "action failed", err)
		}

		ev.Success = true
		ev.HealingTimeMs = h.elapsed(start)
		if healed {
			h.store.RecordHealingSuccess(original, used, p.name, learning.HealingMetadata{
				ResponseTimeMs: ev.HealingTimeMs,
				Context:        lctx,
			})
			h.logger.Info("Navigated through fallback.",
				zap.String("label", label),
				zap.String("strategy", p.name),
				zap.String("selector", used))
		} else {
			h.store.RecordSuccess(original, p.name, ev.HealingTimeMs, lctx)
		}
		h.emit(ctx, ev)
		return &ActionResult{
			Action:     schemas.ActionNavigate,
			Target:     label,
			Selector:   used,
			Strategy:   p.name,
			Healed:     healed,
			Attempts:   ev.Attempts,
			DurationMs: ev.HealingTimeMs,
		}, nil
	}

	ev.Strategy = ""
	ev.HealingTimeMs = h.elapsed(start)
	return nil, h.fail(ctx, ev, lctx, fmt.Sprintf("no navigation element for %q", label), nil)
}

// scan returns the first interactable element of selector whose text satisfies match,
// with its path as the locator.
func (h *Healer) scan(ctx context.Context, page dom.Page, selector string, match func(string) bool) (dom.Element, string, error) {
	els, err := page.QuerySelectorAll(ctx, selector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		h.logger.Debug("Scan query failed.", zap.String("selector", selector), zap.Error(err))
		return nil, "", nil
	}
	for _, el := range els {
		if match(el.Text()) && dom.IsInteractable(el) {
			return el, el.Path(), nil
		}
	}
	return nil, "", nil
}
