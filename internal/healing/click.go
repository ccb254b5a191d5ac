// internal/healing/click.go
package healing

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
)

// ClickOptions tunes a single click.
type ClickOptions struct {
	// MaxAttempts overrides the healer's candidate bound when positive.
	MaxAttempts int
	Context     learning.Context
}

type candidate struct {
	schemas.Strategy
	learned bool
}

// Click clicks selector. A present, interactable match is clicked directly; a present
// but unusable match fails without healing. When nothing matches, a learned healing for
// selector is tried first (if its confidence reached the threshold), then the generated
// fallbacks in confidence order.
func (h *Healer) Click(ctx context.Context, page dom.Page, selector string, opts ClickOptions) (*ActionResult, error) {
	return h.act(ctx, page, schemas.ActionClick, selector, opts.MaxAttempts, opts.Context, func(el dom.Element) error {
		return page.Click(ctx, el)
	})
}

// act is the direct, fallback, fail sequence shared by element actions.
func (h *Healer) act(ctx context.Context, page dom.Page, action schemas.ActionKind, selector string, maxAttempts int, lctx learning.Context, perform func(dom.Element) error) (*ActionResult, error) {
	start := h.clock.Now()
	if maxAttempts <= 0 {
		maxAttempts = h.opts.MaxAttempts
	}
	ev := schemas.HealingEvent{Action: action, OriginalSelector: selector, Page: lctx.Page}

	el, err := h.lookup(ctx, page, selector)
	if err != nil {
		ev.HealingTimeMs = h.elapsed(start)
		return nil, h.fail(ctx, ev, lctx, "lookup aborted", err)
	}

	if el != nil {
		ev.Strategy = schemas.StrategyDirect
		ev.Attempts = 1
		if !dom.IsInteractable(el) {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "element is present but not interactable", nil)
		}
		if err := perform(el); err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "action failed", err)
		}

		ev.Success = true
		ev.HealingTimeMs = h.elapsed(start)
		h.store.RecordSuccess(selector, schemas.StrategyDirect, ev.HealingTimeMs, lctx)
		h.emit(ctx, ev)
		return &ActionResult{
			Action:     action,
			Target:     selector,
			Selector:   selector,
			Strategy:   schemas.StrategyDirect,
			Attempts:   1,
			DurationMs: ev.HealingTimeMs,
		}, nil
	}

	for _, c := range h.candidates(selector, maxAttempts) {
		ev.Attempts++
		ev.Strategy = c.Name

		el, err := h.lookup(ctx, page, c.Selector)
		if err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "lookup aborted", err)
		}
		if el == nil || !dom.IsInteractable(el) {
			continue
		}

		ev.HealedSelector = c.Selector
		if err := perform(el); err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return nil, h.fail(ctx, ev, lctx, "action failed", err)
		}

		ev.Success = true
		ev.HealingTimeMs = h.elapsed(start)
		h.store.RecordHealingSuccess(selector, c.Selector, c.Name, learning.HealingMetadata{
			ResponseTimeMs: ev.HealingTimeMs,
			Confidence:     c.Confidence,
			Context:        lctx,
		})
		h.emit(ctx, ev)
		h.logger.Info("Healed selector.",
			zap.String("action", string(action)),
			zap.String("original", selector),
			zap.String("healed", c.Selector),
			zap.String("strategy", c.Name),
			zap.Bool("learned", c.learned))
		return &ActionResult{
			Action:     action,
			Target:     selector,
			Selector:   c.Selector,
			Strategy:   c.Name,
			Healed:     true,
			Attempts:   ev.Attempts,
			DurationMs: ev.HealingTimeMs,
		}, nil
	}

	ev.Strategy = ""
	ev.HealedSelector = ""
	ev.HealingTimeMs = h.elapsed(start)
	return nil, h.fail(ctx, ev, lctx, "no candidate matched an interactable element", nil)
}

// candidates lists at most limit fallbacks for selector, a confident learned healing first.
func (h *Healer) candidates(selector string, limit int) []candidate {
	var out []candidate
	seen := make(map[string]bool)

	if p, ok := h.store.BestHealing(selector); ok && p.Confidence >= h.opts.ConfidenceThreshold {
		if healed := p.MostUsedHealed(); healed != "" {
			out = append(out, candidate{
				Strategy: schemas.Strategy{Name: p.Strategy, Selector: healed, Confidence: p.Confidence},
				learned:  true,
			})
			seen[healed] = true
		}
	}

	for _, s := range h.generator.Generate(selector) {
		if seen[s.Selector] {
			continue
		}
		seen[s.Selector] = true
		out = append(out, candidate{Strategy: s})
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
