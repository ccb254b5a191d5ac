// internal/healing/form.go
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

// FormField is one field to fill, addressed by its logical name.
type FormField struct {
	Name  string
	Value string
}

// FieldResult reports how a field was filled.
type FieldResult struct {
	Name     string        `json:"name"`
	Selector string        `json:"selector,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Kind     dom.FieldKind `json:"kind"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// FillOptions tunes a form fill.
type FillOptions struct {
	// SkipMissing overrides the healer's SkipMissingFields when non-nil.
	SkipMissing *bool
	Context     learning.Context
}

// FieldSelectors returns the primary selector for a field and its fallbacks, in order.
func (h *Healer) FieldSelectors(name string) (primary string, fallbacks []string) {
	primary, ok := h.opts.FieldMap[name]
	if !ok {
		primary = fmt.Sprintf(`[%s="%s-input"]`, h.opts.TestIDAttribute, name)
	}
	fallbacks = []string{
		fmt.Sprintf(`[%s="%s"]`, h.opts.TestIDAttribute, name),
		"#" + name,
		fmt.Sprintf(`[name="%s"]`, name),
		fmt.Sprintf(`input[placeholder*="%s" i]`, name),
	}
	return primary, fallbacks
}

// FillForm fills each field inside the form matched by formSelector. A field is looked up
// by its primary selector, then by its fallbacks, all scoped to the form. Each field emits
// one healing event. A missing field is skipped when skipping is enabled and otherwise ends
// the fill with a *HealingFailure.
func (h *Healer) FillForm(ctx context.Context, page dom.Page, formSelector string, fields []FormField, opts FillOptions) (*ActionResult, error) {
	start := h.clock.Now()
	skipMissing := h.opts.SkipMissingFields
	if opts.SkipMissing != nil {
		skipMissing = *opts.SkipMissing
	}
	lctx := opts.Context

	form, err := h.lookup(ctx, page, formSelector)
	if err != nil || form == nil {
		ev := schemas.HealingEvent{
			Action:           schemas.ActionFill,
			OriginalSelector: formSelector,
			Attempts:         1,
			Page:             lctx.Page,
			HealingTimeMs:    h.elapsed(start),
		}
		return nil, h.fail(ctx, ev, lctx, "form not found", err)
	}

	result := &ActionResult{
		Action:   schemas.ActionFill,
		Target:   formSelector,
		Selector: formSelector,
		Strategy: schemas.StrategyDirect,
	}
	for _, field := range fields {
		fr, err := h.fillField(ctx, page, formSelector, field, skipMissing, lctx)
		result.Attempts += fr.attempts
		if err != nil {
			return nil, err
		}
		if fr.Strategy == schemas.StrategyFieldFallback {
			result.Healed = true
			result.Strategy = schemas.StrategyFieldFallback
		}
		result.Fields = append(result.Fields, fr.FieldResult)
	}
	result.DurationMs = h.elapsed(start)
	return result, nil
}

type fieldOutcome struct {
	FieldResult
	attempts int
}

func (h *Healer) fillField(ctx context.Context, page dom.Page, formSelector string, field FormField, skipMissing bool, lctx learning.Context) (fieldOutcome, error) {
	start := h.clock.Now()
	primary, fallbacks := h.FieldSelectors(field.Name)
	ev := schemas.HealingEvent{Action: schemas.ActionFill, OriginalSelector: primary, Page: lctx.Page}
	out := fieldOutcome{FieldResult: FieldResult{Name: field.Name}}

	candidates := append([]string{primary}, fallbacks...)
	for i, sel := range candidates {
		out.attempts++
		ev.Attempts++
		el, err := h.lookup(ctx, page, scoped(formSelector, sel))
		if err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return out, h.fail(ctx, ev, lctx, "lookup aborted", err)
		}
		if el == nil {
			continue
		}

		kind := dom.ClassifyField(el)
		strategyName := schemas.StrategyDirect
		if i > 0 {
			strategyName = schemas.StrategyFieldFallback
			ev.HealedSelector = sel
		}
		ev.Strategy = strategyName

		if err := h.fill(ctx, page, el, kind, field.Value); err != nil {
			ev.HealingTimeMs = h.elapsed(start)
			return out, h.fail(ctx, ev, lctx, fmt.Sprintf("failed to fill %s field %q", kind, field.Name), err)
		}

		ev.Success = true
		ev.HealingTimeMs = h.elapsed(start)
		if i == 0 {
			h.store.RecordSuccess(primary, strategyName, ev.HealingTimeMs, lctx)
		} else {
			h.store.RecordHealingSuccess(primary, sel, strategyName, learning.HealingMetadata{
				ResponseTimeMs: ev.HealingTimeMs,
				Context:        lctx,
			})
			h.logger.Info("Healed form field.", zap.String("field", field.Name), zap.String("selector", sel))
		}
		h.emit(ctx, ev)

		out.Selector = sel
		out.Strategy = strategyName
		out.Kind = kind
		return out, nil
	}

	ev.HealingTimeMs = h.elapsed(start)
	if !skipMissing {
		return out, h.fail(ctx, ev, lctx, fmt.Sprintf("field %q not found", field.Name), nil)
	}

	ev.Error = fmt.Sprintf("field %q not found, skipped", field.Name)
	h.store.RecordFailure(primary, "", ev.Error, lctx)
	h.emit(ctx, ev)
	h.logger.Warn("Form field not found, skipping.", zap.String("field", field.Name))
	out.Skipped = true
	return out, nil
}

// fill dispatches on the field kind.
func (h *Healer) fill(ctx context.Context, page dom.Page, el dom.Element, kind dom.FieldKind, value string) error {
	switch kind {
	case dom.FieldSelect:
		return page.Select(ctx, el, value)
	case dom.FieldCheckbox:
		return page.SetChecked(ctx, el, truthy(value))
	case dom.FieldRadio:
		return page.SetChecked(ctx, el, true)
	default:
		return page.Type(ctx, el, value)
	}
}

// scoped builds a selector for fieldSelector inside formSelector. Selector lists on
// either side are expanded pairwise, so "form, .signup" never matches the form itself.
func scoped(formSelector, fieldSelector string) string {
	forms := splitSelectorList(formSelector)
	fields := splitSelectorList(fieldSelector)
	parts := make([]string, 0, len(forms)*len(fields))
	for _, form := range forms {
		for _, field := range fields {
			parts = append(parts, form+" "+field)
		}
	}
	return strings.Join(parts, ", ")
}

// splitSelectorList splits a selector list on commas outside brackets, parentheses and
// quotes. Empty items are dropped.
func splitSelectorList(selector string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	flush := func(end int) {
		if item := strings.TrimSpace(selector[start:end]); item != "" {
			parts = append(parts, item)
		}
	}
	for i, r := range selector {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			flush(i)
			start = i + 1
		}
	}
	flush(len(selector))
	return parts
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off", "no":
		return false
	}
	return true
}
