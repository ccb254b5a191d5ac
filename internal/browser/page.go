// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

// ErrForeignElement is returned when an action receives an element another Page produced.
var ErrForeignElement = errors.New("element does not belong to this page")

// Page is one browser tab. It implements dom.Page.
type Page struct {
	tabCtx        context.Context
	cancel        context.CancelFunc
	logger        *zap.Logger
	actionTimeout time.Duration
}

var _ dom.Page = (*Page)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger, actionTimeout time.Duration) *Page {
	return &Page{
		tabCtx:        tabCtx,
		cancel:        cancel,
		logger:        logger.Named("page"),
		actionTimeout: actionTimeout,
	}
}

// Close closes the tab.
func (p *Page) Close() {
	p.cancel()
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combine(p.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's own cancellation rather than the derived one.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *Page) evaluate(ctx context.Context, script string) (string, error) {
	var out string
	eval := chromedp.Evaluate(script, &out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithSilent(true)
	})
	if err := p.run(ctx, eval); err != nil {
		return "", fmt.Errorf("script evaluation failed: %w", err)
	}
	return out, nil
}

func (p *Page) snapshots(ctx context.Context, script, selector string) ([]dom.Element, error) {
	raw, err := p.evaluate(ctx, script)
	if err != nil {
		return nil, err
	}
	return decodeElements(raw, selector)
}

// decodeElements turns a query script result into elements.
func decodeElements(raw, selector string) ([]dom.Element, error) {
	var res queryResult
	if err := json.UnmarshalFromString(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode element snapshot: %w", err)
	}
	if res.Invalid {
		return nil, fmt.Errorf("%w: %q: %s", dom.ErrInvalidSelector, selector, res.Message)
	}
	els := make([]dom.Element, len(res.Elements))
	for i := range res.Elements {
		els[i] = &Element{snap: res.Elements[i]}
	}
	return els, nil
}

// QuerySelector returns the first element matching selector, or nil.
func (p *Page) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	if selector == "" {
		return nil, fmt.Errorf("%w: empty selector", dom.ErrInvalidSelector)
	}
	els, err := p.snapshots(ctx, queryScript(selector, false, uuid.NewString()), selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	if selector == "" {
		return nil, fmt.Errorf("%w: empty selector", dom.ErrInvalidSelector)
	}
	return p.snapshots(ctx, queryScript(selector, true, uuid.NewString()), selector)
}

// FindByText returns the innermost element whose text contains text, or nil.
func (p *Page) FindByText(ctx context.Context, text string) (dom.Element, error) {
	if text == "" {
		return nil, nil
	}
	els, err := p.snapshots(ctx, textScript(text, uuid.NewString()), text)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func (p *Page) own(el dom.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil {
		return nil, ErrForeignElement
	}
	return e, nil
}

func (p *Page) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.actionTimeout)
}

func (p *Page) Click(ctx context.Context, el dom.Element) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	ctx, cancel := p.actionContext(ctx)
	defer cancel()

	sel := refSelector(e.Ref())
	if err := p.run(ctx, chromedp.ScrollIntoView(sel, chromedp.ByQuery), chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click on %s failed: %w", e.Path(), err)
	}
	p.logger.Debug("Clicked.", zap.String("path", e.Path()))
	return nil
}

func (p *Page) Type(ctx context.Context, el dom.Element, text string) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	ctx, cancel := p.actionContext(ctx)
	defer cancel()

	sel := refSelector(e.Ref())
	err = p.run(ctx,
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("typing into %s failed: %w", e.Path(), err)
	}
	return nil
}

func (p *Page) Select(ctx context.Context, el dom.Element, value string) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	ctx, cancel := p.actionContext(ctx)
	defer cancel()

	out, err := p.evaluate(ctx, selectScript(refSelector(e.Ref()), value))
	if err != nil {
		return err
	}
	switch out {
	case "ok":
		return nil
	case "nooption":
		return fmt.Errorf("no option %q in %s", value, e.Path())
	default:
		return fmt.Errorf("element %s is no longer attached", e.Path())
	}
}

func (p *Page) SetChecked(ctx context.Context, el dom.Element, checked bool) error {
	e, err := p.own(el)
	if err != nil {
		return err
	}
	ctx, cancel := p.actionContext(ctx)
	defer cancel()

	out, err := p.evaluate(ctx, checkScript(refSelector(e.Ref()), checked))
	if err != nil {
		return err
	}
	switch out {
	case "ok":
		return nil
	case "unchanged":
		return fmt.Errorf("checked state of %s did not change", e.Path())
	default:
		return fmt.Errorf("element %s is no longer attached", e.Path())
	}
}
