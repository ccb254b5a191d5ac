// internal/healing/act.go
package healing

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
)

// Action is a single healing action request.
type Action struct {
	Kind schemas.ActionKind
	// Target is a selector for click, a form selector for fill, or a label for navigate.
	Target string
	Fields []FormField
}

// ActOptions tunes Act.
type ActOptions struct {
	MaxAttempts int
	SkipMissing *bool
	Context     learning.Context
}

// Act dispatches action to Click, FillForm or Navigate.
func (h *Healer) Act(ctx context.Context, page dom.Page, action Action, opts ActOptions) (*ActionResult, error) {
	switch action.Kind {
	case schemas.ActionClick:
		return h.Click(ctx, page, action.Target, ClickOptions{MaxAttempts: opts.MaxAttempts, Context: opts.Context})
	case schemas.ActionFill:
		return h.FillForm(ctx, page, action.Target, action.Fields, FillOptions{SkipMissing: opts.SkipMissing, Context: opts.Context})
	case schemas.ActionNavigate:
		return h.Navigate(ctx, page, action.Target, NavigateOptions{Context: opts.Context})
	default:
		return nil, fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}
