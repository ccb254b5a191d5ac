// internal/healing/healing.go
//
// Package healing performs actions on a page, substituting a working selector when the
// requested one no longer matches. Every action emits exactly one healing event per target
// and feeds its outcome into the learning store.
package healing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/learning"
	"github.com/xkilldash9x/scalpel-heal/internal/strategy"
	"github.com/xkilldash9x/scalpel-heal/internal/telemetry"
)

// Learner is the part of the learning store the healer reads and writes.
type Learner interface {
	RecordSuccess(selector, strategy string, responseTimeMs float64, ctx learning.Context)
	RecordFailure(selector, strategy, reason string, ctx learning.Context)
	RecordHealingSuccess(original, healed, strategy string, meta learning.HealingMetadata)
	BestHealing(original string) (learning.HealingPattern, bool)
}

// Options configures a Healer.
type Options struct {
	// MaxAttempts bounds the fallback candidates tried for one click.
	MaxAttempts int
	// ConfidenceThreshold is the pattern confidence at which a learned healing is tried
	// before generated candidates.
	ConfidenceThreshold float64
	TestIDAttribute     string
	// NavigationMap maps navigation labels to selectors.
	NavigationMap map[string]string
	// FieldMap maps form field names to their primary selectors.
	FieldMap          map[string]string
	SkipMissingFields bool
}

// DefaultOptions returns the stock healing configuration.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:         5,
		ConfidenceThreshold: 0.8,
		TestIDAttribute:     strategy.DefaultTestIDAttribute,
		NavigationMap: map[string]string{
			"Dashboard":  `[data-testid="dashboard-link"]`,
			"Products":   `[data-testid="products-link"]`,
			"Home":       `[data-testid="home-link"]`,
			"Cart":       `[data-testid="cart-link"]`,
			"Profile":    `[data-testid="profile-link"]`,
			"Components": `[data-testid="components-link"]`,
		},
		FieldMap: map[string]string{
			"firstName": `[data-testid="first-name-input"]`,
			"lastName":  `[data-testid="last-name-input"]`,
			"email":     `[data-testid="email-input"]`,
			"phone":     `[data-testid="phone-input"]`,
			"address":   `[data-testid="address-input"]`,
			"city":      `[data-testid="city-input"]`,
		},
	}
}

// HealingFailure is returned when an action could not be carried out on any candidate.
type HealingFailure struct {
	Action   schemas.ActionKind
	Selector string
	Reason   string
	// Err is the page error that aborted the action, if any.
	Err error
}

func (e *HealingFailure) Error() string {
	return fmt.Sprintf("healing %s failed for %q", e.Action, e.Selector)
}

func (e *HealingFailure) Unwrap() error { return e.Err }

// ActionResult describes a completed action.
type ActionResult struct {
	Action schemas.ActionKind `json:"action"`
	// Target is the requested selector, form selector or navigation label.
	Target string `json:"target"`
	// Selector is the selector the action was finally performed on.
	Selector   string        `json:"selector,omitempty"`
	Strategy   string        `json:"strategy,omitempty"`
	Healed     bool          `json:"healed"`
	Attempts   int           `json:"attempts"`
	DurationMs float64       `json:"duration_ms"`
	Fields     []FieldResult `json:"fields,omitempty"`
}

// Healer runs healing actions against a dom.Page.
type Healer struct {
	store     Learner
	sink      telemetry.Sink
	clock     dom.Clock
	logger    *zap.Logger
	opts      Options
	generator *strategy.Generator
}

// New builds a Healer. Zero-valued options fall back to DefaultOptions.
func New(store Learner, sink telemetry.Sink, clock dom.Clock, logger *zap.Logger, opts Options) *Healer {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	if clock == nil {
		clock = dom.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if opts.TestIDAttribute == "" {
		opts.TestIDAttribute = defaults.TestIDAttribute
	}
	if opts.NavigationMap == nil {
		opts.NavigationMap = defaults.NavigationMap
	}
	if opts.FieldMap == nil {
		opts.FieldMap = defaults.FieldMap
	}

	return &Healer{
		store:     store,
		sink:      sink,
		clock:     clock,
		logger:    logger.Named("healing"),
		opts:      opts,
		generator: strategy.NewGenerator(opts.TestIDAttribute),
	}
}

// Options returns the effective options.
func (h *Healer) Options() Options { return h.opts }

// lookup queries selector, treating invalid selectors and query errors as absent.
// Context errors are returned so callers stop early.
func (h *Healer) lookup(ctx context.Context, doc dom.Document, selector string) (dom.Element, error) {
	if err := strategy.Validate(selector); err != nil {
		return nil, nil
	}
	el, err := doc.QuerySelector(ctx, selector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, dom.ErrInvalidSelector) {
			h.logger.Debug("Query failed.", zap.String("selector", selector), zap.Error(err))
		}
		return nil, nil
	}
	return el, nil
}

func (h *Healer) emit(ctx context.Context, ev schemas.HealingEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = h.clock.Now()
	h.sink.RecordHealing(context.WithoutCancel(ctx), ev)
}

func (h *Healer) elapsed(start time.Time) float64 {
	return dom.ElapsedMs(h.clock, start)
}

// fail records a failed action everywhere it needs to go and builds the error.
func (h *Healer) fail(ctx context.Context, ev schemas.HealingEvent, lctx learning.Context, reason string, cause error) error {
	ev.Success = false
	ev.Error = reason
	if cause != nil {
		ev.Error = fmt.Sprintf("%s: %v", reason, cause)
	}
	h.store.RecordFailure(ev.OriginalSelector, "", ev.Error, lctx)
	h.emit(ctx, ev)
	h.logger.Warn("Healing failed.",
		zap.String("action", string(ev.Action)),
		zap.String("selector", ev.OriginalSelector),
		zap.String("reason", ev.Error))
	return &HealingFailure{Action: ev.Action, Selector: ev.OriginalSelector, Reason: reason, Err: cause}
}
